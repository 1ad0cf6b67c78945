package server

import (
	"encoding/json"

	"flowline/internal/domain"
)

// Request payloads

type CreateUserRequest struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Email      *string `json:"email,omitempty"`
	GlobalRole *string `json:"global_role,omitempty" enum:"super_admin,admin,user"`
}

type SetGlobalRoleRequest struct {
	GlobalRole string `json:"global_role" enum:"super_admin,admin,user"`
}

type CreateTeamRequest struct {
	ID   string `json:"id,omitempty"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type TeamMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"owner,admin,member,viewer"`
}

type CreateProjectRequest struct {
	ID          string  `json:"id,omitempty"`
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	TeamID      *string `json:"team_id,omitempty"`
	LeadID      *string `json:"lead_id,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	LeadID      *string `json:"lead_id,omitempty"`
}

type ProjectMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"admin,manager,contributor,viewer"`
}

type CreateIssueRequest struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type UpdateIssueRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type PerformTransitionRequest struct {
	TransitionID int64 `json:"transition_id"`
}

type CreateTransitionRequest struct {
	FromStatusID string  `json:"from_status_id"`
	ToStatusID   string  `json:"to_status_id"`
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
}

type CreateLabelRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type UserResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	GlobalRole string `json:"global_role" enum:"super_admin,admin,user"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type TeamResponse struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TeamMemberResponse struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"owner,admin,member,viewer"`
}

type ProjectResponse struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	TeamID      *string `json:"team_id,omitempty"`
	LeadID      *string `json:"lead_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type ProjectMemberResponse struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role" enum:"admin,manager,contributor,viewer"`
}

type StatusResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category" enum:"todo,in_progress,done"`
	Position int    `json:"position"`
}

type IssueResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	StatusID    string  `json:"status_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type TransitionResponse struct {
	ID           int64  `json:"id"`
	ProjectID    string `json:"project_id"`
	FromStatusID string `json:"from_status_id"`
	ToStatusID   string `json:"to_status_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type WorkflowReportResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type LabelResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	UserID      string   `json:"user_id"`
	GlobalRole  string   `json:"global_role" enum:"super_admin,admin,user"`
	ProjectRole string   `json:"project_role,omitempty" enum:"admin,manager,contributor,viewer"`
	Permissions []string `json:"permissions"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		GlobalRole: string(u.GlobalRole),
		CreatedAt:  u.CreatedAt,
	}
}

func teamResponse(t domain.Team) TeamResponse {
	return TeamResponse(t)
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func statusResponse(s domain.Status) StatusResponse {
	return StatusResponse{
		ID:       s.ID,
		Name:     s.Name,
		Category: string(s.Category),
		Position: s.Position,
	}
}

func issueResponse(i domain.Issue) IssueResponse {
	return IssueResponse(i)
}

func transitionResponse(t domain.WorkflowTransition) TransitionResponse {
	return TransitionResponse(t)
}

func labelResponse(l domain.Label) LabelResponse {
	return LabelResponse(l)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func reportResponse(r domain.WorkflowReport) WorkflowReportResponse {
	return WorkflowReportResponse{
		Valid:    r.Valid,
		Errors:   nonNilSlice(r.Errors),
		Warnings: nonNilSlice(r.Warnings),
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func mapIssues(items []domain.Issue) []IssueResponse {
	res := make([]IssueResponse, 0, len(items))
	for _, i := range items {
		res = append(res, issueResponse(i))
	}
	return res
}

func mapTransitions(items []domain.WorkflowTransition) []TransitionResponse {
	res := make([]TransitionResponse, 0, len(items))
	for _, t := range items {
		res = append(res, transitionResponse(t))
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
