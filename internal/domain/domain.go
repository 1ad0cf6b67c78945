package domain

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	GlobalRole GlobalRole `json:"global_role" enum:"super_admin,admin,user"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
}

type Team struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TeamMember struct {
	TeamID string   `json:"team_id"`
	UserID string   `json:"user_id"`
	Role   TeamRole `json:"role" enum:"owner,admin,member,viewer"`
}

type Project struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	TeamID      *string `json:"team_id,omitempty"`
	LeadID      *string `json:"lead_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string      `json:"project_id"`
	UserID    string      `json:"user_id"`
	Role      ProjectRole `json:"role" enum:"admin,manager,contributor,viewer"`
}

// Status is global reference data shared by every project's workflow graph.
type Status struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Category StatusCategory `json:"category" enum:"todo,in_progress,done"`
	Position int            `json:"position"`
}

type Issue struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	StatusID    string  `json:"status_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Label struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
}

// WorkflowTransition is one directed edge of a project's workflow graph.
// The same (from, to) pair may appear more than once; the validator surfaces
// duplicates instead of the store rejecting them.
type WorkflowTransition struct {
	ID           int64  `json:"id"`
	ProjectID    string `json:"project_id"`
	FromStatusID string `json:"from_status_id"`
	ToStatusID   string `json:"to_status_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// WorkflowReport is the outcome of linting one project's transition graph.
// Warnings never affect Valid.
type WorkflowReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
