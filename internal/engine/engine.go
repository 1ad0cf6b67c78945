package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowline/internal/config"
	"flowline/internal/domain"
	"flowline/internal/engine/access"
	"flowline/internal/events"
	"flowline/internal/repo"
)

// minimumWorkflowSize is the smallest transition count the bootstrapper
// accepts before it regenerates a project's defaults.
const minimumWorkflowSize = 4

// ErrStatusConflict reports that a concurrent writer moved the issue between
// the precondition read and the status write.
var ErrStatusConflict = errors.New("issue status changed concurrently; retry")

// TransitionError is a domain rule violation on a transition attempt: the
// transition exists but does not apply to this issue. Distinct from not-found.
type TransitionError struct {
	Reason string
}

func (e *TransitionError) Error() string { return e.Reason }

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Access access.Service
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Access: access.Service{Repo: r},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Seed writes the configured statuses and permission grants. Idempotent;
// run at startup so reference data follows the config.
func (e Engine) Seed(ctx context.Context) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, s := range e.Config.Workflow.Statuses {
		st := domain.Status{
			ID:       s.ID,
			Name:     s.Name,
			Category: domain.StatusCategory(s.Category),
			Position: i,
		}
		if err := e.Repo.UpsertStatus(ctx, tx, st); err != nil {
			return fmt.Errorf("seed status %s: %w", s.ID, err)
		}
	}
	for role, perms := range e.Config.Permissions.Project {
		for _, p := range perms {
			if err := e.Repo.SeedGrant(ctx, tx, domain.ContextProject, role, p); err != nil {
				return fmt.Errorf("seed project grant %s/%s: %w", role, p, err)
			}
		}
	}
	for role, perms := range e.Config.Permissions.Team {
		for _, p := range perms {
			if err := e.Repo.SeedGrant(ctx, tx, domain.ContextTeam, role, p); err != nil {
				return fmt.Errorf("seed team grant %s/%s: %w", role, p, err)
			}
		}
	}
	return tx.Commit()
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID          string
	Key         string
	Name        string
	Description string
	TeamID      string
	LeadID      string
	ActorID     string
}

// InitProject creates a project and seeds its default workflow in one
// transaction.
func (e Engine) InitProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Key == "" {
		return domain.Project{}, errors.New("key is required")
	}
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.TeamID != "" {
		if _, err := e.Repo.GetTeam(ctx, opts.TeamID); err != nil {
			return domain.Project{}, fmt.Errorf("team %s: %w", opts.TeamID, err)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:          id,
		Key:         opts.Key,
		Name:        opts.Name,
		Description: opts.Description,
		TeamID:      optionalString(opts.TeamID),
		LeadID:      optionalString(opts.LeadID),
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id,key,name,description,team_id,lead_id,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Key, p.Name, nullable(p.Description), nullable(opts.TeamID), nullable(opts.LeadID), p.CreatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.createDefaultTransitionsTx(ctx, tx, p.ID); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"key": p.Key}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// IssueCreateOptions are parameters for creating an issue.
type IssueCreateOptions struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	AssigneeID  string
	ActorID     string
}

// CreateIssue inserts an issue at the default (first todo-category) status.
func (e Engine) CreateIssue(ctx context.Context, opts IssueCreateOptions) (domain.Issue, error) {
	if opts.Title == "" {
		return domain.Issue{}, errors.New("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Issue{}, errors.New("project is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Issue{}, err
	}
	start, err := e.Repo.DefaultStatus(ctx)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("default status: %w", err)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	i := domain.Issue{
		ID:          id,
		ProjectID:   opts.ProjectID,
		StatusID:    start.ID,
		Title:       opts.Title,
		Description: opts.Description,
		AssigneeID:  optionalString(opts.AssigneeID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertIssue(ctx, tx, i); err != nil {
		return domain.Issue{}, err
	}
	if err := e.Events.Append(ctx, tx, "issue.created", i.ProjectID, "issue", i.ID, opts.ActorID, events.EventPayload{"title": i.Title, "status": i.StatusID}); err != nil {
		return domain.Issue{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Issue{}, err
	}
	return i, nil
}

// IssueUpdateOptions encapsulates allowed field updates. Status is not here:
// status only moves through PerformTransition.
type IssueUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	AssigneeID  *string
	ActorID     string
}

func (e Engine) UpdateIssue(ctx context.Context, opts IssueUpdateOptions) (domain.Issue, error) {
	i, err := e.Repo.GetIssue(ctx, opts.ID)
	if err != nil {
		return i, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return i, errors.New("title cannot be empty")
		}
		i.Title = *opts.Title
	}
	if opts.Description != nil {
		i.Description = *opts.Description
	}
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			i.AssigneeID = nil
		} else {
			i.AssigneeID = opts.AssigneeID
		}
	}
	i.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return i, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateIssue(ctx, tx, i); err != nil {
		return i, err
	}
	if err := e.Events.Append(ctx, tx, "issue.updated", i.ProjectID, "issue", i.ID, opts.ActorID, events.EventPayload{}); err != nil {
		return i, err
	}
	if err := tx.Commit(); err != nil {
		return i, err
	}
	return i, nil
}

// AvailableTransitions returns the project's edges leaving the issue's
// current status. Empty is valid: terminal state or unconfigured workflow.
func (e Engine) AvailableTransitions(ctx context.Context, issueID string) ([]domain.WorkflowTransition, error) {
	i, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListTransitionsFrom(ctx, i.ProjectID, i.StatusID)
}

// PerformTransition moves an issue along one workflow edge. Preconditions,
// checked before any mutation: the transition exists, belongs to the issue's
// project, and leaves the issue's current status. The write itself re-checks
// the current status so concurrent attempts serialize to one winner.
func (e Engine) PerformTransition(ctx context.Context, issueID string, transitionID int64, actorID string) (domain.Issue, error) {
	i, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return i, err
	}
	t, err := e.Repo.GetTransition(ctx, transitionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return i, fmt.Errorf("transition not found: %w", repo.ErrNotFound)
		}
		return i, err
	}
	if t.ProjectID != i.ProjectID {
		return i, &TransitionError{Reason: "transition does not belong to this project's workflow"}
	}
	if t.FromStatusID != i.StatusID {
		return i, &TransitionError{Reason: "this transition is not available from the current status"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return i, err
	}
	defer tx.Rollback()
	moved, err := e.Repo.UpdateIssueStatus(ctx, tx, i.ID, t.FromStatusID, t.ToStatusID, now)
	if err != nil {
		return i, err
	}
	if !moved {
		return i, ErrStatusConflict
	}
	if err := e.Events.Append(ctx, tx, "issue.transitioned", i.ProjectID, "issue", i.ID, actorID, events.EventPayload{
		"transition_id": t.ID,
		"from_status":   t.FromStatusID,
		"to_status":     t.ToStatusID,
	}); err != nil {
		return i, err
	}
	if err := tx.Commit(); err != nil {
		return i, err
	}
	i.StatusID = t.ToStatusID
	i.UpdatedAt = now
	return i, nil
}

// ProjectTransitions lists a project's whole graph for administration views.
func (e Engine) ProjectTransitions(ctx context.Context, projectID string) ([]domain.WorkflowTransition, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListTransitionsByProject(ctx, projectID)
}

// TransitionCreateOptions are parameters for adding one workflow edge.
type TransitionCreateOptions struct {
	ProjectID    string
	FromStatusID string
	ToStatusID   string
	Name         string
	Description  string
	ActorID      string
}

// CreateTransition inserts an edge. Duplicate edges are legal at write time;
// the validator reports them.
func (e Engine) CreateTransition(ctx context.Context, opts TransitionCreateOptions) (domain.WorkflowTransition, error) {
	if opts.Name == "" {
		return domain.WorkflowTransition{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.WorkflowTransition{}, err
	}
	if _, err := e.Repo.GetStatus(ctx, opts.FromStatusID); err != nil {
		return domain.WorkflowTransition{}, fmt.Errorf("from_status_id %s: %w", opts.FromStatusID, err)
	}
	if _, err := e.Repo.GetStatus(ctx, opts.ToStatusID); err != nil {
		return domain.WorkflowTransition{}, fmt.Errorf("to_status_id %s: %w", opts.ToStatusID, err)
	}
	t := domain.WorkflowTransition{
		ProjectID:    opts.ProjectID,
		FromStatusID: opts.FromStatusID,
		ToStatusID:   opts.ToStatusID,
		Name:         opts.Name,
		Description:  opts.Description,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertTransition(ctx, tx, t)
	if err != nil {
		return t, err
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "workflow.transition.created", t.ProjectID, "transition", fmt.Sprint(id), opts.ActorID, events.EventPayload{
		"from_status": t.FromStatusID,
		"to_status":   t.ToStatusID,
		"name":        t.Name,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTransition removes a single edge. The audit event commits in the
// same transaction as the delete.
func (e Engine) DeleteTransition(ctx context.Context, transitionID int64, actorID string) error {
	t, err := e.Repo.GetTransition(ctx, transitionID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTransition(ctx, tx, transitionID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "workflow.transition.deleted", t.ProjectID, "transition", fmt.Sprint(t.ID), actorID, events.EventPayload{
		"from_status": t.FromStatusID,
		"to_status":   t.ToStatusID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateDefaultTransitions applies the configured default edge set to a
// project. Not idempotent on its own: calling it twice duplicates edges.
// The bootstrapper's threshold check is what prevents that in practice.
func (e Engine) CreateDefaultTransitions(ctx context.Context, projectID, actorID string) error {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.createDefaultTransitionsTx(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "workflow.defaults.created", projectID, "project", projectID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) createDefaultTransitionsTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	now := e.now().UTC().Format(time.RFC3339)
	for _, d := range e.Config.Workflow.Defaults {
		t := domain.WorkflowTransition{
			ProjectID:    projectID,
			FromStatusID: d.From,
			ToStatusID:   d.To,
			Name:         d.Name,
			Description:  d.Description,
			CreatedAt:    now,
		}
		if _, err := e.Repo.InsertTransition(ctx, tx, t); err != nil {
			return fmt.Errorf("default transition %s->%s: %w", d.From, d.To, err)
		}
	}
	return nil
}

// EnsureDefaultWorkflows scans every project and repairs incomplete
// workflows: zero transitions get the defaults, fewer than
// minimumWorkflowSize get wiped and regenerated, anything else is left
// alone. Delete and regenerate share one transaction so an interrupted run
// never leaves a project with no workflow at all. Returns the number of
// projects updated.
func (e Engine) EnsureDefaultWorkflows(ctx context.Context, actorID string) (int, error) {
	projects, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, p := range projects {
		count, err := e.Repo.CountTransitions(ctx, p.ID)
		if err != nil {
			return updated, err
		}
		if count >= minimumWorkflowSize {
			continue
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return updated, err
		}
		if count > 0 {
			if err := e.Repo.DeleteTransitionsForProject(ctx, tx, p.ID); err != nil {
				tx.Rollback()
				return updated, err
			}
		}
		if err := e.createDefaultTransitionsTx(ctx, tx, p.ID); err != nil {
			tx.Rollback()
			return updated, err
		}
		if err := e.Events.Append(ctx, tx, "workflow.defaults.applied", p.ID, "project", p.ID, actorID, events.EventPayload{"previous_count": count}); err != nil {
			tx.Rollback()
			return updated, err
		}
		if err := tx.Commit(); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// ValidateWorkflow lints a project's transition graph. Orphan status
// references are errors; dead ends, unreachable statuses and duplicate edges
// are warnings. Warnings never make the report invalid.
func (e Engine) ValidateWorkflow(ctx context.Context, projectID string) (domain.WorkflowReport, error) {
	report := domain.WorkflowReport{Errors: []string{}, Warnings: []string{}}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return report, err
	}
	statuses, err := e.Repo.ListStatuses(ctx)
	if err != nil {
		return report, err
	}
	transitions, err := e.Repo.ListTransitionsByProject(ctx, projectID)
	if err != nil {
		return report, err
	}

	known := map[string]domain.Status{}
	for _, s := range statuses {
		known[s.ID] = s
	}

	outgoing := map[string][]string{}
	seen := map[string]int{}
	for _, t := range transitions {
		if _, ok := known[t.FromStatusID]; !ok {
			report.Errors = append(report.Errors, fmt.Sprintf("transition %q (%d) references missing status %s", t.Name, t.ID, t.FromStatusID))
		}
		if _, ok := known[t.ToStatusID]; !ok {
			report.Errors = append(report.Errors, fmt.Sprintf("transition %q (%d) references missing status %s", t.Name, t.ID, t.ToStatusID))
		}
		outgoing[t.FromStatusID] = append(outgoing[t.FromStatusID], t.ToStatusID)
		seen[t.FromStatusID+"->"+t.ToStatusID]++
	}
	for _, t := range transitions {
		pair := t.FromStatusID + "->" + t.ToStatusID
		if seen[pair] > 1 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("duplicate transition %s -> %s declared %d times", t.FromStatusID, t.ToStatusID, seen[pair]))
			seen[pair] = 0 // report each pair once
		}
	}

	// dead ends: a done-category status may be terminal, anything else
	// with no way out is probably a configuration mistake
	for _, s := range statuses {
		if s.Category == domain.StatusCategoryDone {
			continue
		}
		if len(outgoing[s.ID]) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("status %s has no outgoing transitions", s.ID))
		}
	}

	// reachability from every todo-category status
	visited := map[string]bool{}
	var queue []string
	for _, s := range statuses {
		if s.Category == domain.StatusCategoryTodo {
			visited[s.ID] = true
			queue = append(queue, s.ID)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range outgoing[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, s := range statuses {
		if !visited[s.ID] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("status %s is unreachable from any todo status", s.ID))
		}
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
