package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/domain"
	"flowline/internal/engine"
	"flowline/internal/migrate"
	"flowline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) mustProject(t *testing.T, key string) domain.Project {
	t.Helper()
	p, err := env.Engine.InitProject(env.Ctx, engine.ProjectCreateOptions{
		Key:     key,
		Name:    "Project " + key,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("init project %s: %v", key, err)
	}
	return p
}

func (env testEnv) transitionByName(t *testing.T, projectID, name string) domain.WorkflowTransition {
	t.Helper()
	items, err := env.Engine.ProjectTransitions(env.Ctx, projectID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	for _, tr := range items {
		if tr.Name == name {
			return tr
		}
	}
	t.Fatalf("transition %q not found", name)
	return domain.WorkflowTransition{}
}

func TestInitProjectSeedsDefaultWorkflow(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	items, err := env.Engine.ProjectTransitions(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 default transitions, got %d", len(items))
	}
	env.transitionByName(t, p.ID, "Start Progress")
	env.transitionByName(t, p.ID, "Finish")
	env.transitionByName(t, p.ID, "Stop Progress")
	env.transitionByName(t, p.ID, "Reopen")
}

func TestIssueLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{
		ProjectID: p.ID,
		Title:     "Do work",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if issue.StatusID != "todo" {
		t.Fatalf("new issue should start at todo, got %s", issue.StatusID)
	}

	start := env.transitionByName(t, p.ID, "Start Progress")
	issue, err = env.Engine.PerformTransition(env.Ctx, issue.ID, start.ID, "tester")
	if err != nil || issue.StatusID != "in_progress" {
		t.Fatalf("to in_progress: status=%s err=%v", issue.StatusID, err)
	}
	finish := env.transitionByName(t, p.ID, "Finish")
	issue, err = env.Engine.PerformTransition(env.Ctx, issue.ID, finish.ID, "tester")
	if err != nil || issue.StatusID != "done" {
		t.Fatalf("to done: status=%s err=%v", issue.StatusID, err)
	}
	reopen := env.transitionByName(t, p.ID, "Reopen")
	issue, err = env.Engine.PerformTransition(env.Ctx, issue.ID, reopen.ID, "tester")
	if err != nil || issue.StatusID != "todo" {
		t.Fatalf("reopen: status=%s err=%v", issue.StatusID, err)
	}
}

func TestAvailableTransitionsFollowCurrentStatus(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{ProjectID: p.ID, Title: "x", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	items, err := env.Engine.AvailableTransitions(env.Ctx, issue.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Start Progress" {
		t.Fatalf("expected only Start Progress from todo, got %v", items)
	}
	if _, err := env.Engine.PerformTransition(env.Ctx, issue.ID, items[0].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	items, err = env.Engine.AvailableTransitions(env.Ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected Finish and Stop Progress from in_progress, got %d", len(items))
	}
}

func TestTransitionPreconditions(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	other := env.mustProject(t, "OT")
	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{ProjectID: p.ID, Title: "x", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}

	// unknown transition id
	_, err = env.Engine.PerformTransition(env.Ctx, issue.ID, 999999, "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// transition from another project's workflow
	foreign := env.transitionByName(t, other.ID, "Start Progress")
	_, err = env.Engine.PerformTransition(env.Ctx, issue.ID, foreign.ID, "tester")
	var terr *engine.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected transition error for foreign edge, got %v", err)
	}

	// transition that does not leave the current status
	finish := env.transitionByName(t, p.ID, "Finish")
	_, err = env.Engine.PerformTransition(env.Ctx, issue.ID, finish.ID, "tester")
	if !errors.As(err, &terr) {
		t.Fatalf("expected transition error for wrong source status, got %v", err)
	}

	// none of the failures may move the issue
	got, err := env.Engine.Repo.GetIssue(env.Ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StatusID != "todo" {
		t.Fatalf("failed transitions must not move the issue, got %s", got.StatusID)
	}
}

func TestOptimisticStatusUpdate(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{ProjectID: p.ID, Title: "x", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	// stale expected status must not match
	moved, err := env.Engine.Repo.UpdateIssueStatus(env.Ctx, tx, issue.ID, "in_progress", "done", now)
	if err != nil {
		t.Fatal(err)
	}
	if moved {
		t.Fatalf("expected no rows for stale expected status")
	}
	moved, err = env.Engine.Repo.UpdateIssueStatus(env.Ctx, tx, issue.ID, "todo", "in_progress", now)
	if err != nil {
		t.Fatal(err)
	}
	if !moved {
		t.Fatalf("expected update from current status")
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureDefaultWorkflows(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Format(time.RFC3339)

	// bare projects bypass InitProject so they start without a workflow
	bare := domain.Project{ID: "p-empty", Key: "PE", Name: "empty", CreatedAt: now}
	if err := env.Engine.Repo.InsertProject(env.Ctx, bare); err != nil {
		t.Fatal(err)
	}
	partial := domain.Project{ID: "p-partial", Key: "PP", Name: "partial", CreatedAt: now}
	if err := env.Engine.Repo.InsertProject(env.Ctx, partial); err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, edge := range [][2]string{{"todo", "in_progress"}, {"in_progress", "done"}} {
		if _, err := env.Engine.Repo.InsertTransition(env.Ctx, tx, domain.WorkflowTransition{
			ProjectID:    partial.ID,
			FromStatusID: edge[0],
			ToStatusID:   edge[1],
			Name:         "edge",
			CreatedAt:    now,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	full := env.mustProject(t, "PF")
	extended := env.mustProject(t, "PX")
	if _, err := env.Engine.CreateTransition(env.Ctx, engine.TransitionCreateOptions{
		ProjectID:    extended.ID,
		FromStatusID: "done",
		ToStatusID:   "in_progress",
		Name:         "Resume",
		ActorID:      "tester",
	}); err != nil {
		t.Fatal(err)
	}

	updated, err := env.Engine.EnsureDefaultWorkflows(env.Ctx, "tester")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 projects repaired, got %d", updated)
	}
	for _, tc := range []struct {
		projectID string
		want      int
	}{
		{bare.ID, 4},
		{partial.ID, 4},
		{full.ID, 4},
		{extended.ID, 5},
	} {
		count, err := env.Engine.Repo.CountTransitions(env.Ctx, tc.projectID)
		if err != nil {
			t.Fatal(err)
		}
		if count != tc.want {
			t.Fatalf("project %s: expected %d transitions, got %d", tc.projectID, tc.want, count)
		}
	}

	// a second run finds nothing to repair
	updated, err = env.Engine.EnsureDefaultWorkflows(env.Ctx, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if updated != 0 {
		t.Fatalf("expected idempotent second run, got %d", updated)
	}
}

func TestValidateWorkflowDefaultGraph(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	report, err := env.Engine.ValidateWorkflow(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Fatalf("default graph should be valid: %v", report.Errors)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("default graph should have no warnings: %v", report.Warnings)
	}
}

func TestValidateWorkflowFindsProblems(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Format(time.RFC3339)
	p := domain.Project{ID: "p-broken", Key: "PB", Name: "broken", CreatedAt: now}
	if err := env.Engine.Repo.InsertProject(env.Ctx, p); err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	edges := []domain.WorkflowTransition{
		{ProjectID: p.ID, FromStatusID: "todo", ToStatusID: "in_progress", Name: "start", CreatedAt: now},
		{ProjectID: p.ID, FromStatusID: "todo", ToStatusID: "in_progress", Name: "start again", CreatedAt: now},
		{ProjectID: p.ID, FromStatusID: "todo", ToStatusID: "ghost", Name: "orphan", CreatedAt: now},
	}
	for _, e := range edges {
		if _, err := env.Engine.Repo.InsertTransition(env.Ctx, tx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	report, err := env.Engine.ValidateWorkflow(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatalf("orphan reference must invalidate the graph")
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected one orphan error, got %v", report.Errors)
	}
	// duplicate todo->in_progress, in_progress dead end, done unreachable
	if len(report.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %v", report.Warnings)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{ProjectID: p.ID, Title: "evented", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	start := env.transitionByName(t, p.ID, "Start Progress")
	if _, err := env.Engine.PerformTransition(env.Ctx, issue.ID, start.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, p.ID, "", "issue", issue.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected created and transitioned events, got %d", len(events))
	}
	if events[0].Type != "issue.transitioned" {
		t.Fatalf("expected newest first, got %s", events[0].Type)
	}
}

func TestDeleteTransition(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustProject(t, "FL")
	reopen := env.transitionByName(t, p.ID, "Reopen")
	if err := env.Engine.DeleteTransition(env.Ctx, reopen.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	count, err := env.Engine.Repo.CountTransitions(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 transitions after delete, got %d", count)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, p.ID, "", "transition", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != "workflow.transition.deleted" {
		t.Fatalf("expected one deletion event, got %v", events)
	}

	// once event writes fail the edge must survive too
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `DROP TABLE events`); err != nil {
		t.Fatal(err)
	}
	finish := env.transitionByName(t, p.ID, "Finish")
	if err := env.Engine.DeleteTransition(env.Ctx, finish.ID, "tester"); err == nil {
		t.Fatalf("expected delete to fail when the event cannot be recorded")
	}
	count, err = env.Engine.Repo.CountTransitions(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("failed delete must keep the edge, got %d transitions", count)
	}
}
