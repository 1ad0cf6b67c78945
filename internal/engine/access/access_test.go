package access_test

import (
	"context"
	"testing"
	"time"

	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/domain"
	"flowline/internal/engine"
	"flowline/internal/engine/access"
	"flowline/internal/migrate"
)

type testEnv struct {
	Engine  engine.Engine
	Access  access.Service
	Ctx     context.Context
	Team    domain.Team
	Project domain.Project
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
	eng := engine.New(conn, config.Default())
	ctx := context.Background()
	if err := eng.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	team := domain.Team{ID: "team-1", Slug: "core", Name: "Core", CreatedAt: now}
	if err := eng.Repo.InsertTeam(ctx, team); err != nil {
		t.Fatalf("insert team: %v", err)
	}
	project, err := eng.InitProject(ctx, engine.ProjectCreateOptions{
		Key:     "FL",
		Name:    "Flowline",
		TeamID:  team.ID,
		ActorID: "setup",
	})
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	return testEnv{Engine: eng, Access: eng.Access, Ctx: ctx, Team: team, Project: project}
}

func (env testEnv) mustUser(t *testing.T, id string, role domain.GlobalRole) domain.User {
	t.Helper()
	u := domain.User{
		ID:         id,
		Name:       id,
		GlobalRole: role,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := env.Engine.Repo.InsertUser(env.Ctx, u); err != nil {
		t.Fatalf("insert user %s: %v", id, err)
	}
	return u
}

func TestSuperAdminBypassesPermissions(t *testing.T) {
	env := newTestEnv(t)
	root := env.mustUser(t, "root", domain.GlobalRoleSuperAdmin)
	ok, err := env.Access.UserCanOnProject(env.Ctx, root, "workflow.manage", env.Project)
	if err != nil || !ok {
		t.Fatalf("super_admin must pass without membership: ok=%v err=%v", ok, err)
	}
	ok, err = env.Access.UserCanOnTeam(env.Ctx, root, "team.delete", env.Team.ID)
	if err != nil || !ok {
		t.Fatalf("super_admin must pass team checks: ok=%v err=%v", ok, err)
	}
}

func TestNoMembershipNoRole(t *testing.T) {
	env := newTestEnv(t)
	u := env.mustUser(t, "stranger", domain.GlobalRoleUser)
	_, found, err := env.Access.RoleInProject(env.Ctx, u.ID, env.Project)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("stranger should have no project role")
	}
	ok, err := env.Access.UserCanOnProject(env.Ctx, u, "issue.read", env.Project)
	if err != nil || ok {
		t.Fatalf("no role means no permission: ok=%v err=%v", ok, err)
	}
}

func TestTeamRoleMapsToProjectRole(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		teamRole domain.TeamRole
		want     domain.ProjectRole
	}{
		{domain.TeamRoleOwner, domain.ProjectRoleAdmin},
		{domain.TeamRoleAdmin, domain.ProjectRoleManager},
		{domain.TeamRoleMember, domain.ProjectRoleContributor},
		{domain.TeamRoleViewer, domain.ProjectRoleViewer},
	}
	for _, tc := range cases {
		u := env.mustUser(t, "via-"+string(tc.teamRole), domain.GlobalRoleUser)
		if err := env.Engine.Repo.UpsertTeamMember(env.Ctx, domain.TeamMember{
			TeamID: env.Team.ID, UserID: u.ID, Role: tc.teamRole,
		}); err != nil {
			t.Fatal(err)
		}
		role, found, err := env.Access.RoleInProject(env.Ctx, u.ID, env.Project)
		if err != nil {
			t.Fatal(err)
		}
		if !found || role != tc.want {
			t.Fatalf("team %s: expected project %s, got %s (found=%v)", tc.teamRole, tc.want, role, found)
		}
	}
}

func TestDirectProjectRoleWinsOverTeamRole(t *testing.T) {
	env := newTestEnv(t)
	u := env.mustUser(t, "demoted", domain.GlobalRoleUser)
	if err := env.Engine.Repo.UpsertTeamMember(env.Ctx, domain.TeamMember{
		TeamID: env.Team.ID, UserID: u.ID, Role: domain.TeamRoleOwner,
	}); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.UpsertProjectMember(env.Ctx, domain.ProjectMember{
		ProjectID: env.Project.ID, UserID: u.ID, Role: domain.ProjectRoleViewer,
	}); err != nil {
		t.Fatal(err)
	}
	role, found, err := env.Access.RoleInProject(env.Ctx, u.ID, env.Project)
	if err != nil {
		t.Fatal(err)
	}
	if !found || role != domain.ProjectRoleViewer {
		t.Fatalf("direct viewer must override team owner, got %s", role)
	}
	// viewer reads but does not manage
	ok, err := env.Access.UserCanOnProject(env.Ctx, u, "issue.read", env.Project)
	if err != nil || !ok {
		t.Fatalf("viewer should read issues: ok=%v err=%v", ok, err)
	}
	ok, err = env.Access.UserCanOnProject(env.Ctx, u, "workflow.manage", env.Project)
	if err != nil || ok {
		t.Fatalf("viewer must not manage workflow: ok=%v err=%v", ok, err)
	}
}

func TestCanTransition(t *testing.T) {
	env := newTestEnv(t)
	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{
		ProjectID: env.Project.ID,
		Title:     "gated",
		ActorID:   "setup",
	})
	if err != nil {
		t.Fatal(err)
	}
	contributor := env.mustUser(t, "worker", domain.GlobalRoleUser)
	if err := env.Engine.Repo.UpsertProjectMember(env.Ctx, domain.ProjectMember{
		ProjectID: env.Project.ID, UserID: contributor.ID, Role: domain.ProjectRoleContributor,
	}); err != nil {
		t.Fatal(err)
	}
	viewer := env.mustUser(t, "watcher", domain.GlobalRoleUser)
	if err := env.Engine.Repo.UpsertProjectMember(env.Ctx, domain.ProjectMember{
		ProjectID: env.Project.ID, UserID: viewer.ID, Role: domain.ProjectRoleViewer,
	}); err != nil {
		t.Fatal(err)
	}
	ok, err := env.Access.CanTransition(env.Ctx, contributor, issue, "")
	if err != nil || !ok {
		t.Fatalf("contributor should transition: ok=%v err=%v", ok, err)
	}
	ok, err = env.Access.CanTransition(env.Ctx, viewer, issue, "")
	if err != nil || ok {
		t.Fatalf("viewer must not transition: ok=%v err=%v", ok, err)
	}
}

func TestIsProjectOwner(t *testing.T) {
	env := newTestEnv(t)
	lead := env.mustUser(t, "lead", domain.GlobalRoleUser)
	leadID := lead.ID
	project := env.Project
	project.LeadID = &leadID
	ok, err := env.Access.IsProjectOwner(env.Ctx, lead, project)
	if err != nil || !ok {
		t.Fatalf("lead is owner: ok=%v err=%v", ok, err)
	}

	admin := env.mustUser(t, "padmin", domain.GlobalRoleUser)
	if err := env.Engine.Repo.UpsertProjectMember(env.Ctx, domain.ProjectMember{
		ProjectID: env.Project.ID, UserID: admin.ID, Role: domain.ProjectRoleAdmin,
	}); err != nil {
		t.Fatal(err)
	}
	ok, err = env.Access.IsProjectOwner(env.Ctx, admin, env.Project)
	if err != nil || !ok {
		t.Fatalf("project admin is owner: ok=%v err=%v", ok, err)
	}

	towner := env.mustUser(t, "towner", domain.GlobalRoleUser)
	if err := env.Engine.Repo.UpsertTeamMember(env.Ctx, domain.TeamMember{
		TeamID: env.Team.ID, UserID: towner.ID, Role: domain.TeamRoleOwner,
	}); err != nil {
		t.Fatal(err)
	}
	ok, err = env.Access.IsProjectOwner(env.Ctx, towner, env.Project)
	if err != nil || !ok {
		t.Fatalf("team owner is owner: ok=%v err=%v", ok, err)
	}

	member := env.mustUser(t, "member", domain.GlobalRoleUser)
	if err := env.Engine.Repo.UpsertTeamMember(env.Ctx, domain.TeamMember{
		TeamID: env.Team.ID, UserID: member.ID, Role: domain.TeamRoleMember,
	}); err != nil {
		t.Fatal(err)
	}
	ok, err = env.Access.IsProjectOwner(env.Ctx, member, env.Project)
	if err != nil || ok {
		t.Fatalf("team member is not owner: ok=%v err=%v", ok, err)
	}
}
