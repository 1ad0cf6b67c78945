// Package access decides what an authenticated user may do. Roles are
// layered: the global role can bypass everything, a direct project role wins
// over a team-derived one, and the team role maps down to a project
// equivalent only on projects the team owns. Every check re-reads current
// membership, so role changes apply on the next request without any
// invalidation.
package access

import (
	"context"
	"fmt"

	"flowline/internal/domain"
	"flowline/internal/repo"
)

// PermTransition gates issue status moves. Declared here because the
// workflow engine delegates its authorization to this permission.
const PermTransition = "workflow.transition"

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service answers authorization questions against current membership and
// grant rows. All methods are reads; absence of a role or grant is a normal
// false result, never an error.
type Service struct {
	Repo repo.Repo
}

// RoleInProject resolves the user's effective project role. A direct
// membership row always wins; otherwise the owning team's role is mapped
// down via domain.TeamRole.ProjectEquivalent. No role is a normal result.
func (s Service) RoleInProject(ctx context.Context, userID string, project domain.Project) (domain.ProjectRole, bool, error) {
	raw, found, err := s.Repo.ProjectRoleOf(ctx, project.ID, userID)
	if err != nil {
		return "", false, err
	}
	if found {
		role, ok := domain.ParseProjectRole(raw)
		return role, ok, nil
	}
	if project.TeamID == nil {
		return "", false, nil
	}
	teamRole, found, err := s.RoleInTeam(ctx, userID, *project.TeamID)
	if err != nil || !found {
		return "", false, err
	}
	mapped, ok := teamRole.ProjectEquivalent()
	return mapped, ok, nil
}

// RoleInTeam resolves the user's direct team role, with no further fallback.
func (s Service) RoleInTeam(ctx context.Context, userID, teamID string) (domain.TeamRole, bool, error) {
	raw, found, err := s.Repo.TeamRoleOf(ctx, teamID, userID)
	if err != nil || !found {
		return "", false, err
	}
	role, ok := domain.ParseTeamRole(raw)
	return role, ok, nil
}

// UserCanOnProject reports whether the user holds the permission on the
// project. A super_admin global role passes every check unconditionally.
func (s Service) UserCanOnProject(ctx context.Context, user domain.User, permission string, project domain.Project) (bool, error) {
	if user.GlobalRole == domain.GlobalRoleSuperAdmin {
		return true, nil
	}
	role, ok, err := s.RoleInProject(ctx, user.ID, project)
	if err != nil || !ok {
		return false, err
	}
	return s.Repo.IsGranted(ctx, domain.ContextProject, string(role), permission)
}

// UserCanOnTeam is the team-scoped counterpart; direct membership only.
func (s Service) UserCanOnTeam(ctx context.Context, user domain.User, permission string, teamID string) (bool, error) {
	if user.GlobalRole == domain.GlobalRoleSuperAdmin {
		return true, nil
	}
	role, ok, err := s.RoleInTeam(ctx, user.ID, teamID)
	if err != nil || !ok {
		return false, err
	}
	return s.Repo.IsGranted(ctx, domain.ContextTeam, string(role), permission)
}

// CanTransition gates a status move on the issue's project. The target
// status id is accepted but unused: per-edge authorization (for example,
// only managers closing issues) is a reserved extension point.
func (s Service) CanTransition(ctx context.Context, user domain.User, issue domain.Issue, targetStatusID string) (bool, error) {
	_ = targetStatusID
	project, err := s.Repo.GetProject(ctx, issue.ProjectID)
	if err != nil {
		return false, err
	}
	return s.UserCanOnProject(ctx, user, PermTransition, project)
}

// IsProjectOwner is a legacy predicate kept apart from the grant table:
// project lead, direct project admin, or owner of the owning team.
func (s Service) IsProjectOwner(ctx context.Context, user domain.User, project domain.Project) (bool, error) {
	if project.LeadID != nil && *project.LeadID == user.ID {
		return true, nil
	}
	raw, found, err := s.Repo.ProjectRoleOf(ctx, project.ID, user.ID)
	if err != nil {
		return false, err
	}
	if found && domain.ProjectRole(raw) == domain.ProjectRoleAdmin {
		return true, nil
	}
	if project.TeamID == nil {
		return false, nil
	}
	teamRole, found, err := s.RoleInTeam(ctx, user.ID, *project.TeamID)
	if err != nil || !found {
		return false, err
	}
	return teamRole == domain.TeamRoleOwner, nil
}

// RolePermissions is the reverse lookup used by administration views.
func (s Service) RolePermissions(ctx context.Context, scope domain.PermissionContext, role string) ([]string, error) {
	return s.Repo.RolePermissions(ctx, scope, role)
}
