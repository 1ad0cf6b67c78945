package domain

// Role sets are closed enumerations. Membership rows in storage hold the
// string form; parse at the boundary so an unknown role is absence, not a
// silent match.

type GlobalRole string

const (
	GlobalRoleSuperAdmin GlobalRole = "super_admin"
	GlobalRoleAdmin      GlobalRole = "admin"
	GlobalRoleUser       GlobalRole = "user"
)

func ParseGlobalRole(s string) (GlobalRole, bool) {
	switch GlobalRole(s) {
	case GlobalRoleSuperAdmin, GlobalRoleAdmin, GlobalRoleUser:
		return GlobalRole(s), true
	}
	return "", false
}

type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
	TeamRoleViewer TeamRole = "viewer"
)

func ParseTeamRole(s string) (TeamRole, bool) {
	switch TeamRole(s) {
	case TeamRoleOwner, TeamRoleAdmin, TeamRoleMember, TeamRoleViewer:
		return TeamRole(s), true
	}
	return "", false
}

type ProjectRole string

const (
	ProjectRoleAdmin       ProjectRole = "admin"
	ProjectRoleManager     ProjectRole = "manager"
	ProjectRoleContributor ProjectRole = "contributor"
	ProjectRoleViewer      ProjectRole = "viewer"
)

func ParseProjectRole(s string) (ProjectRole, bool) {
	switch ProjectRole(s) {
	case ProjectRoleAdmin, ProjectRoleManager, ProjectRoleContributor, ProjectRoleViewer:
		return ProjectRole(s), true
	}
	return "", false
}

// teamRoleEquivalents maps a team role to the project role it grants on
// projects owned by that team when the user has no direct project membership.
var teamRoleEquivalents = map[TeamRole]ProjectRole{
	TeamRoleOwner:  ProjectRoleAdmin,
	TeamRoleAdmin:  ProjectRoleManager,
	TeamRoleMember: ProjectRoleContributor,
	TeamRoleViewer: ProjectRoleViewer,
}

// ProjectEquivalent returns the project role a team role maps down to.
// An unrecognized team role maps to no role at all.
func (r TeamRole) ProjectEquivalent() (ProjectRole, bool) {
	pr, ok := teamRoleEquivalents[r]
	return pr, ok
}

type StatusCategory string

const (
	StatusCategoryTodo       StatusCategory = "todo"
	StatusCategoryInProgress StatusCategory = "in_progress"
	StatusCategoryDone       StatusCategory = "done"
)

func ParseStatusCategory(s string) (StatusCategory, bool) {
	switch StatusCategory(s) {
	case StatusCategoryTodo, StatusCategoryInProgress, StatusCategoryDone:
		return StatusCategory(s), true
	}
	return "", false
}

// PermissionContext scopes a grant row to project or team membership.
type PermissionContext string

const (
	ContextProject PermissionContext = "project"
	ContextTeam    PermissionContext = "team"
)
