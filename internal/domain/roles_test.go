package domain_test

import (
	"testing"

	"flowline/internal/domain"
)

func TestParseRolesRejectUnknown(t *testing.T) {
	if _, ok := domain.ParseGlobalRole("root"); ok {
		t.Fatalf("root is not a global role")
	}
	if _, ok := domain.ParseTeamRole("manager"); ok {
		t.Fatalf("manager is not a team role")
	}
	if _, ok := domain.ParseProjectRole("owner"); ok {
		t.Fatalf("owner is not a project role")
	}
	if _, ok := domain.ParseStatusCategory("blocked"); ok {
		t.Fatalf("blocked is not a status category")
	}
	if r, ok := domain.ParseGlobalRole("super_admin"); !ok || r != domain.GlobalRoleSuperAdmin {
		t.Fatalf("super_admin should parse")
	}
	if r, ok := domain.ParseProjectRole("contributor"); !ok || r != domain.ProjectRoleContributor {
		t.Fatalf("contributor should parse")
	}
}

func TestProjectEquivalent(t *testing.T) {
	cases := []struct {
		team domain.TeamRole
		want domain.ProjectRole
	}{
		{domain.TeamRoleOwner, domain.ProjectRoleAdmin},
		{domain.TeamRoleAdmin, domain.ProjectRoleManager},
		{domain.TeamRoleMember, domain.ProjectRoleContributor},
		{domain.TeamRoleViewer, domain.ProjectRoleViewer},
	}
	for _, tc := range cases {
		got, ok := tc.team.ProjectEquivalent()
		if !ok || got != tc.want {
			t.Fatalf("%s: expected %s, got %s (ok=%v)", tc.team, tc.want, got, ok)
		}
	}
	if _, ok := domain.TeamRole("ghost").ProjectEquivalent(); ok {
		t.Fatalf("unknown team role maps to nothing")
	}
}
