package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flowline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- users ---

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,email,global_role,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, nullable(u.Email), string(u.GlobalRole), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var email sql.NullString
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,global_role,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &email, &role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if email.Valid {
		u.Email = email.String
	}
	// an unknown stored role degrades to the weakest global role
	if parsed, ok := domain.ParseGlobalRole(role); ok {
		u.GlobalRole = parsed
	} else {
		u.GlobalRole = domain.GlobalRoleUser
	}
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(email,''),global_role,created_at FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt); err != nil {
			return nil, err
		}
		if parsed, ok := domain.ParseGlobalRole(role); ok {
			u.GlobalRole = parsed
		} else {
			u.GlobalRole = domain.GlobalRoleUser
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) SetUserGlobalRole(ctx context.Context, id string, role domain.GlobalRole) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET global_role=? WHERE id=?`, string(role), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- teams ---

func (r Repo) InsertTeam(ctx context.Context, t domain.Team) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO teams(id,slug,name,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Slug, t.Name, t.CreatedAt)
	return err
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	var t domain.Team
	err := r.DB.QueryRowContext(ctx, `SELECT id,slug,name,created_at FROM teams WHERE id=?`, id).
		Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,slug,name,created_at FROM teams ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTeam(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM teams WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertTeamMember keeps at most one role per (team, user) pair.
func (r Repo) UpsertTeamMember(ctx context.Context, m domain.TeamMember) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO team_members(team_id,user_id,role) VALUES (?,?,?)
ON CONFLICT(team_id,user_id) DO UPDATE SET role=excluded.role`, m.TeamID, m.UserID, string(m.Role))
	return err
}

func (r Repo) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=? AND user_id=?`, teamID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTeamMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT team_id,user_id,role FROM team_members WHERE team_id=? ORDER BY user_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		var role string
		if err := rows.Scan(&m.TeamID, &m.UserID, &role); err != nil {
			return nil, err
		}
		m.Role = domain.TeamRole(role)
		res = append(res, m)
	}
	return res, rows.Err()
}

// TeamRoleOf returns the user's role in a team, or absence.
func (r Repo) TeamRoleOf(ctx context.Context, teamID, userID string) (string, bool, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM team_members WHERE team_id=? AND user_id=?`, teamID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,key,name,description,team_id,lead_id,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Key, p.Name, nullable(p.Description), nullableStringPtr(p.TeamID), nullableStringPtr(p.LeadID), p.CreatedAt)
	return err
}

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var desc, teamID, leadID sql.NullString
	err := scan(&p.ID, &p.Key, &p.Name, &desc, &teamID, &leadID, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if teamID.Valid {
		p.TeamID = &teamID.String
	}
	if leadID.Valid {
		p.LeadID = &leadID.String
	}
	return p, nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,key,name,description,team_id,lead_id,created_at FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,key,name,description,team_id,lead_id,created_at FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, id string, name, description *string, leadID *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if leadID != nil {
		fields = append(fields, "lead_id=?")
		args = append(args, nullable(*leadID))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertProjectMember keeps at most one direct role per (project, user) pair.
func (r Repo) UpsertProjectMember(ctx context.Context, m domain.ProjectMember) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO project_members(project_id,user_id,role) VALUES (?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.UserID, string(m.Role))
	return err
}

func (r Repo) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProjectMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,user_id,role FROM project_members WHERE project_id=? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		var role string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &role); err != nil {
			return nil, err
		}
		m.Role = domain.ProjectRole(role)
		res = append(res, m)
	}
	return res, rows.Err()
}

// ProjectRoleOf returns the user's direct role in a project, or absence.
func (r Repo) ProjectRoleOf(ctx context.Context, projectID, userID string) (string, bool, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

// --- statuses ---

func (r Repo) UpsertStatus(ctx context.Context, tx *sql.Tx, s domain.Status) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO statuses(id,name,category,position) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, category=excluded.category, position=excluded.position`,
		s.ID, s.Name, string(s.Category), s.Position)
	return err
}

func (r Repo) GetStatus(ctx context.Context, id string) (domain.Status, error) {
	var s domain.Status
	var cat string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,category,position FROM statuses WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &cat, &s.Position)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.Category = domain.StatusCategory(cat)
	return s, err
}

func (r Repo) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,category,position FROM statuses ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Status
	for rows.Next() {
		var s domain.Status
		var cat string
		if err := rows.Scan(&s.ID, &s.Name, &cat, &s.Position); err != nil {
			return nil, err
		}
		s.Category = domain.StatusCategory(cat)
		res = append(res, s)
	}
	return res, rows.Err()
}

// DefaultStatus is where new issues land: the first todo-category status.
func (r Repo) DefaultStatus(ctx context.Context) (domain.Status, error) {
	var s domain.Status
	var cat string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,category,position FROM statuses WHERE category='todo' ORDER BY position, id LIMIT 1`).
		Scan(&s.ID, &s.Name, &cat, &s.Position)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.Category = domain.StatusCategory(cat)
	return s, err
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
