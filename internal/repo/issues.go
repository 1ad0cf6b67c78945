package repo

import (
	"context"
	"database/sql"
	"strings"

	"flowline/internal/domain"
)

func scanIssueRow(scan func(dest ...any) error) (domain.Issue, error) {
	var i domain.Issue
	var desc, assignee sql.NullString
	err := scan(&i.ID, &i.ProjectID, &i.StatusID, &i.Title, &desc, &assignee, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	if err != nil {
		return i, err
	}
	if desc.Valid {
		i.Description = desc.String
	}
	if assignee.Valid {
		i.AssigneeID = &assignee.String
	}
	return i, nil
}

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO issues(id,project_id,status_id,title,description,assignee_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		i.ID, i.ProjectID, i.StatusID, i.Title, nullable(i.Description), nullableStringPtr(i.AssigneeID), i.CreatedAt, i.UpdatedAt)
	return err
}

func (r Repo) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,project_id,status_id,title,description,assignee_id,created_at,updated_at FROM issues WHERE id=?`, id)
	return scanIssueRow(row.Scan)
}

type IssueFilters struct {
	ProjectID  string
	StatusID   string
	AssigneeID string
	Limit      int
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.Issue, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.StatusID != "" {
		clauses = append(clauses, "status_id=?")
		args = append(args, f.StatusID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,project_id,status_id,title,description,assignee_id,created_at,updated_at FROM issues ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		i, err := scanIssueRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) error {
	res, err := tx.ExecContext(ctx, `UPDATE issues SET title=?, description=?, assignee_id=?, updated_at=? WHERE id=?`,
		i.Title, nullable(i.Description), nullableStringPtr(i.AssigneeID), i.UpdatedAt, i.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateIssueStatus moves an issue only if it is still at expectedStatusID.
// Returns false when another writer changed the status first.
func (r Repo) UpdateIssueStatus(ctx context.Context, tx *sql.Tx, issueID, expectedStatusID, newStatusID, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE issues SET status_id=?, updated_at=? WHERE id=? AND status_id=?`,
		newStatusID, updatedAt, issueID, expectedStatusID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) DeleteIssue(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM issues WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountIssuesByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status_id, count(*) FROM issues WHERE project_id=? GROUP BY status_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// --- labels ---

func (r Repo) InsertLabel(ctx context.Context, l domain.Label) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO labels(id,project_id,name,color) VALUES (?,?,?,?)`,
		l.ID, l.ProjectID, l.Name, nullable(l.Color))
	return err
}

func (r Repo) ListLabels(ctx context.Context, projectID string) ([]domain.Label, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,COALESCE(color,'') FROM labels WHERE project_id=? ORDER BY name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Label
	for rows.Next() {
		var l domain.Label
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) GetLabel(ctx context.Context, id string) (domain.Label, error) {
	var l domain.Label
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,COALESCE(color,'') FROM labels WHERE id=?`, id).
		Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) DeleteLabel(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM labels WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AttachLabel(ctx context.Context, issueID, labelID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO issue_labels(issue_id,label_id) VALUES (?,?)`, issueID, labelID)
	return err
}

func (r Repo) DetachLabel(ctx context.Context, issueID, labelID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM issue_labels WHERE issue_id=? AND label_id=?`, issueID, labelID)
	return err
}

func (r Repo) ListIssueLabels(ctx context.Context, issueID string) ([]domain.Label, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT l.id,l.project_id,l.name,COALESCE(l.color,'')
FROM issue_labels il JOIN labels l ON l.id=il.label_id
WHERE il.issue_id=? ORDER BY l.name`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Label
	for rows.Next() {
		var l domain.Label
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
