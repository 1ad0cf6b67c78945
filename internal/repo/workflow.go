package repo

import (
	"context"
	"database/sql"

	"flowline/internal/domain"
)

func scanTransitionRow(scan func(dest ...any) error) (domain.WorkflowTransition, error) {
	var t domain.WorkflowTransition
	var desc sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.FromStatusID, &t.ToStatusID, &t.Name, &desc, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return t, nil
}

// InsertTransition adds one edge. No uniqueness is enforced; duplicate edges
// are surfaced by the workflow validator, not rejected here.
func (r Repo) InsertTransition(ctx context.Context, tx *sql.Tx, t domain.WorkflowTransition) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO workflow_transitions(project_id,from_status_id,to_status_id,name,description,created_at) VALUES (?,?,?,?,?,?)`,
		t.ProjectID, t.FromStatusID, t.ToStatusID, t.Name, nullable(t.Description), t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTransition(ctx context.Context, id int64) (domain.WorkflowTransition, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,project_id,from_status_id,to_status_id,name,description,created_at FROM workflow_transitions WHERE id=?`, id)
	return scanTransitionRow(row.Scan)
}

// ListTransitionsByProject returns a project's whole graph in insertion order.
func (r Repo) ListTransitionsByProject(ctx context.Context, projectID string) ([]domain.WorkflowTransition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,from_status_id,to_status_id,name,description,created_at FROM workflow_transitions WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkflowTransition
	for rows.Next() {
		t, err := scanTransitionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTransitionsFrom returns the project's edges leaving one status.
func (r Repo) ListTransitionsFrom(ctx context.Context, projectID, fromStatusID string) ([]domain.WorkflowTransition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,from_status_id,to_status_id,name,description,created_at FROM workflow_transitions WHERE project_id=? AND from_status_id=? ORDER BY id`, projectID, fromStatusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkflowTransition
	for rows.Next() {
		t, err := scanTransitionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTransition(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTransitionsForProject(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE project_id=?`, projectID)
	return err
}

func (r Repo) CountTransitions(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM workflow_transitions WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}
