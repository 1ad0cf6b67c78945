package repo

import (
	"context"
	"database/sql"

	"flowline/internal/domain"
)

// Permission grants are seeded reference data; the core only reads them.

func (r Repo) SeedGrant(ctx context.Context, tx *sql.Tx, scope domain.PermissionContext, role, permission string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(context,role,permission) VALUES (?,?,?)`,
		string(scope), role, permission)
	return err
}

// IsGranted is a pure existence test: unknown role or permission is false.
func (r Repo) IsGranted(ctx context.Context, scope domain.PermissionContext, role, permission string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM role_permissions WHERE context=? AND role=? AND permission=? LIMIT 1`,
		string(scope), role, permission)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// RolePermissions lists every permission a role carries in a context.
func (r Repo) RolePermissions(ctx context.Context, scope domain.PermissionContext, role string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT permission FROM role_permissions WHERE context=? AND role=? ORDER BY permission`,
		string(scope), role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
