// Package app wires the workspace database, migrations, config, and engine
// together for the CLI and server entrypoints.
package app

import (
	"context"
	"database/sql"

	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/engine"
	"flowline/internal/migrate"
)

// Setup opens the workspace database, applies migrations, loads config (the
// built-in defaults when flowline.yml is absent), and seeds statuses and
// permission grants. The caller owns the returned DB handle.
func Setup(ctx context.Context, workspace string) (*sql.DB, engine.Engine, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	e := engine.New(conn, cfg)
	if err := e.Seed(ctx); err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	return conn, e, nil
}
