// Package app wires a workspace into a running engine for the CLI and server.
package app

import (
	"database/sql"

	"workdesk/internal/config"
	"workdesk/internal/db"
	"workdesk/internal/engine"
	"workdesk/internal/migrate"
)

// ResolveConfig loads workdesk.yml from the workspace, falling back to the
// built-in defaults when no file exists.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.Default(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Open opens the workspace database, applies migrations, and builds an engine
// with the resolved config. The caller owns the returned connection.
func Open(workspace string) (*sql.DB, engine.Engine, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	cfg, err := ResolveConfig(workspace)
	if err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	return conn, engine.New(conn, cfg), nil
}
