package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"archscore/internal/config"
	"archscore/internal/db"
	"archscore/internal/engine"
	"archscore/internal/heuristics"
	"archscore/internal/migrate"
)

type Options struct {
	// RequireConfig fails when archscore.yml is missing instead of using
	// defaults.
	RequireConfig bool
	// LogOutput receives log records; stderr when nil.
	LogOutput io.Writer
}

// App is an opened workspace: a migrated database and an engine wired from
// archscore.yml.
type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	Logger    *slog.Logger
}

// Open resolves the workspace config, opens and migrates the database, and
// loads the heuristics table named by the config.
func Open(ctx context.Context, workspace string, opts Options) (*App, error) {
	cfg, err := resolveConfig(workspace, opts.RequireConfig)
	if err != nil {
		return nil, err
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := cfg.NewLogger(out)

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng, err := engine.New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	eng.Logger = logger
	if path := cfg.HeuristicsPath(workspace); path != "" {
		p, err := heuristics.LoadProvider(path)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("load heuristics %s: %w", path, err)
		}
		eng.Defaults = p
	}
	return &App{Workspace: workspace, DB: conn, Config: cfg, Engine: eng, Logger: logger}, nil
}

func resolveConfig(workspace string, required bool) (*config.Config, error) {
	if required {
		return config.Load(workspace)
	}
	return config.LoadOptional(workspace)
}

// WatchHeuristics reloads the engine's defaults table whenever the configured
// file changes. It returns immediately when watching is disabled.
func (a *App) WatchHeuristics(ctx context.Context) error {
	path := a.Config.HeuristicsPath(a.Workspace)
	if !a.Config.Heuristics.Watch || path == "" {
		return nil
	}
	return heuristics.Watch(ctx, path, a.Engine.Defaults, a.Logger, func() {
		if err := a.Engine.RecordDefaultsReload(ctx, path); err != nil {
			a.Logger.Warn("record heuristics reload", "err", err)
		}
	})
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
