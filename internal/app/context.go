package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"riskline/internal/catalog"
	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/engine"
	"riskline/internal/migrate"
)

// Workspace is an opened .riskline directory with its inputs resolved.
type Workspace struct {
	Root    string
	DB      *sql.DB
	Config  *config.Config
	Catalog *catalog.Catalog
}

// LoadInputs resolves the config and issue catalog for a workspace. A
// missing riskline.yml falls back to the embedded defaults; an empty
// catalogPath selects the embedded catalog.
func LoadInputs(workspace, catalogPath string) (*config.Config, *catalog.Catalog, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, nil, err
	}
	if catalogPath == "" {
		return cfg, catalog.Default(), nil
	}
	cat, err := catalog.FromFile(catalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	return cfg, cat, nil
}

// Open loads inputs, opens the database and applies pending migrations.
func Open(ctx context.Context, workspace, catalogPath string) (*Workspace, error) {
	cfg, cat, err := LoadInputs(workspace, catalogPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{Root: workspace, DB: conn, Config: cfg, Catalog: cat}, nil
}

func (w *Workspace) Engine(logger *zap.Logger) engine.Engine {
	return engine.New(w.DB, w.Config, w.Catalog, logger)
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
