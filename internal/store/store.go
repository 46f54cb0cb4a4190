// Package store persists training run records behind a driver-agnostic
// interface with SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/bricodata/retail-cli/internal/config"
	"github.com/bricodata/retail-cli/internal/model"
)

// RunFilter specifies criteria for listing training runs.
type RunFilter struct {
	Kind   model.RunKind   `json:"kind,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for training run records.
type Store interface {
	CreateRun(ctx context.Context, kind model.RunKind) (*model.TrainingRun, error)
	CompleteRun(ctx context.Context, runID string, metrics json.RawMessage, artifactPath string) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.TrainingRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.TrainingRun, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the Store selected by the configuration and applies
// migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		s, err = NewSQLite(cfg.Path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
