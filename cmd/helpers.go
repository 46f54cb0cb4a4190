package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bricodata/retail-cli/internal/service"
	"github.com/bricodata/retail-cli/internal/store"
)

// initStore opens and migrates the configured run-history store.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

// newService builds a Service with the run-history store attached when
// it can be opened; prediction commands still work without one.
func newService(ctx context.Context) (*service.Service, func(), error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(cfg, st)
	return svc, func() { _ = st.Close() }, nil
}

// writeReport marshals v as YAML to path.
func writeReport(path string, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "report: marshal")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: mkdir %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// clampNonNegative floors display values at zero. The model itself does
// not clamp; sales cannot go negative in a report.
func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
