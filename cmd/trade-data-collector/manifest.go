package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/blueogin/trade-data-collector/internal/config"
	"github.com/blueogin/trade-data-collector/internal/storage"
)

// openManifest opens the configured manifest and selects a run: runID, or the latest one.
func openManifest(ctx context.Context, cfg *config.Config, runID string) (*storage.Store, storage.Run, error) {
	path := cfg.Collector.ManifestPath
	if path == "" {
		return nil, storage.Run{}, errors.New("collector.manifest_path is not configured")
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, storage.Run{}, fmt.Errorf("open manifest: %w", err)
	}

	var (
		run storage.Run
		ok  bool
	)
	if runID != "" {
		run, ok, err = store.GetRun(ctx, runID)
	} else {
		run, ok, err = store.LatestRun(ctx)
	}
	if err != nil {
		store.Close()
		return nil, storage.Run{}, err
	}
	if !ok {
		store.Close()
		if runID != "" {
			return nil, storage.Run{}, fmt.Errorf("run %s not found", runID)
		}
		return nil, storage.Run{}, errors.New("no runs recorded")
	}
	return store, run, nil
}
