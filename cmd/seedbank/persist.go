package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"seedbank/internal/config"
	"seedbank/internal/db"
	"seedbank/internal/models"
)

// persister writes inventory snapshots to the data directory and, when
// connected, to the database. It only saves when the inventory revision
// moved since the last save.
type persister struct {
	inventory *models.Inventory
	dir       string
	retention int
	database  *db.Database
	logger    *slog.Logger
	saved     uint64
}

func newPersister(inventory *models.Inventory, cfg config.Config, database *db.Database, logger *slog.Logger) *persister {
	return &persister{
		inventory: inventory,
		dir:       cfg.DataDir,
		retention: cfg.SnapshotRetention,
		database:  database,
		logger:    logger,
	}
}

// restore loads the newest database snapshot, falling back to the data
// directory.
func (p *persister) restore(ctx context.Context) error {
	defer func() { p.saved = p.inventory.Revision() }()

	if p.database != nil {
		payload, ok, err := p.database.LatestSnapshot(ctx)
		switch {
		case err != nil:
			p.logger.Warn("database snapshot unavailable", "error", err)
		case ok:
			if err := p.inventory.ImportSnapshotJSON(payload); err != nil {
				return fmt.Errorf("restore database snapshot: %w", err)
			}
			p.logger.Info("inventory restored", "source", "database")
			return nil
		}
	}

	found, err := p.inventory.LoadFrom(p.dir)
	if err != nil {
		return fmt.Errorf("restore snapshot from %s: %w", p.dir, err)
	}
	if found {
		p.logger.Info("inventory restored", "source", "file", "dir", p.dir)
	}
	return nil
}

func (p *persister) save(ctx context.Context) error {
	revision := p.inventory.Revision()
	if revision == p.saved {
		return nil
	}
	if err := p.inventory.SaveToWithRetention(p.dir, p.retention); err != nil {
		return fmt.Errorf("save snapshot file: %w", err)
	}
	if p.database != nil {
		payload, err := json.Marshal(p.inventory.ExportSnapshot())
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := p.database.SaveSnapshot(ctx, payload, p.retention); err != nil {
			return err
		}
	}
	p.saved = revision
	p.logger.Debug("inventory saved", "revision", revision)
	return nil
}

// run saves every interval and once more when ctx ends.
func (p *persister) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.save(finalCtx); err != nil {
				p.logger.Error("final save failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := p.save(ctx); err != nil {
				p.logger.Error("autosave failed", "error", err)
			}
		}
	}
}
