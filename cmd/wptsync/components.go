package main

import (
	"context"
	"fmt"
	"log"

	"github.com/wptsync/wptsync/internal/buildtool"
	"github.com/wptsync/wptsync/internal/config"
	"github.com/wptsync/wptsync/internal/downstream"
	"github.com/wptsync/wptsync/internal/events"
	"github.com/wptsync/wptsync/internal/routing"
	"github.com/wptsync/wptsync/internal/store"
	"github.com/wptsync/wptsync/internal/tracker"
	"github.com/wptsync/wptsync/internal/translate"
	"github.com/wptsync/wptsync/internal/vcs/git"
	"github.com/wptsync/wptsync/internal/workspace"
)

// components is the wired-up sync engine shared by the serve and run
// commands.
type components struct {
	db      *store.DB
	tracker tracker.Tracker
	orch    *downstream.Orchestrator
	intake  *downstream.Intake
	reactor *events.Reactor
}

// buildComponents opens the state store and constructs the engine from the
// configuration. The caller owns closing the returned store.
func buildComponents(ctx context.Context, cfg *config.Config, logger *log.Logger) (*components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	source, err := git.New(cfg.Source.Name, cfg.Source.Root)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("source repository %s: %w", cfg.Source.Root, err)
	}
	target, err := git.New(cfg.Target.Name, cfg.Target.Root)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("target repository %s: %w", cfg.Target.Root, err)
	}

	manager := workspace.New(source, target, logger)
	tr := tracker.NewLogTracker(logger)

	orch := downstream.New(downstream.Deps{
		DB:         db,
		Config:     cfg,
		Source:     source,
		Target:     target,
		Workspaces: manager,
		Translator: translate.New(cfg.PathPrefix, logger),
		Tracker:    tr,
		NewManifestUpdater: func(root string) downstream.ManifestUpdater {
			return buildtool.NewMach(root, logger)
		},
		NewChangeLister: func(root string) downstream.ChangeLister {
			return buildtool.NewWPT(root, logger)
		},
		NewPathClassifier: func(root string) routing.PathClassifier {
			return buildtool.NewMach(root, logger)
		},
		Logger: logger,
	})

	return &components{
		db:      db,
		tracker: tr,
		orch:    orch,
		intake:  downstream.NewIntake(db, tr, cfg, logger),
		reactor: events.NewReactor(cfg.CIContext, manager, orch, logger),
	}, nil
}

// lookupSync finds the downstream sync for a change request.
func lookupSync(ctx context.Context, db *store.DB, repoName string, prID int) (*store.Sync, error) {
	var s *store.Sync
	err := db.WithTx(ctx, func(tx *store.Tx) error {
		repo, err := tx.GetOrCreateRepository(ctx, repoName)
		if err != nil {
			return err
		}
		s, err = tx.GetSyncByPR(ctx, repo.ID, prID, store.DirectionDownstream)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
