// Package downstream implements the downstream sync pipeline: intake of
// new change requests and the state-machine pass that ports their commits
// into the target tree.
package downstream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/wptsync/wptsync/internal/config"
	"github.com/wptsync/wptsync/internal/events"
	"github.com/wptsync/wptsync/internal/store"
	"github.com/wptsync/wptsync/internal/tracker"
)

// Intake turns inbound change-request notifications into sync records.
type Intake struct {
	db      *store.DB
	tracker tracker.Tracker
	cfg     *config.Config
	logger  *log.Logger
}

// NewIntake creates an Intake. If logger is nil, a default logger writing
// to stderr is used.
func NewIntake(db *store.DB, tr tracker.Tracker, cfg *config.Config, logger *log.Logger) *Intake {
	if logger == nil {
		logger = log.New(os.Stderr, "[intake] ", log.LstdFlags)
	}
	return &Intake{db: db, tracker: tr, cfg: cfg, logger: logger}
}

// NewChangeRequest creates a sync record and its tracker issue for an
// inbound change request.
//
// Record and issue are co-transactional: a store failure before commit
// means the issue creation is rolled back with it, so no orphaned issues
// exist without a backing sync record. A change request that already has a
// sync is a no-op returning the existing record.
func (i *Intake) NewChangeRequest(ctx context.Context, ev events.ChangeRequestEvent) (*store.Sync, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var s *store.Sync
	err := i.db.WithTx(ctx, func(tx *store.Tx) error {
		repo, err := tx.GetOrCreateRepository(ctx, i.cfg.Source.Name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStateStore, err)
		}

		s, err = tx.CreateSync(ctx, repo.ID, ev.Number, store.DirectionDownstream)
		if errors.Is(err, store.ErrSyncExists) {
			s, err = tx.GetSyncByPR(ctx, repo.ID, ev.Number, store.DirectionDownstream)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStateStore, err)
			}
			i.logger.Printf("Sync %d already tracks PR %d", s.ID, ev.Number)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStateStore, err)
		}

		summary := fmt.Sprintf("[wpt-sync] PR %d - %s", ev.Number, ev.Title)
		bug, err := i.tracker.Create(ctx, summary, ev.Body, i.cfg.DefaultProduct, i.cfg.DefaultComponent)
		if err != nil {
			return fmt.Errorf("failed to create tracker issue for PR %d: %w", ev.Number, err)
		}

		if err := tx.SetBug(ctx, s.ID, bug); err != nil {
			return fmt.Errorf("%w: %v", ErrStateStore, err)
		}
		s.Bug = bug

		i.logger.Printf("Created sync %d for PR %d with issue %d", s.ID, ev.Number, bug)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}
