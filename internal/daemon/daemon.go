// Package daemon provides the long-running intake process.
//
// Inbound forge notifications arrive as JSON files dropped into a spool
// directory. The daemon:
// 1. Watches the spool directory for new event files
// 2. Debounces rapid drops into batches
// 3. Dispatches change-request events to intake and status events to the reactor
// 4. Handles graceful shutdown
//
// Per-sync serialization rides on the state store's transactions; the
// daemon itself processes files one at a time.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/wptsync/wptsync/internal/events"
	"github.com/wptsync/wptsync/internal/store"
)

// Event types accepted in spool files.
const (
	TypeChangeRequest = "change-request"
	TypeStatus        = "status"
)

// SpoolEvent is the envelope written into a spool file. Exactly one payload
// field matching Type must be set; PR names the change request a status
// event belongs to.
type SpoolEvent struct {
	Type          string                     `json:"type"`
	PR            int                        `json:"pr,omitempty"`
	ChangeRequest *events.ChangeRequestEvent `json:"changeRequest,omitempty"`
	Status        *events.StatusEvent        `json:"status,omitempty"`
}

// ChangeRequestHandler consumes change-request events. downstream.Intake
// satisfies this.
type ChangeRequestHandler interface {
	NewChangeRequest(ctx context.Context, ev events.ChangeRequestEvent) (*store.Sync, error)
}

// StatusHandler consumes CI status events for a sync. events.Reactor
// satisfies this.
type StatusHandler interface {
	OnStatus(ctx context.Context, s *store.Sync, ev events.StatusEvent) error
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long to wait before processing file drops.
	// This batches rapid deliveries together.
	DebounceInterval time.Duration

	// ProcessTimeout bounds the handling of one event file, including any
	// sync pass it triggers. Zero means no bound.
	ProcessTimeout time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches the spool directory and dispatches event files.
type Daemon struct {
	db       *store.DB
	spoolDir string
	repoName string
	intake   ChangeRequestHandler
	reactor  StatusHandler
	config   *Config

	watcher *fsnotify.Watcher

	queueMu sync.Mutex
	queue   map[string]time.Time
}

// New creates a Daemon watching spoolDir. repoName is the source repository
// syncs are recorded under. Use Start() to begin processing.
func New(db *store.DB, spoolDir, repoName string, intake ChangeRequestHandler, reactor StatusHandler, config *Config) (*Daemon, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if spoolDir == "" {
		return nil, fmt.Errorf("spoolDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", spoolDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Daemon{
		db:       db,
		spoolDir: spoolDir,
		repoName: repoName,
		intake:   intake,
		reactor:  reactor,
		config:   config,
		watcher:  watcher,
		queue:    make(map[string]time.Time),
	}, nil
}

// Start runs the daemon until ctx is cancelled or a goroutine fails.
//
// Files already sitting in the spool directory at startup are queued first,
// so events delivered while the daemon was down are not lost.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Watching spool directory %s", d.spoolDir)

	if err := d.queueExisting(); err != nil {
		return err
	}

	if err := d.watcher.Add(d.spoolDir); err != nil {
		return fmt.Errorf("failed to watch spool directory %s: %w", d.spoolDir, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.watchFileEvents(ctx) })
	g.Go(func() error { return d.processQueue(ctx) })

	err := g.Wait()
	if cerr := d.watcher.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// queueExisting queues spool files left over from a previous run.
func (d *Daemon) queueExisting() error {
	entries, err := os.ReadDir(d.spoolDir)
	if err != nil {
		return fmt.Errorf("failed to read spool directory %s: %w", d.spoolDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			d.queueFile(filepath.Join(d.spoolDir, entry.Name()))
		}
	}
	return nil
}

// watchFileEvents converts fsnotify events into queued files.
func (d *Daemon) watchFileEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				d.queueFile(event.Name)
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueFile records a file drop with its arrival time.
func (d *Daemon) queueFile(path string) {
	d.queueMu.Lock()
	d.queue[path] = time.Now()
	d.queueMu.Unlock()
}

// processQueue drains files whose debounce window has passed, oldest first.
func (d *Daemon) processQueue(ctx context.Context) error {
	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			for _, path := range d.takeReady() {
				d.processFile(ctx, path)
			}
		}
	}
}

// takeReady removes and returns the queued files older than the debounce
// window, sorted by path for deterministic ordering within a batch.
func (d *Daemon) takeReady() []string {
	cutoff := time.Now().Add(-d.config.DebounceInterval)

	d.queueMu.Lock()
	var ready []string
	for path, queued := range d.queue {
		if queued.Before(cutoff) {
			ready = append(ready, path)
			delete(d.queue, path)
		}
	}
	d.queueMu.Unlock()

	sort.Strings(ready)
	return ready
}

// processFile dispatches one spool file and removes it. Malformed files are
// logged and removed so they cannot wedge the queue.
func (d *Daemon) processFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			d.config.Logger.Printf("Failed to read %s: %v", path, err)
		}
		return
	}

	var ev SpoolEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		d.config.Logger.Printf("Skipping malformed event file %s: %v", path, err)
		d.remove(path)
		return
	}

	if d.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ProcessTimeout)
		defer cancel()
	}

	if err := d.dispatch(ctx, ev); err != nil {
		d.config.Logger.Printf("Failed to process %s: %v", path, err)
	}
	d.remove(path)
}

// dispatch routes an event to its handler.
func (d *Daemon) dispatch(ctx context.Context, ev SpoolEvent) error {
	switch ev.Type {
	case TypeChangeRequest:
		if ev.ChangeRequest == nil {
			return fmt.Errorf("change-request event has no payload")
		}
		if err := ev.ChangeRequest.Validate(); err != nil {
			return err
		}
		_, err := d.intake.NewChangeRequest(ctx, *ev.ChangeRequest)
		return err

	case TypeStatus:
		if ev.Status == nil {
			return fmt.Errorf("status event has no payload")
		}
		if err := ev.Status.Validate(); err != nil {
			return err
		}
		s, err := d.lookupSync(ctx, ev.PR)
		if errors.Is(err, store.ErrSyncNotFound) {
			d.config.Logger.Printf("No sync tracks PR %d, ignoring status", ev.PR)
			return nil
		}
		if err != nil {
			return err
		}
		return d.reactor.OnStatus(ctx, s, *ev.Status)

	default:
		d.config.Logger.Printf("Ignoring event with unknown type %q", ev.Type)
		return nil
	}
}

// lookupSync finds the downstream sync tracking a change request.
func (d *Daemon) lookupSync(ctx context.Context, prID int) (*store.Sync, error) {
	var s *store.Sync
	err := d.db.WithTx(ctx, func(tx *store.Tx) error {
		repo, err := tx.GetOrCreateRepository(ctx, d.repoName)
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

// remove deletes a processed spool file.
func (d *Daemon) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.config.Logger.Printf("Failed to remove %s: %v", path, err)
	}
}
