// Package localfs watches a ready directory on disk for files dropped by
// an external transfer process, claims each one via an atomic rename into
// an in-progress directory (so two sweep ticks never both pick up the same
// file), and moves it to processed/ or error/ as soon as the handler
// returns, according to the handler's error; it does not wait for work the
// handler hands off elsewhere.
package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

// ClaimedFile is a file the sweep has exclusively claimed for processing.
type ClaimedFile struct {
	FileName     string
	InProgressPath string
	Bytes        []byte
}

// Handler processes one claimed file; localfs moves it to processed/ or
// error/ based on the returned error.
type Handler func(ctx context.Context, f ClaimedFile) error

// Watcher periodically sweeps readyDir for new files.
type Watcher struct {
	readyDir      string
	processedDir  string
	errorDir      string
	inProgressDir string
	period        time.Duration
	handler       Handler
	log           zerolog.Logger

	cancel context.CancelFunc
}

func New(cfg *config.Config, handler Handler, log zerolog.Logger) *Watcher {
	return &Watcher{
		readyDir:      cfg.LocalFSReadyDir,
		processedDir:  cfg.LocalFSProcessedDir,
		errorDir:      cfg.LocalFSErrorDir,
		inProgressDir: cfg.LocalFSInProgress,
		period:        cfg.LocalFSSweepPeriod,
		handler:       handler,
		log:           log.With().Str("component", "localfs").Logger(),
	}
}

// Start launches the sweep loop. It creates all four directories if they
// do not already exist.
func (w *Watcher) Start() error {
	for _, dir := range []string{w.readyDir, w.processedDir, w.errorDir, w.inProgressDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure localfs dir %q: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) loop(ctx context.Context) {
	w.sweep(ctx)
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.readyDir)
	if err != nil {
		w.log.Error().Err(err).Msg("read ready directory")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := w.claimAndProcess(ctx, entry.Name()); err != nil {
			w.log.Error().Err(err).Str("file", entry.Name()).Msg("process claimed file")
		}
	}
}

// claimAndProcess renames readyDir/name into inProgressDir/name. The
// rename is the idempotency boundary: if a previous run already moved this
// file, ReadDir would never have listed it again, and if two sweeps race
// on the same tick only one Rename wins (the loser gets ENOENT and skips).
func (w *Watcher) claimAndProcess(ctx context.Context, name string) error {
	src := filepath.Join(w.readyDir, name)
	claimed := filepath.Join(w.inProgressDir, name)

	if err := os.Rename(src, claimed); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("claim %q: %w", name, err)
	}

	bytes, err := os.ReadFile(claimed)
	if err != nil {
		return fmt.Errorf("read claimed file %q: %w", name, err)
	}

	procErr := w.handler(ctx, ClaimedFile{FileName: name, InProgressPath: claimed, Bytes: bytes})
	return w.finalize(claimed, name, procErr)
}

// finalize moves a processed file to processedDir on success, or to
// errorDir with a sidecar ".reason.txt" file describing the failure.
func (w *Watcher) finalize(claimedPath, name string, procErr error) error {
	if procErr == nil {
		dest := filepath.Join(w.processedDir, name)
		return os.Rename(claimedPath, dest)
	}

	dest := filepath.Join(w.errorDir, name)
	if err := os.Rename(claimedPath, dest); err != nil {
		return fmt.Errorf("move failed file %q to error dir: %w", name, err)
	}
	reasonPath := dest + ".reason.txt"
	_ = os.WriteFile(reasonPath, []byte(procErr.Error()+"\n"), 0o644)
	return nil
}
