// Package watcher runs one filesystem watcher per indexed codebase, debounces
// the events it sees, and routes the result into a freshness sync. It never
// decides what to index; it only decides when a sync should happen.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
	"github.com/jamaly87/codebase-semantic-search/pkg/ignore"
)

// ignoreControlFiles are the root-level files whose edits are routed into
// ignore-rule reconciliation instead of an ordinary incremental sync.
var ignoreControlFiles = map[string]bool{
	".satoriignore": true,
	".gitignore":    true,
}

// Synchronizer is the narrow freshness-side dependency the watcher needs.
// internal/freshness.Coordinator satisfies this without either package
// importing the other.
type Synchronizer interface {
	EnsureFreshness(ctx context.Context, path string, opts models.EnsureFreshnessOptions) (models.FreshnessDecision, error)
}

// IgnoreProvider resolves the active ignore matcher for a codebase, so the
// watcher filters events the same way the scanner filters files.
type IgnoreProvider interface {
	ActiveIgnoreMatcher(path string) *ignore.Matcher
}

// StatusProvider resolves a codebase's current snapshot status, so the
// watcher can drop fires against codebases that aren't in a syncable state.
type StatusProvider interface {
	GetInfo(path string) (models.CodebaseInfo, bool)
}

// Subsystem owns one watcher goroutine per registered codebase.
type Subsystem struct {
	cfg    config.WatcherConfig
	sync   Synchronizer
	ign    IgnoreProvider
	status StatusProvider

	mu         sync.Mutex
	codebases  map[string]*codebaseWatcher
	globalDisabled atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

type codebaseWatcher struct {
	root      string
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Subsystem. sync receives the coalesced sync calls; ign
// resolves per-codebase ignore rules; status resolves a codebase's current
// snapshot status so a fire against a not-yet-indexed or failed codebase
// can be dropped before it reaches sync.
func New(cfg config.WatcherConfig, sync Synchronizer, ign IgnoreProvider, status StatusProvider) *Subsystem {
	return &Subsystem{
		cfg:       cfg,
		sync:      sync,
		ign:       ign,
		status:    status,
		codebases: make(map[string]*codebaseWatcher),
	}
}

// Start spawns a watcher for every path in roots, concurrently via an errgroup.
// A failure to start one watcher is logged but does not prevent the others
// from starting.
func (s *Subsystem) Start(ctx context.Context, roots []string) error {
	if !s.cfg.Enabled {
		slog.Info("watcher subsystem disabled by configuration")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	// Watchers are tied to s.ctx, not the errgroup's context: the latter is
	// cancelled as soon as Wait returns.
	g, _ := errgroup.WithContext(s.ctx)
	for _, root := range roots {
		root := root
		g.Go(func() error {
			if err := s.RegisterCodebaseWatcher(s.ctx, root); err != nil {
				slog.Warn("failed to start watcher for codebase", "path", root, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop closes every registered watcher and clears all debounce timers.
func (s *Subsystem) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, cw := range s.codebases {
		cw.cancel()
		cw.debouncer.Stop()
		if cw.fsWatcher != nil {
			_ = cw.fsWatcher.Close()
		}
		delete(s.codebases, path)
	}
}

// RegisterCodebaseWatcher starts watching root, replacing any existing
// watcher for the same path.
func (s *Subsystem) RegisterCodebaseWatcher(ctx context.Context, root string) error {
	if !s.cfg.Enabled || s.globalDisabled.Load() {
		return nil
	}

	s.UnregisterCodebaseWatcher(root)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	cwCtx, cancel := context.WithCancel(ctx)
	cw := &codebaseWatcher{
		root:      absRoot,
		fsWatcher: fsw,
		debouncer: NewDebouncer(time.Duration(s.cfg.DebounceMs) * time.Millisecond),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if err := addRecursive(fsw, absRoot, s.matcherFor(root)); err != nil {
		cancel()
		fsw.Close()
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	s.mu.Lock()
	s.codebases[root] = cw
	s.mu.Unlock()

	go s.runFsnotifyLoop(cwCtx, root, cw)
	go s.forwardDebounced(cwCtx, root, cw)

	return nil
}

// UnregisterCodebaseWatcher stops and removes the watcher for path, if any.
func (s *Subsystem) UnregisterCodebaseWatcher(path string) {
	s.mu.Lock()
	cw, ok := s.codebases[path]
	if ok {
		delete(s.codebases, path)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	cw.cancel()
	cw.debouncer.Stop()
	if cw.fsWatcher != nil {
		_ = cw.fsWatcher.Close()
	}
}

func (s *Subsystem) matcherFor(path string) *ignore.Matcher {
	if s.ign == nil {
		return ignore.New()
	}
	if m := s.ign.ActiveIgnoreMatcher(path); m != nil {
		return m
	}
	return ignore.New()
}

func (s *Subsystem) runFsnotifyLoop(ctx context.Context, path string, cw *codebaseWatcher) {
	defer close(cw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.fsWatcher.Events:
			if !ok {
				return
			}
			s.handleFsnotifyEvent(path, cw, event)
		case err, ok := <-cw.fsWatcher.Errors:
			if !ok {
				return
			}
			s.handleError(path, err)
		}
	}
}

func (s *Subsystem) handleFsnotifyEvent(path string, cw *codebaseWatcher, event fsnotify.Event) {
	relPath, err := filepath.Rel(cw.root, event.Name)
	if err != nil {
		relPath = event.Name
	}
	relPath = filepath.ToSlash(relPath)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if shouldIgnoreWatchPath(relPath, isDir, s.matcherFor(path)) {
		return
	}

	if relPath == ".satoriignore" || relPath == ".gitignore" {
		cw.debouncer.Add(FileEvent{Path: relPath, Operation: OpIgnoreControlChange, Timestamp: time.Now()})
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = cw.fsWatcher.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	cw.debouncer.Add(FileEvent{Path: relPath, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

func (s *Subsystem) handleError(path string, err error) {
	if isENOSPC(err) {
		s.globalDisabled.Store(true)
		slog.Error("filesystem watch limit exhausted, disabling watcher mode globally; falling back to periodic sync", "error", err)
		return
	}
	slog.Warn("watcher error", "path", path, "error", err)
}

func (s *Subsystem) forwardDebounced(ctx context.Context, path string, cw *codebaseWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-cw.debouncer.Output():
			if !ok {
				return
			}
			s.dispatch(ctx, path, events)
		}
	}
}

func (s *Subsystem) dispatch(ctx context.Context, path string, events []FileEvent) {
	if len(events) == 0 {
		return
	}

	if s.status != nil {
		info, ok := s.status.GetInfo(path)
		if !ok || (info.Status != models.StatusIndexed && info.Status != models.StatusSyncCompleted) {
			slog.Debug("dropping watcher fire for non-syncable codebase", "path", path, "status", info.Status)
			return
		}
	}

	ignoreChange := 0
	for _, e := range events {
		if e.Operation == OpIgnoreControlChange {
			ignoreChange++
		}
	}

	opts := models.EnsureFreshnessOptions{MinIntervalMs: 0, CoalescedEdits: len(events)}
	if ignoreChange > 0 {
		opts.Reason = "ignore_change"
	}

	if _, err := s.sync.EnsureFreshness(ctx, path, opts); err != nil {
		slog.Warn("watcher-triggered freshness sync failed", "path", path, "error", err)
	}
}

// isENOSPC reports whether err is caused by the host exhausting its inotify
// watch descriptor limit, the one error that takes down watching entirely
// rather than just one event.
func isENOSPC(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

// addRecursive registers every non-ignored directory under root with fsw.
func addRecursive(fsw *fsnotify.Watcher, root string, matcher *ignore.Matcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(root, path)
		relPath = filepath.ToSlash(relPath)
		if relPath == "." {
			return fsw.Add(path)
		}
		if shouldIgnoreWatchPath(relPath, true, matcher) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// shouldIgnoreWatchPath implements the watcher's event filter: paths outside
// the root are ignored, root-level ignore-control files are always allowed
// through regardless of hidden-file rules, any other hidden path component
// is ignored, and everything else defers to matcher.
func shouldIgnoreWatchPath(relPath string, isDir bool, matcher *ignore.Matcher) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	if strings.HasPrefix(relPath, "..") {
		return true
	}
	if ignoreControlFiles[relPath] {
		return false
	}
	for _, part := range strings.Split(relPath, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	if matcher == nil {
		return false
	}
	return matcher.Match(relPath, isDir) || matcher.Match(relPath+"/", true)
}
