// Package backup writes timestamped snapshots of the catalog document and
// prunes old ones, on demand or on a cron schedule.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/starford/shelf/internal/checksum"
	"github.com/starford/shelf/internal/storage"
)

const stampLayout = "20060102T150405Z"

// Source is the document being backed up. *storage.Document satisfies it.
type Source interface {
	Name() string
	Raw() ([]byte, error)
}

// Result describes one Snapshot call.
type Result struct {
	Path     string `json:"path"`
	Size     int    `json:"size"`
	Checksum string `json:"checksum"`
	// Unchanged is true when the newest snapshot already held the same
	// bytes and nothing was written.
	Unchanged bool `json:"unchanged"`
	Pruned    int  `json:"pruned"`
}

// Snapshotter copies the catalog document into a backup directory.
type Snapshotter struct {
	src    Source
	fs     storage.Provider
	keep   int
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithClock overrides the time source used for snapshot names.
func WithClock(now func() time.Time) Option {
	return func(s *Snapshotter) { s.now = now }
}

// New returns a Snapshotter writing into dir, keeping at most keep snapshots.
// keep <= 0 keeps everything.
func New(src Source, dir string, keep int, logger *slog.Logger, opts ...Option) (*Snapshotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create dir: %w", err)
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	name := src.Name()
	s := &Snapshotter{
		src:    src,
		fs:     fs,
		keep:   keep,
		prefix: strings.TrimSuffix(name, filepath.Ext(name)) + "-",
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the backup directory.
func (s *Snapshotter) Dir() string {
	return s.fs.Root()
}

// Snapshot writes the current document as <stem>-YYYYMMDDTHHMMSSZ.json and
// prunes old snapshots. A document identical to the newest snapshot is not
// written again.
func (s *Snapshotter) Snapshot(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	data, err := s.src.Raw()
	if err != nil {
		return Result{}, fmt.Errorf("backup: read catalog: %w", err)
	}

	existing, err := s.List()
	if err != nil {
		return Result{}, err
	}
	sum := checksum.Sum(data)
	if len(existing) > 0 && existing[0].Checksum == sum {
		s.logger.Debug("backup skipped, catalog unchanged",
			slog.String("latest", existing[0].Path),
			slog.String("checksum", checksum.Short(sum)))
		return Result{Path: filepath.Join(s.Dir(), existing[0].Path), Size: len(data), Checksum: sum, Unchanged: true}, nil
	}

	name := s.prefix + s.now().UTC().Format(stampLayout) + ".json"
	if err := s.fs.Write(name, data); err != nil {
		return Result{}, fmt.Errorf("backup: write %s: %w", name, err)
	}
	pruned, err := s.prune()
	if err != nil {
		s.logger.Warn("backup prune failed", slog.String("error", err.Error()))
	}

	path := filepath.Join(s.Dir(), name)
	s.logger.Info("catalog backed up",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
		slog.String("checksum", checksum.Short(sum)),
		slog.Int("pruned", pruned))
	return Result{Path: path, Size: len(data), Checksum: sum, Pruned: pruned}, nil
}

// List returns the snapshots in the backup directory, newest first.
func (s *Snapshotter) List() ([]storage.FileMeta, error) {
	all, err := s.fs.List(".", ".json")
	if err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}
	out := all[:0]
	for _, m := range all {
		if filepath.Dir(m.Path) == "." && strings.HasPrefix(m.Path, s.prefix) {
			out = append(out, m)
		}
	}
	// Names embed a fixed-width UTC stamp, so lexical order is time order.
	slices.SortFunc(out, func(a, b storage.FileMeta) int { return strings.Compare(b.Path, a.Path) })
	return out, nil
}

func (s *Snapshotter) prune() (int, error) {
	if s.keep <= 0 {
		return 0, nil
	}
	snaps, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(snaps) <= s.keep {
		return 0, nil
	}
	n := 0
	for _, m := range snaps[s.keep:] {
		if err := s.fs.Delete(m.Path); err != nil {
			return n, fmt.Errorf("backup: delete %s: %w", m.Path, err)
		}
		n++
	}
	return n, nil
}
