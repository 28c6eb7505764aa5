// Package registry discovers plugin manifests under a directory and exposes
// lookups by plugin+command and by command alone, as described in
// SPEC_FULL.md §4.3.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"
)

const (
	manifestFileName   = "cattackle.toml"
	defaultTimeoutSecs = 30.0
	defaultMaxRetries  = 3
)

var errInvalidManifest = errors.New("invalid plugin manifest")

// Registry holds the current snapshot of discovered plugin manifests. The
// zero value is not usable; construct with New.
type Registry struct {
	dir      string
	log      *slog.Logger
	snapshot atomic.Pointer[map[string]*Manifest]
}

// New returns a Registry that scans dir for plugin manifests. A nil log uses
// slog.Default().
func New(dir string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	r := &Registry{dir: dir, log: log}

	empty := map[string]*Manifest{}
	r.snapshot.Store(&empty)

	return r
}

// Scan walks r.dir two levels deep, treating every subdirectory containing a
// cattackle.toml as a plugin. Malformed manifests are logged and skipped;
// the scan continues. It returns the number of successfully loaded plugins
// and replaces the published snapshot atomically.
func (r *Registry) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.WarnContext(ctx, "cattackles directory not found", "dir", r.dir)

			empty := map[string]*Manifest{}
			r.snapshot.Store(&empty)

			return 0, nil
		}

		return 0, fmt.Errorf("failed to read cattackles directory: %w", err)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*Manifest)
	)

	eg, gctx := errgroup.WithContext(ctx)

	for _, entry := range entries {
		entry := entry
		if !entry.IsDir() {
			continue
		}

		eg.Go(func() error {
			manifest, err := r.loadOne(gctx, entry.Name())
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					r.log.ErrorContext(gctx, "failed to load plugin manifest", "plugin_dir", entry.Name(), "err", err)
				}

				return nil
			}

			mu.Lock()
			defer mu.Unlock()

			if existing, ok := results[manifest.Name]; ok {
				r.log.ErrorContext(gctx, "duplicate plugin name", "name", manifest.Name,
					"dir", manifest.Dir, "other_dir", existing.Dir)

				return nil
			}

			results[manifest.Name] = manifest

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return 0, fmt.Errorf("plugin scan failed: %w", err)
	}

	r.snapshot.Store(&results)

	r.log.DebugContext(ctx, "scanned cattackles directory", "dir", r.dir, "found", len(results))

	return len(results), nil
}

func (r *Registry) loadOne(_ context.Context, subdir string) (*Manifest, error) {
	dir := filepath.Join(r.dir, subdir)
	path := filepath.Join(dir, manifestFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", errInvalidManifest, path, err)
	}

	manifest, err := toManifest(raw, dir)
	if err != nil {
		return nil, err
	}

	return manifest, nil
}

// FindByPluginAndCommand returns the plugin's manifest for an exact
// (plugin, command) match, or (nil, false).
func (r *Registry) FindByPluginAndCommand(plugin, command string) (*Manifest, bool) {
	snapshot := *r.snapshot.Load()

	m, ok := snapshot[plugin]
	if !ok {
		return nil, false
	}

	if _, ok := m.Commands[command]; !ok {
		return nil, false
	}

	return m, true
}

// FindByCommand returns the first plugin (by ascending name) advertising
// command, or (nil, false).
func (r *Registry) FindByCommand(command string) (*Manifest, bool) {
	snapshot := *r.snapshot.Load()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		m := snapshot[name]
		if _, ok := m.Commands[command]; ok {
			return m, true
		}
	}

	return nil, false
}

// All returns a snapshot of every currently-known manifest, for admin
// listing.
func (r *Registry) All() []*Manifest {
	snapshot := *r.snapshot.Load()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}

	sort.Strings(names)

	out := make([]*Manifest, 0, len(names))
	for _, name := range names {
		out = append(out, snapshot[name])
	}

	return out
}
