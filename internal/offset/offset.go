// Package offset persists the poller's next update offset to a local file,
// fixing the non-atomic write the core's original implementation tolerated
// (see SPEC_FULL.md §9 "Atomicity of offset save").
package offset

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cattackle-hq/cattackle-core/internal/errs"
)

const (
	filePerm os.FileMode = 0o644
	dirPerm  os.FileMode = 0o755
)

// Store reads and writes the offset file at Path.
type Store struct {
	Path string
}

// New returns a Store backed by the file at path.
func New(path string) *Store {
	return &Store{Path: path}
}

// Load reads the persisted offset. A missing file, an unreadable file, empty
// content, or malformed content are all treated as "no offset" (0, nil),
// matching the original's fail-soft load policy (SPEC_FULL.md §4.2).
func (s *Store) Load() (int, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, nil //nolint:nilerr // any read failure is tolerated as no offset
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, nil //nolint:nilerr // malformed content is tolerated as no offset
	}

	return n, nil
}

// Save writes offset atomically: it writes to a temp file in the same
// directory, then renames it over the target path, so a crash mid-write
// never leaves a partially-written offset file.
func (s *Store) Save(offset int) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errs.Wrap(errs.KindOffsetIO, "failed to create offset directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return errs.Wrap(errs.KindOffsetIO, "failed to create temp offset file", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strconv.Itoa(offset) + "\n"); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck

		return errs.Wrap(errs.KindOffsetIO, "failed to write temp offset file", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck

		return errs.Wrap(errs.KindOffsetIO, "failed to close temp offset file", err)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName) //nolint:errcheck

		return errs.Wrap(errs.KindOffsetIO, "failed to set offset file permissions", err)
	}

	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName) //nolint:errcheck

		return errs.Wrap(errs.KindOffsetIO, "failed to rename temp offset file into place", err)
	}

	return nil
}
