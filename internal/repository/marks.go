package repository

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/entity"
)

// markDirName holds one zero-byte file per package selected by the most
// recent completed sync. Existence is the whole signal.
const markDirName = ".mark"

func (s *Store) markDir() string { return filepath.Join(s.dir, markDirName) }

// FlushMarks deletes every existing mark. Runs at the start of a sync so a
// sync with zero matching filters leaves an empty mark set and the cleanup
// pass can flush all local content.
func (s *Store) FlushMarks() error {
	entries, err := afero.ReadDir(s.fs, s.markDir())
	if err != nil {
		if err := s.fs.MkdirAll(s.markDir(), 0o755); err != nil {
			return fmt.Errorf("cannot create mark dir: %w", err)
		}

		return nil
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entity.MarkExt) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.markDir(), e.Name())); err != nil {
			return fmt.Errorf("cannot flush mark %s: %w", e.Name(), err)
		}
	}

	return nil
}

// WriteMark records a package as selected by the current sync.
func (s *Store) WriteMark(id entity.PackageID) error {
	if err := s.fs.MkdirAll(s.markDir(), 0o755); err != nil {
		return fmt.Errorf("cannot create mark dir: %w", err)
	}

	if err := afero.WriteFile(s.fs, filepath.Join(s.markDir(), id.MarkName()), nil, 0o644); err != nil {
		return fmt.Errorf("cannot write mark for %s: %w", id, err)
	}

	return nil
}

// Marks returns the set of currently marked package ids.
func (s *Store) Marks() (map[entity.PackageID]struct{}, error) {
	out := make(map[entity.PackageID]struct{})

	entries, err := afero.ReadDir(s.fs, s.markDir())
	if err != nil {
		return out, nil
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entity.MarkExt) {
			continue
		}

		id, err := entity.ParsePackageID(strings.TrimSuffix(e.Name(), entity.MarkExt))
		if err != nil {
			continue
		}
		out[id] = struct{}{}
	}

	return out, nil
}

// Cleanup is the orphan-removal pass: every local package file whose id has
// no mark is deleted. Marks are consulted, never deleted here. Returns the
// number of orphaned packages removed.
func (s *Store) Cleanup() (int, error) {
	marks, err := s.Marks()
	if err != nil {
		return 0, err
	}

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return 0, fmt.Errorf("cannot scan repository dir: %w", err)
	}

	orphans := make(map[entity.PackageID][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		id, ok := entity.PackageIDFromFileName(e.Name())
		if !ok {
			continue
		}
		if _, marked := marks[id]; marked {
			continue
		}

		orphans[id] = append(orphans[id], e.Name())
	}

	for id, files := range orphans {
		for _, name := range files {
			if err := s.fs.Remove(filepath.Join(s.dir, name)); err != nil {
				return 0, fmt.Errorf("cannot delete orphan %s: %w", name, err)
			}
		}
		s.log.Info("Deleted orphaned package", slog.String("id", id.String()), slog.Int("files", len(files)))
	}

	return len(orphans), nil
}
