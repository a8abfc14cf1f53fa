// Package repository persists the declarative repository state and the
// ephemeral mark set used to detect orphaned local files after a sync.
package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/entity"
	"github.com/jgivc/paqmirror/internal/filter"
)

type Store struct {
	fs     afero.Fs
	dir    string
	sealer Sealer
	log    *slog.Logger
	now    func() time.Time
}

func NewStore(dir string, sealer Sealer, log *slog.Logger) *Store {
	return NewStoreWithFS(afero.NewOsFs(), dir, sealer, log)
}

func NewStoreWithFS(fs afero.Fs, dir string, sealer Sealer, log *slog.Logger) *Store {
	if sealer == nil {
		sealer = Base64Sealer{}
	}

	return &Store{
		fs:     fs,
		dir:    dir,
		sealer: sealer,
		log:    log.With(slog.String("item", "RepositoryStore")),
		now:    time.Now,
	}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) statePath() string { return filepath.Join(s.dir, stateFileName) }

// Init creates a fresh repository state in the directory. Fails if the
// directory already holds one.
func (s *Store) Init(createdBy string) (*entity.RepositoryState, error) {
	if _, err := s.fs.Stat(s.statePath()); err == nil {
		return nil, common.Ef(common.ErrConfiguration, "repository.Init",
			"repository already initialized in %s", s.dir)
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create repository dir: %w", err)
	}

	now := s.now()
	st := &entity.RepositoryState{
		Settings:       entity.Settings{},
		CreatedAt:      now,
		CreatedBy:      createdBy,
		LastModifiedAt: now,
		ModifiedBy:     createdBy,
	}
	st.Settings.ApplyDefaults()

	if err := s.Save(st); err != nil {
		return nil, err
	}

	s.log.Info("Repository initialized", slog.String("dir", s.dir))

	return st, nil
}

// Load reads the state file, applying defaults for settings absent from
// older files.
func (s *Store) Load() (*entity.RepositoryState, error) {
	data, err := afero.ReadFile(s.fs, s.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.Ef(common.ErrConfiguration, "repository.Load",
				"no repository in %s, run init first", s.dir)
		}

		return nil, fmt.Errorf("cannot read state file: %w", err)
	}

	var in stateFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, common.E(common.ErrConfiguration, "repository.Load", err)
	}

	return stateFromFile(&in, s.sealer)
}

// Save writes the state file atomically as a whole document: temp file in
// the same directory, then rename. A failed save leaves the previous state
// intact.
func (s *Store) Save(st *entity.RepositoryState) error {
	st.LastModifiedAt = s.now()

	out, err := stateToFile(st, s.sealer)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal state: %w", err)
	}

	tmp := s.statePath() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("cannot write state file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.statePath()); err != nil {
		_ = s.fs.Remove(tmp)

		return fmt.Errorf("cannot replace state file: %w", err)
	}

	return nil
}

// AddFilter inserts a filter unless an exact duplicate is already present.
// Duplicates are rejected silently: the state is unchanged and false is
// returned.
func (s *Store) AddFilter(st *entity.RepositoryState, f entity.Filter, modifiedBy string) (bool, error) {
	f.Normalize()

	for _, existing := range st.Filters {
		if existing.Equal(f) {
			s.log.Info("Filter already present, skipping",
				slog.String("platform", f.Platform), slog.String("os", f.OS.String()))

			return false, nil
		}
	}

	st.Filters = append(st.Filters, f)
	st.ModifiedBy = modifiedBy

	return true, s.Save(st)
}

// FindFilters is the match half of the removal protocol: it returns the
// filters a permissive query matches, leaving the state untouched so the
// caller can confirm before deleting.
func (s *Store) FindFilters(st *entity.RepositoryState, query entity.Filter) []entity.Filter {
	query.Normalize()

	var out []entity.Filter
	for _, existing := range st.Filters {
		if filter.MatchForRemoval(existing, query) {
			out = append(out, existing)
		}
	}

	return out
}

// RemoveFilters is the delete half of the removal protocol, dropping every
// filter the query matches. Returns the number removed.
func (s *Store) RemoveFilters(st *entity.RepositoryState, query entity.Filter, modifiedBy string) (int, error) {
	query.Normalize()

	kept := st.Filters[:0:0]
	removed := 0

	for _, existing := range st.Filters {
		if filter.MatchForRemoval(existing, query) {
			removed++

			continue
		}
		kept = append(kept, existing)
	}

	if removed == 0 {
		return 0, nil
	}

	st.Filters = kept
	st.ModifiedBy = modifiedBy

	return removed, s.Save(st)
}
