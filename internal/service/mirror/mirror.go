// Package mirror orchestrates one repository sync: state load, filter
// normalization, catalog resolution, package download, mark bookkeeping and
// orphan cleanup, strictly sequential.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jgivc/paqmirror/internal/catalog"
	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/download"
	"github.com/jgivc/paqmirror/internal/entity"
	"github.com/jgivc/paqmirror/internal/filter"
	"github.com/jgivc/paqmirror/internal/notify"
)

type CatalogResolver interface {
	Resolve(ctx context.Context, req catalog.Request) ([]entity.CatalogRecord, error)
}

type PackageFetcher interface {
	FetchPackage(ctx context.Context, rec *entity.CatalogRecord, dir string, opts download.Options) (download.Result, error)
}

type StateStore interface {
	Load() (*entity.RepositoryState, error)
	Dir() string
	FlushMarks() error
	WriteMark(id entity.PackageID) error
	Cleanup() (int, error)
}

// Result summarizes one completed sync.
type Result struct {
	Selected   int
	Downloaded int
	Failed     int
	Orphans    int
}

type Service struct {
	resolver CatalogResolver
	fetcher  PackageFetcher
	store    StateStore
	notifier notify.Notifier
	// runningOS concretizes the "*" OS wildcard on the creation path.
	runningOS entity.OSSpec
	bitness   string
	log       *slog.Logger
}

func New(resolver CatalogResolver, fetcher PackageFetcher, store StateStore, notifier notify.Notifier, runningOS entity.OSSpec, bitness string, log *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if bitness == "" {
		bitness = catalog.Bitness64
	}

	return &Service{
		resolver:  resolver,
		fetcher:   fetcher,
		store:     store,
		notifier:  notifier,
		runningOS: runningOS,
		bitness:   bitness,
		log:       log.With(slog.String("item", "MirrorService")),
	}
}

// Sync runs the full pipeline. Per-package not-found failures follow the
// persisted OnRemoteFileNotFound policy, configuration errors are always
// fatal. Running it twice with unchanged filters and catalogs yields the
// same local file set and mark set.
func (s *Service) Sync(ctx context.Context) (*Result, error) {
	st, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	log := s.log.With(slog.String("run_id", uuid.NewString()))

	filters := filter.NormalizeFilterSet(st.Filters)
	if len(filters) == 0 {
		log.Warn("No filters configured, sync will flush all local content")
	}

	records, err := s.selectRecords(ctx, st, filters, log)
	if err != nil {
		return nil, err
	}

	if err := s.store.FlushMarks(); err != nil {
		return nil, err
	}

	res := &Result{Selected: len(records)}

	opts := download.Options{
		Overwrite:  download.SkipIfExists,
		MaxRetries: st.Settings.ExclusiveLockMaxRetries,
	}

	for i := range records {
		rec := &records[i]

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// A mark records selection, not download success. A package that is
		// still selected but fails to fetch keeps its local files through
		// cleanup.
		if err := s.store.WriteMark(rec.ID); err != nil {
			return nil, err
		}

		if _, err := s.fetcher.FetchPackage(ctx, rec, s.store.Dir(), opts); err != nil {
			if handleErr := s.handlePackageError(ctx, st, rec, err, log); handleErr != nil {
				return nil, handleErr
			}
			res.Failed++

			continue
		}
		res.Downloaded++
	}

	orphans, err := s.store.Cleanup()
	if err != nil {
		return nil, err
	}
	res.Orphans = orphans

	log.Info("Sync finished",
		slog.Int("selected", res.Selected),
		slog.Int("downloaded", res.Downloaded),
		slog.Int("failed", res.Failed),
		slog.Int("orphans", res.Orphans))

	return res, nil
}

// selectRecords resolves every per-platform filter group and merges the
// catalogs, dedup by package id across groups.
func (s *Service) selectRecords(ctx context.Context, st *entity.RepositoryState, filters []entity.Filter, log *slog.Logger) ([]entity.CatalogRecord, error) {
	var all []entity.CatalogRecord

	for _, group := range groupByRequest(filters) {
		req := catalog.Request{
			Platform:   group.platform,
			OS:         filter.ResolveOS(group.os, s.runningOS),
			Bitness:    s.bitness,
			PreferLTSC: group.preferLTSC,
			Offline:    st.Settings.OfflineCacheMode == entity.CacheEnable,
			Filters:    group.filters,
		}

		records, err := s.resolver.Resolve(ctx, req)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) &&
				st.Settings.OnRemoteFileNotFound == entity.NotFoundLogAndContinue {
				log.Warn("Catalog missing, continuing per policy",
					slog.String("platform", group.platform), slog.Any("error", err))
				s.notifyf(ctx, "catalog missing",
					"no catalog for platform %s (%s)", group.platform, group.os)

				continue
			}

			return nil, err
		}

		all = append(all, records...)
	}

	return entity.DedupRecords(all), nil
}

func (s *Service) handlePackageError(ctx context.Context, st *entity.RepositoryState, rec *entity.CatalogRecord, err error, log *slog.Logger) error {
	switch {
	case errors.Is(err, common.ErrSignatureInvalid):
		log.Error("Package failed signature verification", slog.String("id", rec.ID.String()))
		s.notifyf(ctx, "signature verification failed", "package %s (%s)", rec.ID, rec.Name)

		return nil

	case errors.Is(err, common.ErrNotFound):
		if st.Settings.OnRemoteFileNotFound == entity.NotFoundLogAndContinue {
			log.Warn("Remote package missing, continuing per policy", slog.String("id", rec.ID.String()))
			s.notifyf(ctx, "package missing", "package %s (%s) is gone upstream", rec.ID, rec.Name)

			return nil
		}

		return err

	default:
		return err
	}
}

func (s *Service) notifyf(ctx context.Context, subject, format string, args ...any) {
	if err := s.notifier.Notify(ctx, subject, fmt.Sprintf(format, args...)); err != nil {
		s.log.Error("Cannot send notification", slog.Any("error", err))
	}
}

type requestGroup struct {
	platform   string
	os         entity.OSSpec
	preferLTSC bool
	filters    []entity.Filter
}

// groupByRequest batches filters that resolve to the same catalog request,
// preserving declared order of first appearance.
func groupByRequest(filters []entity.Filter) []requestGroup {
	var out []requestGroup

	for _, f := range filters {
		found := false
		for i := range out {
			if out[i].platform == f.Platform && out[i].os == f.OS && out[i].preferLTSC == f.PreferLTSC {
				out[i].filters = append(out[i].filters, f)
				found = true

				break
			}
		}
		if !found {
			out = append(out, requestGroup{
				platform:   f.Platform,
				os:         f.OS,
				preferLTSC: f.PreferLTSC,
				filters:    []entity.Filter{f},
			})
		}
	}

	return out
}
