package mirror

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/paqmirror/internal/catalog"
	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/download"
	"github.com/jgivc/paqmirror/internal/entity"
	"github.com/jgivc/paqmirror/internal/repository"
)

var runningOS = entity.OSSpec{Name: entity.OSNameWin11, Version: "23H2"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fakeResolver struct {
	records  map[string][]entity.CatalogRecord
	err      error
	requests []catalog.Request
}

func (r *fakeResolver) Resolve(_ context.Context, req catalog.Request) ([]entity.CatalogRecord, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}

	return r.records[req.Platform], nil
}

type fakeFetcher struct {
	fs     afero.Fs
	failID entity.PackageID
	err    error
	calls  []entity.PackageID
}

func (f *fakeFetcher) FetchPackage(_ context.Context, rec *entity.CatalogRecord, dir string, _ download.Options) (download.Result, error) {
	f.calls = append(f.calls, rec.ID)
	if rec.ID == f.failID && f.err != nil {
		return download.Result{}, f.err
	}

	for _, name := range []string{rec.ID.BinaryName(), rec.ID.MetadataName()} {
		if err := afero.WriteFile(f.fs, dir+"/"+name, []byte("content"), 0o644); err != nil {
			return download.Result{}, err
		}
	}

	return download.Result{Verified: true}, nil
}

type captureNotifier struct {
	subjects []string
}

func (n *captureNotifier) Notify(_ context.Context, subject, _ string) error {
	n.subjects = append(n.subjects, subject)

	return nil
}

type env struct {
	fs       afero.Fs
	store    *repository.Store
	resolver *fakeResolver
	fetcher  *fakeFetcher
	notifier *captureNotifier
	service  *Service
	state    *entity.RepositoryState
}

func newEnv(t *testing.T, records []entity.CatalogRecord) *env {
	t.Helper()

	mem := afero.NewMemMapFs()
	store := repository.NewStoreWithFS(mem, "/repo", nil, discardLogger())

	st, err := store.Init("tester")
	require.NoError(t, err)

	f := entity.Filter{
		Platform:   "8a2f",
		OS:         entity.OSSpec{Name: entity.Wildcard},
		Categories: []entity.Category{entity.CategoryDriver},
	}
	_, err = store.AddFilter(st, f, "tester")
	require.NoError(t, err)

	e := &env{
		fs:       mem,
		store:    store,
		resolver: &fakeResolver{records: map[string][]entity.CatalogRecord{"8a2f": records}},
		fetcher:  &fakeFetcher{fs: mem},
		notifier: &captureNotifier{},
		state:    st,
	}
	e.service = New(e.resolver, e.fetcher, store, e.notifier, runningOS, catalog.Bitness64, discardLogger())

	return e
}

func testRecords() []entity.CatalogRecord {
	return []entity.CatalogRecord{
		{ID: 100, Name: "Audio", Category: "Driver - Audio"},
		{ID: 200, Name: "Graphics", Category: "Driver - Graphics"},
		{ID: 300, Name: "Chipset", Category: "Driver - Chipset"},
	}
}

func TestSync(t *testing.T) {
	e := newEnv(t, testRecords())

	res, err := e.service.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Selected)
	require.Equal(t, 3, res.Downloaded)
	require.Zero(t, res.Failed)
	require.Zero(t, res.Orphans)
	require.Equal(t, []entity.PackageID{100, 200, 300}, e.fetcher.calls)

	// The wildcard os resolved to the running machine.
	require.Len(t, e.resolver.requests, 1)
	require.Equal(t, runningOS, e.resolver.requests[0].OS)

	marks, err := e.store.Marks()
	require.NoError(t, err)
	require.Len(t, marks, 3)
}

func TestSyncRemovesOrphans(t *testing.T) {
	e := newEnv(t, testRecords())

	// A leftover from an earlier, wider filter set.
	require.NoError(t, afero.WriteFile(e.fs, "/repo/sp999.exe", []byte("stale"), 0o644))
	require.NoError(t, afero.WriteFile(e.fs, "/repo/sp999.cva", []byte("stale"), 0o644))

	res, err := e.service.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Orphans)

	_, err = e.fs.Stat("/repo/sp999.exe")
	require.Error(t, err)
	_, err = e.fs.Stat("/repo/sp100.exe")
	require.NoError(t, err)
}

func TestSyncIsIdempotent(t *testing.T) {
	e := newEnv(t, testRecords())

	for i := 0; i < 2; i++ {
		res, err := e.service.Sync(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, res.Downloaded)
		require.Zero(t, res.Orphans)
	}

	marks, err := e.store.Marks()
	require.NoError(t, err)
	require.Len(t, marks, 3)
}

func TestSyncCatalogNotFound(t *testing.T) {
	t.Run("fail policy aborts", func(t *testing.T) {
		e := newEnv(t, nil)
		e.resolver.err = common.Ef(common.ErrNotFound, "catalog.Resolve", "gone")

		_, err := e.service.Sync(context.Background())
		require.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("log-and-continue proceeds and notifies", func(t *testing.T) {
		e := newEnv(t, nil)
		e.resolver.err = common.Ef(common.ErrNotFound, "catalog.Resolve", "gone")

		e.state.Settings.OnRemoteFileNotFound = entity.NotFoundLogAndContinue
		require.NoError(t, e.store.Save(e.state))

		res, err := e.service.Sync(context.Background())
		require.NoError(t, err)
		require.Zero(t, res.Selected)
		require.Contains(t, e.notifier.subjects, "catalog missing")
	})
}

func TestSyncPackageNotFound(t *testing.T) {
	t.Run("fail policy aborts", func(t *testing.T) {
		e := newEnv(t, testRecords())
		e.fetcher.failID = 200
		e.fetcher.err = common.Ef(common.ErrNotFound, "download.Fetch", "gone")

		_, err := e.service.Sync(context.Background())
		require.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("log-and-continue skips the package", func(t *testing.T) {
		e := newEnv(t, testRecords())
		e.fetcher.failID = 200
		e.fetcher.err = common.Ef(common.ErrNotFound, "download.Fetch", "gone")

		e.state.Settings.OnRemoteFileNotFound = entity.NotFoundLogAndContinue
		require.NoError(t, e.store.Save(e.state))

		res, err := e.service.Sync(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, res.Downloaded)
		require.Equal(t, 1, res.Failed)
		require.Contains(t, e.notifier.subjects, "package missing")

		marks, err := e.store.Marks()
		require.NoError(t, err)
		require.Contains(t, marks, entity.PackageID(200), "a selected package keeps its mark even when the fetch fails")
	})
}

func TestSyncKeepsFilesWhenUpstreamDisappears(t *testing.T) {
	e := newEnv(t, testRecords())

	_, err := e.service.Sync(context.Background())
	require.NoError(t, err)

	// The package vanished upstream but is still selected, the local
	// copies from the first sync must survive the second one.
	e.fetcher.failID = 100
	e.fetcher.err = common.Ef(common.ErrNotFound, "download.Fetch", "gone")
	e.state.Settings.OnRemoteFileNotFound = entity.NotFoundLogAndContinue
	require.NoError(t, e.store.Save(e.state))

	res, err := e.service.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Selected)
	require.Equal(t, 2, res.Downloaded)
	require.Equal(t, 1, res.Failed)
	require.Zero(t, res.Orphans)

	exists, err := afero.Exists(e.fs, "/repo/sp100.exe")
	require.NoError(t, err)
	require.True(t, exists)

	marks, err := e.store.Marks()
	require.NoError(t, err)
	require.Contains(t, marks, entity.PackageID(100))
}

func TestSyncHonorsOfflineCacheMode(t *testing.T) {
	e := newEnv(t, testRecords())

	e.state.Settings.OfflineCacheMode = entity.CacheEnable
	require.NoError(t, e.store.Save(e.state))

	_, err := e.service.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, e.resolver.requests, 1)
	require.True(t, e.resolver.requests[0].Offline,
		"the persisted cache mode drives cache-only catalog resolution")
}

func TestSyncSignatureFailureNeverAborts(t *testing.T) {
	e := newEnv(t, testRecords())
	e.fetcher.failID = 100
	e.fetcher.err = common.Ef(common.ErrSignatureInvalid, "download.Fetch", "bad signature")

	res, err := e.service.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Downloaded)
	require.Equal(t, 1, res.Failed)
	require.Contains(t, e.notifier.subjects, "signature verification failed")
}

func TestSyncGroupsFiltersPerRequest(t *testing.T) {
	e := newEnv(t, testRecords())

	// Second filter, same platform and os: one catalog scan serves both.
	f := entity.Filter{
		Platform:   "8a2f",
		OS:         entity.OSSpec{Name: entity.Wildcard},
		Categories: []entity.Category{entity.CategoryBIOS},
	}
	_, err := e.store.AddFilter(e.state, f, "tester")
	require.NoError(t, err)

	_, err = e.service.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, e.resolver.requests, 1)
	require.Len(t, e.resolver.requests[0].Filters, 2)
}

func TestSyncDedupsAcrossPlatforms(t *testing.T) {
	e := newEnv(t, testRecords())

	// A second platform whose catalog shares a package id with the first.
	f := entity.Filter{
		Platform:   "80fc",
		OS:         entity.OSSpec{Name: entity.Wildcard},
		Categories: []entity.Category{entity.CategoryDriver},
	}
	_, err := e.store.AddFilter(e.state, f, "tester")
	require.NoError(t, err)
	e.resolver.records["80fc"] = []entity.CatalogRecord{
		{ID: 100, Name: "Audio", Category: "Driver - Audio"},
		{ID: 400, Name: "Dock", Category: "Driver - Dock"},
	}

	res, err := e.service.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, e.resolver.requests, 2)
	require.Equal(t, 4, res.Selected, "sp100 appears in both catalogs but counts once")
	require.Equal(t, 4, res.Downloaded)
}
