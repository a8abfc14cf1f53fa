// Package app wires configuration, logging and the engine components behind
// the command line surface.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/jgivc/paqmirror/internal/catalog"
	"github.com/jgivc/paqmirror/internal/config"
	"github.com/jgivc/paqmirror/internal/download"
	"github.com/jgivc/paqmirror/internal/entity"
	"github.com/jgivc/paqmirror/internal/notify"
	"github.com/jgivc/paqmirror/internal/pack"
	"github.com/jgivc/paqmirror/internal/repository"
	"github.com/jgivc/paqmirror/internal/service/mirror"
)

const (
	cacheIndexFileName = "index.db"

	httpTimeout = 10 * time.Minute
)

type App struct {
	cfgPath string
	repoDir string
	cfg     *config.Config
	log     *slog.Logger

	store     *repository.Store
	resolver  *catalog.Resolver
	manager   *download.Manager
	assembler *pack.Assembler
	mirror    *mirror.Service
}

func New(cfgPath, repoDir string) *App {
	return &App{
		cfgPath: cfgPath,
		repoDir: repoDir,
	}
}

// Start loads configuration and builds the component graph. It panics on
// broken configuration, nothing useful can run without it.
func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	index, err := catalog.OpenCacheIndex(filepath.Join(a.cfg.Catalog.CacheDir, cacheIndexFileName))
	if err != nil {
		panic(err)
	}

	client := &http.Client{Timeout: httpTimeout}

	a.resolver = catalog.NewResolver(client, &catalog.Config{
		CacheDir:             a.cfg.Catalog.CacheDir,
		DefaultReferenceURL:  a.cfg.Catalog.ReferenceURL,
		FallbackReferenceURL: a.cfg.Catalog.FallbackURL,
		Offline:              a.cfg.Catalog.Offline,
	}, index, log)

	a.manager = download.NewManager(client, download.AcceptAllVerifier{}, log)
	if d := a.cfg.Download.RetryDelay(); d > 0 {
		a.manager.SetRetryDelay(d)
	}

	a.store = repository.NewStore(a.repoDir, repository.Base64Sealer{}, log)
	a.assembler = pack.NewAssembler(a.manager, a.repoDir, log)
	a.mirror = mirror.New(a.resolver, a.manager, a.store, notify.NewLog(log),
		a.cfg.RunningOS(), a.cfg.Host.Bitness, log)
}

// Init creates a fresh repository state file in the repository directory.
func (a *App) Init() error {
	_, err := a.store.Init(identity())

	return err
}

func (a *App) AddFilter(f entity.Filter) error {
	st, err := a.store.Load()
	if err != nil {
		return err
	}

	added, err := a.store.AddFilter(st, f, identity())
	if err != nil {
		return err
	}
	if !added {
		fmt.Println("Filter already present, nothing to do.")

		return nil
	}

	fmt.Println("Filter added.")

	return nil
}

// FindFilters lists the persisted filters matching the removal query, the
// first half of the match-confirm-delete protocol.
func (a *App) FindFilters(query entity.Filter) ([]entity.Filter, error) {
	st, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	return a.store.FindFilters(st, query), nil
}

func (a *App) RemoveFilters(query entity.Filter) (int, error) {
	st, err := a.store.Load()
	if err != nil {
		return 0, err
	}

	return a.store.RemoveFilters(st, query, identity())
}

func (a *App) ListFilters() ([]entity.Filter, error) {
	st, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	return st.Filters, nil
}

// Sync runs one full mirror pass over the repository.
func (a *App) Sync(ctx context.Context) error {
	res, err := a.mirror.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Selected %d, downloaded %d, failed %d, removed %d orphaned package(s).\n",
		res.Selected, res.Downloaded, res.Failed, res.Orphans)

	return nil
}

// Build resolves a catalog request and assembles the selected packages into
// a driver pack.
func (a *App) Build(ctx context.Context, req catalog.Request, opts pack.Options) error {
	osSpec := req.OS

	var records []entity.CatalogRecord
	if req.Latest {
		combo, recs, err := a.resolver.ResolveLatest(ctx, req)
		if err != nil {
			return err
		}
		records, osSpec = recs, combo.OS
	} else {
		recs, err := a.resolver.Resolve(ctx, req)
		if err != nil {
			return err
		}
		records = recs
	}

	if len(records) == 0 {
		return fmt.Errorf("no packages match the request")
	}

	target, err := a.assembler.BuildPack(ctx, records, osSpec, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Built %s: %d package(s), %d skipped.\n",
		target.Path, len(target.Included), len(target.Skipped))
	for _, note := range target.Skipped {
		fmt.Printf("  skipped %s: %s\n", note.ID, note.Reason)
	}

	return nil
}

// Report writes the repository content report to w in the persisted format.
func (a *App) Report(w io.Writer) error {
	st, err := a.store.Load()
	if err != nil {
		return err
	}

	rows, err := a.store.BuildReport()
	if err != nil {
		return err
	}

	return a.store.WriteReport(w, rows, st.Settings.ReportFormat)
}

func identity() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		return name
	}

	return name + "@" + host
}
