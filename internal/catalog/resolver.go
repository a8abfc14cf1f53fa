// Package catalog resolves, caches and parses the per-platform update
// catalogs published on the vendor reference host.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/entity"
	"github.com/jgivc/paqmirror/internal/filter"
)

// Request describes one catalog resolution. Latest probes the supported
// combination list newest-first and is mutually exclusive with explicit
// OS/Bitness parameters. An OS without a concrete version runs the same
// probe restricted to that OS name. Offline forces cache-only resolution
// for this request even when the resolver itself is online. Filters are
// applied inline before returning.
type Request struct {
	Platform     string
	OS           entity.OSSpec
	Bitness      string
	PreferLTSC   bool
	Offline      bool
	ReferenceURL string
	Latest       bool
	Filters      []entity.Filter
}

// Config carries the resolver's fixed endpoints and cache location.
type Config struct {
	CacheDir             string
	DefaultReferenceURL  string
	FallbackReferenceURL string
	Offline              bool
}

type Resolver struct {
	fs     afero.Fs
	client *http.Client
	cfg    *Config
	index  *CacheIndex
	log    *slog.Logger
	now    func() time.Time
}

func NewResolver(client *http.Client, cfg *Config, index *CacheIndex, log *slog.Logger) *Resolver {
	return NewResolverWithFS(afero.NewOsFs(), client, cfg, index, log)
}

func NewResolverWithFS(fs afero.Fs, client *http.Client, cfg *Config, index *CacheIndex, log *slog.Logger) *Resolver {
	return &Resolver{
		fs:     fs,
		client: client,
		cfg:    cfg,
		index:  index,
		log:    log.With(slog.String("item", "CatalogResolver")),
		now:    time.Now,
	}
}

// Resolve fetches and parses the catalog(s) matching the request, applies
// the request filters inline and dedups by package id.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]entity.CatalogRecord, error) {
	if !entity.ValidPlatformID(req.Platform) {
		return nil, common.Ef(common.ErrConfiguration, "catalog.Resolve",
			"invalid platform id %q", req.Platform)
	}

	if req.Latest {
		if !req.OS.IsZero() || req.Bitness != "" {
			return nil, common.Ef(common.ErrConfiguration, "catalog.Resolve",
				"latest supported os mode cannot be combined with explicit os/version/bitness")
		}

		return r.resolveLatest(ctx, req)
	}

	if req.OS.AnyVersion() {
		// A version-less os is a valid state-file form, resolved to the
		// newest supported version of that os name.
		_, records, err := r.probeCombos(ctx, req, func(c Combo) bool {
			return c.OS.Name == req.OS.Name && c.Bitness == req.Bitness
		})

		return records, err
	}

	if err := ValidateCombo(req.OS, req.Bitness); err != nil {
		return nil, err
	}

	return r.resolveCombo(ctx, req, Combo{OS: req.OS, Bitness: req.Bitness})
}

func (r *Resolver) resolveLatest(ctx context.Context, req Request) ([]entity.CatalogRecord, error) {
	_, records, err := r.ResolveLatest(ctx, req)

	return records, err
}

// ResolveLatest probes the supported combination list newest-first and
// returns the first combination that has a catalog, together with its
// records. Callers that route content by operating system need the combo.
func (r *Resolver) ResolveLatest(ctx context.Context, req Request) (Combo, []entity.CatalogRecord, error) {
	if !entity.ValidPlatformID(req.Platform) {
		return Combo{}, nil, common.Ef(common.ErrConfiguration, "catalog.Resolve",
			"invalid platform id %q", req.Platform)
	}

	return r.probeCombos(ctx, req, func(Combo) bool { return true })
}

// probeCombos walks the supported combination list newest-first, restricted
// by accept, until one combination yields a catalog.
func (r *Resolver) probeCombos(ctx context.Context, req Request, accept func(Combo) bool) (Combo, []entity.CatalogRecord, error) {
	probed := false

	for _, combo := range supportedCombos {
		if !accept(combo) {
			continue
		}
		probed = true

		records, err := r.resolveCombo(ctx, req, combo)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}

			return Combo{}, nil, err
		}

		r.log.Info("Supported os probe hit",
			slog.String("platform", req.Platform),
			slog.String("os", combo.OS.String()),
			slog.String("bitness", combo.Bitness))

		return combo, records, nil
	}

	if !probed {
		return Combo{}, nil, common.Ef(common.ErrUnsupportedCombination, "catalog.Resolve",
			"%s/%s", req.OS.String(), req.Bitness)
	}

	return Combo{}, nil, common.Ef(common.ErrNotFound, "catalog.Resolve",
		"no catalog exists for platform %s in the supported combination list", req.Platform)
}

func (r *Resolver) resolveCombo(ctx context.Context, req Request, combo Combo) ([]entity.CatalogRecord, error) {
	archivePath, err := r.materialize(ctx, req, combo)
	if err != nil {
		return nil, err
	}

	docPath := filepath.Join(r.cfg.CacheDir, DocumentName(filepath.Base(archivePath)))

	if !r.fileExists(docPath) || !wellFormed(r.fs, docPath) {
		if docPath, err = expandArchive(r.fs, archivePath); err != nil {
			return nil, err
		}
	}

	records, err := parseDocument(r.fs, docPath)
	if err != nil {
		// Cache corruption: force one re-expansion from the archive.
		r.log.Warn("Catalog document malformed, forcing re-expansion", slog.String("doc", docPath))

		if docPath, err = expandArchive(r.fs, archivePath); err != nil {
			return nil, err
		}
		if records, err = parseDocument(r.fs, docPath); err != nil {
			return nil, err
		}
	}

	if len(req.Filters) > 0 {
		records = filter.Select(records, req.Filters)
	}

	return entity.DedupRecords(records), nil
}

// materialize makes sure the catalog archive for the request is present in
// the cache, applying the LTSC-variant fallback.
func (r *Resolver) materialize(ctx context.Context, req Request, combo Combo) (string, error) {
	if req.PreferLTSC {
		path, err := r.fetchArchive(ctx, req, combo, true)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return "", err
		}

		r.log.Warn("No ltsc catalog variant, falling back to the primary catalog",
			slog.String("platform", req.Platform), slog.String("os", combo.OS.String()))
	}

	return r.fetchArchive(ctx, req, combo, false)
}

func (r *Resolver) fetchArchive(ctx context.Context, req Request, combo Combo, ltsc bool) (string, error) {
	name := ArchiveName(req.Platform, combo.Bitness, combo.OS, ltsc)
	path := filepath.Join(r.cfg.CacheDir, name)

	if r.cfg.Offline || req.Offline {
		if r.fileExists(path) {
			return path, nil
		}

		return "", common.Ef(common.ErrNotFound, "catalog.fetchArchive",
			"catalog %s is not in the offline cache", name)
	}

	ref := req.ReferenceURL
	custom := ref != "" && ref != r.cfg.DefaultReferenceURL
	if ref == "" {
		ref = r.cfg.DefaultReferenceURL
	}

	url := CatalogURL(ref, req.Platform, combo.Bitness, combo.OS, ltsc)

	err := r.download(ctx, url, name, path)
	if err != nil && !custom {
		// One static fallback host, same path. Never attempted when the
		// caller supplied its own reference host.
		fallback := CatalogURL(r.cfg.FallbackReferenceURL, req.Platform, combo.Bitness, combo.OS, ltsc)
		r.log.Warn("Primary reference host failed, trying fallback host",
			slog.String("url", fallback), slog.Any("error", err))

		err = r.download(ctx, fallback, name, path)
	}
	if err != nil {
		return "", err
	}

	return path, nil
}

// download performs a conditional fetch of one archive into the cache. A
// not-modified answer keeps the cached copy, anything newer purges the
// stale entry before the new bytes are written.
func (r *Resolver) download(ctx context.Context, url, name, path string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("cannot build request: %w", err)
	}

	entry, err := r.index.Get(name)
	if err != nil {
		return err
	}

	if entry != nil && r.fileExists(path) {
		if !entry.LastModified.IsZero() {
			httpReq.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
		}
		if entry.ETag != "" {
			httpReq.Header.Set("If-None-Match", entry.ETag)
		}
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("catalog fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		r.log.Info("Catalog unchanged, keeping cached archive", slog.String("name", name))

		return nil

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return common.Ef(common.ErrNotFound, "catalog.download", "%s", url)

	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("catalog fetch failed: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("cannot read catalog body: %w", err)
	}

	// Purge the stale entry before the refetch lands.
	if r.fileExists(path) {
		_ = r.fs.Remove(path)
		_ = r.fs.Remove(filepath.Join(r.cfg.CacheDir, DocumentName(name)))
		_ = r.index.Delete(name)
	}

	if err := r.fs.MkdirAll(r.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("cannot create cache dir: %w", err)
	}
	if err := afero.WriteFile(r.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write catalog archive: %w", err)
	}

	newEntry := &CacheEntry{
		FileName:  name,
		ETag:      resp.Header.Get("ETag"),
		FetchedAt: r.now(),
		Size:      int64(len(data)),
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		newEntry.LastModified = lm
	}

	return r.index.Put(newEntry)
}

func (r *Resolver) fileExists(path string) bool {
	_, err := r.fs.Stat(path)

	return err == nil
}
