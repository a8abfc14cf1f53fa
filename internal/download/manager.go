// Package download fetches package binaries and metadata into the shared
// repository directory, with bounded retries for lock contention and
// signature verification of executable payloads.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/entity"
)

// OverwritePolicy decides what happens when the target file already exists.
type OverwritePolicy int

const (
	// NoOverwrite refuses an existing target, the default.
	NoOverwrite OverwritePolicy = iota
	// ForceOverwrite replaces an existing target.
	ForceOverwrite
	// SkipIfExists silently keeps an existing target.
	SkipIfExists
)

// Verifier is the external signature-verification capability. The engine
// only consumes the boolean outcome, crypto internals live outside.
type Verifier interface {
	Verify(path string) (bool, error)
}

// AcceptAllVerifier trusts every file, for callers that wire no platform
// verification capability.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) Verify(string) (bool, error) { return true, nil }

// Options control a single fetch.
type Options struct {
	Overwrite          OverwritePolicy
	MaxRetries         int
	SkipSignatureCheck bool
	// KeepInvalid downgrades a failed signature check to a warning and
	// retains the file.
	KeepInvalid bool
}

// Result reports what a fetch did.
type Result struct {
	Path     string
	Skipped  bool
	Verified bool
	Warning  string
}

type Manager struct {
	fs       afero.Fs
	client   *http.Client
	verifier Verifier
	delay    time.Duration
	log      *slog.Logger
}

func NewManager(client *http.Client, verifier Verifier, log *slog.Logger) *Manager {
	return NewManagerWithFS(afero.NewOsFs(), client, verifier, log)
}

func NewManagerWithFS(fs afero.Fs, client *http.Client, verifier Verifier, log *slog.Logger) *Manager {
	if verifier == nil {
		verifier = AcceptAllVerifier{}
	}

	return &Manager{
		fs:       fs,
		client:   client,
		verifier: verifier,
		delay:    DefaultRetryDelay,
		log:      log.With(slog.String("item", "DownloadManager")),
	}
}

// SetRetryDelay overrides the fixed pause between contention retries.
func (m *Manager) SetRetryDelay(d time.Duration) { m.delay = d }

// Fetch downloads url into targetPath honoring the overwrite policy,
// retrying on lock contention and verifying the signature of executable
// targets.
func (m *Manager) Fetch(ctx context.Context, url, targetPath string, opts Options) (Result, error) {
	res := Result{Path: targetPath}

	exists := m.fileExists(targetPath)
	switch opts.Overwrite {
	case SkipIfExists:
		if exists {
			res.Skipped = true
			res.Verified = true

			return res, nil
		}
	case NoOverwrite:
		if exists {
			return res, common.Ef(common.ErrTargetExists, "download.Fetch", "%s", targetPath)
		}
	case ForceOverwrite:
	}

	policy := NewRetryPolicy(opts.MaxRetries, m.delay)
	err := policy.Do(ctx, m.log, func() error {
		return m.downloadOnce(ctx, url, targetPath)
	})
	if err != nil {
		return res, err
	}

	if opts.SkipSignatureCheck {
		res.Verified = true

		return res, nil
	}

	return m.verify(res, targetPath, opts.KeepInvalid)
}

func (m *Manager) verify(res Result, targetPath string, keepInvalid bool) (Result, error) {
	ok, err := m.verifier.Verify(targetPath)
	if err != nil {
		return res, fmt.Errorf("cannot verify %s: %w", targetPath, err)
	}

	if ok {
		res.Verified = true

		return res, nil
	}

	if keepInvalid {
		res.Warning = fmt.Sprintf("signature of %s is invalid, file kept on request", filepath.Base(targetPath))
		m.log.Warn("Keeping file with invalid signature", slog.String("path", targetPath))

		return res, nil
	}

	// Drop the binary together with its paired metadata file.
	m.log.Error("Signature verification failed, deleting file", slog.String("path", targetPath))
	_ = m.fs.Remove(targetPath)

	if id, ok := entity.PackageIDFromFileName(filepath.Base(targetPath)); ok {
		_ = m.fs.Remove(filepath.Join(filepath.Dir(targetPath), id.MetadataName()))
	}

	return res, common.Ef(common.ErrSignatureInvalid, "download.Fetch", "%s", targetPath)
}

func (m *Manager) downloadOnce(ctx context.Context, url, targetPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("cannot build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return common.Ef(common.ErrNotFound, "download.Fetch", "%s", url)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("download failed: unexpected status %s", resp.Status)
	}

	if err := m.fs.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("cannot create target dir: %w", err)
	}

	// Exclusive-open semantics are the only shared-directory lock: a
	// concurrent writer holding the file surfaces here as contention.
	f, err := m.fs.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()

	if copyErr != nil {
		_ = m.fs.Remove(targetPath)

		return fmt.Errorf("cannot write target: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("cannot close target: %w", closeErr)
	}

	return nil
}

// FetchPackage downloads one catalog record into dir: the binary under the
// caller's overwrite policy with signature verification, the metadata and
// release-notes files always refetched and overwritten. Metadata staleness
// cannot be detected short of refetching, so the policy never applies to it.
func (m *Manager) FetchPackage(ctx context.Context, rec *entity.CatalogRecord, dir string, opts Options) (Result, error) {
	res, err := m.Fetch(ctx, rec.URL, filepath.Join(dir, rec.ID.BinaryName()), opts)
	if err != nil {
		return res, err
	}

	metaOpts := Options{
		Overwrite:          ForceOverwrite,
		MaxRetries:         opts.MaxRetries,
		SkipSignatureCheck: true,
	}

	if rec.MetadataURL != "" {
		if _, err := m.Fetch(ctx, rec.MetadataURL, filepath.Join(dir, rec.ID.MetadataName()), metaOpts); err != nil {
			return res, err
		}
	}

	if rec.ReleaseNotesURL != "" {
		if _, err := m.Fetch(ctx, rec.ReleaseNotesURL, filepath.Join(dir, rec.ID.ReleaseNotesName()), metaOpts); err != nil {
			return res, err
		}
	}

	return res, nil
}

func (m *Manager) fileExists(path string) bool {
	_, err := m.fs.Stat(path)

	return err == nil
}
