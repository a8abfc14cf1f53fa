// Package pack assembles a filtered subset of mirrored packages into a
// distributable driver-pack artifact: a folder, a zip, or a disk image.
package pack

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/cva"
	"github.com/jgivc/paqmirror/internal/download"
	"github.com/jgivc/paqmirror/internal/entity"
)

// Format selects the physical output of a build.
type Format string

const (
	FormatNone  Format = "NoCompressedFile"
	FormatZip   Format = "ZIP"
	FormatImage Format = "Image"

	zipExt   = ".zip"
	imageExt = ".wim"

	extractDirName = ".extract"
	partialSuffix  = ".partial"
)

// Fetcher supplies package binaries and metadata, normally the download
// manager backed by the repository directory.
type Fetcher interface {
	FetchPackage(ctx context.Context, rec *entity.CatalogRecord, dir string, opts download.Options) (download.Result, error)
}

// Options control one driver-pack build.
type Options struct {
	Name        string
	OutputDir   string
	Format      Format
	Unselect    []string
	RemoveOlder bool
	Overwrite   bool
	UWP         bool
	MaxRetries  int
}

// SkipNote explains why one package did not make it into the artifact.
type SkipNote struct {
	ID     entity.PackageID
	Reason string
}

// BuildTarget is the physical output of one build.
type BuildTarget struct {
	Path       string
	Format     Format
	Included   []entity.PackageID
	Skipped    []SkipNote
	Unselected []entity.PackageID
}

type Assembler struct {
	fs          afero.Fs
	fetcher     Fetcher
	downloadDir string
	log         *slog.Logger
	now         func() time.Time
	newID       func() string
}

func NewAssembler(fetcher Fetcher, downloadDir string, log *slog.Logger) *Assembler {
	return NewAssemblerWithFS(afero.NewOsFs(), fetcher, downloadDir, log)
}

func NewAssemblerWithFS(fs afero.Fs, fetcher Fetcher, downloadDir string, log *slog.Logger) *Assembler {
	return &Assembler{
		fs:          fs,
		fetcher:     fetcher,
		downloadDir: downloadDir,
		log:         log.With(slog.String("item", "PackAssembler")),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// BuildPack runs the build pipeline: unselect filtering, supersession
// removal, per-package download/extract/route/copy with skip-with-warning
// semantics, manifest and contents pages, then packaging. A failing
// package never aborts the whole build.
func (a *Assembler) BuildPack(ctx context.Context, packages []entity.CatalogRecord, osSpec entity.OSSpec, opts Options) (*BuildTarget, error) {
	if opts.Name == "" {
		return nil, common.Ef(common.ErrConfiguration, "pack.BuildPack", "output name is required")
	}
	if opts.OutputDir == "" {
		return nil, common.Ef(common.ErrConfiguration, "pack.BuildPack", "output directory is required")
	}
	if opts.Format == "" {
		opts.Format = FormatNone
	}

	kept, dropped := Unselect(packages, opts.Unselect)
	if opts.RemoveOlder {
		kept = Supersede(kept)
	}
	SortByID(kept)

	target := &BuildTarget{Format: opts.Format}
	for _, p := range dropped {
		target.Unselected = append(target.Unselected, p.ID)
		a.log.Info("Package unselected", slog.String("id", p.ID.String()), slog.String("name", p.Name))
	}

	workDir := filepath.Join(opts.OutputDir, ".work-"+a.newID())
	if err := a.fs.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create working dir: %w", err)
	}
	defer a.fs.RemoveAll(workDir)

	for i := range kept {
		rec := &kept[i]

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := a.stage(ctx, rec, osSpec, workDir, opts); err != nil {
			a.log.Warn("Skipping package",
				slog.String("id", rec.ID.String()),
				slog.String("name", rec.Name),
				slog.Any("error", err))
			target.Skipped = append(target.Skipped, SkipNote{ID: rec.ID, Reason: err.Error()})

			continue
		}

		target.Included = append(target.Included, rec.ID)
	}

	_ = a.fs.RemoveAll(filepath.Join(workDir, extractDirName))

	if opts.UWP && len(target.Included) > 0 {
		if err := writeInstallAllScript(a.fs, workDir); err != nil {
			return nil, err
		}
	}

	// The manifest covers every package considered for the build, after
	// unselect/supersession but before per-package skips.
	if err := writeManifest(a.fs, workDir, newManifest(opts.Name, osSpec, kept, a.now())); err != nil {
		return nil, err
	}
	if err := writeContents(a.fs, workDir, opts.OutputDir, opts.Name, kept); err != nil {
		return nil, err
	}

	name, err := resolveOutputName(a.fs, opts.OutputDir, opts.Name, opts.Overwrite)
	if err != nil {
		return nil, err
	}

	path, err := a.finalize(workDir, name, opts)
	if err != nil {
		return nil, err
	}
	target.Path = path

	a.log.Info("Driver pack built",
		slog.String("path", path),
		slog.Int("included", len(target.Included)),
		slog.Int("skipped", len(target.Skipped)))

	return target, nil
}

func (a *Assembler) stage(ctx context.Context, rec *entity.CatalogRecord, osSpec entity.OSSpec, workDir string, opts Options) error {
	dlOpts := download.Options{Overwrite: download.SkipIfExists, MaxRetries: opts.MaxRetries}
	if _, err := a.fetcher.FetchPackage(ctx, rec, a.downloadDir, dlOpts); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	doc, err := cva.Load(a.fs, filepath.Join(a.downloadDir, rec.ID.MetadataName()))
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	extractDir := filepath.Join(workDir, extractDirName, rec.ID.String())
	if err := extractPayload(a.fs, filepath.Join(a.downloadDir, rec.ID.BinaryName()), extractDir); err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	destDir := filepath.Join(workDir, packageDirName(rec))

	if opts.UWP {
		return stageUWP(a.fs, extractDir, destDir)
	}

	paths, ok := doc.INFPaths(osTag(osSpec), osSpec.Version)
	if !ok {
		return fmt.Errorf("no inf path metadata for %s", osSpec)
	}

	for _, p := range paths {
		src := filepath.Join(extractDir, filepath.FromSlash(p))
		info, err := a.fs.Stat(src)
		if err != nil {
			return fmt.Errorf("inf path %s: %w", p, err)
		}

		dest := filepath.Join(destDir, filepath.FromSlash(p))
		if !info.IsDir() {
			if err := copyFile(a.fs, src, dest); err != nil {
				return fmt.Errorf("inf path %s: %w", p, err)
			}

			continue
		}
		if err := copyTree(a.fs, src, dest); err != nil {
			return fmt.Errorf("inf path %s: %w", p, err)
		}
	}

	return nil
}

// finalize swaps the working directory into the named output, compressing
// first when the format asks for it. Compressed formats write next to the
// final path and rename on success only.
func (a *Assembler) finalize(workDir, name string, opts Options) (string, error) {
	switch opts.Format {
	case FormatNone:
		final := filepath.Join(opts.OutputDir, name)
		if opts.Overwrite {
			_ = a.fs.RemoveAll(final)
		}
		if err := a.fs.Rename(workDir, final); err != nil {
			return "", fmt.Errorf("cannot move pack into place: %w", err)
		}

		return final, nil

	case FormatZip:
		final := filepath.Join(opts.OutputDir, name+zipExt)

		return final, a.compress(workDir, final, zipDir, opts.Overwrite)

	case FormatImage:
		final := filepath.Join(opts.OutputDir, name+imageExt)

		return final, a.compress(workDir, final, imageDir, opts.Overwrite)

	default:
		return "", common.Ef(common.ErrConfiguration, "pack.BuildPack", "unknown format %q", opts.Format)
	}
}

func (a *Assembler) compress(workDir, final string, archive func(afero.Fs, string, string) error, overwrite bool) error {
	partial := final + partialSuffix

	if err := archive(a.fs, workDir, partial); err != nil {
		_ = a.fs.Remove(partial)

		return err
	}

	if overwrite {
		_ = a.fs.Remove(final)
	}
	if err := a.fs.Rename(partial, final); err != nil {
		_ = a.fs.Remove(partial)

		return fmt.Errorf("cannot move archive into place: %w", err)
	}

	// The uncompressed intermediate goes away with the deferred workdir
	// removal in BuildPack.
	return nil
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func packageDirName(rec *entity.CatalogRecord) string {
	base := unsafeNameRe.ReplaceAllString(strings.TrimSpace(rec.Name), "_")
	if base == "" {
		return rec.ID.String()
	}

	return base + "_" + rec.ID.String()
}

func osTag(os entity.OSSpec) string {
	return strings.ToUpper(os.Name)
}
