package pack

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/download"
	"github.com/jgivc/paqmirror/internal/entity"
)

var buildOS = entity.OSSpec{Name: entity.OSNameWin11, Version: "23H2"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// fakePackage is what the fake fetcher materializes into the download dir.
type fakePackage struct {
	payload  map[string][]byte
	metadata string
}

type fakeFetcher struct {
	t        *testing.T
	fs       afero.Fs
	packages map[entity.PackageID]fakePackage
	fetched  []entity.PackageID
}

func (f *fakeFetcher) FetchPackage(_ context.Context, rec *entity.CatalogRecord, dir string, _ download.Options) (download.Result, error) {
	f.fetched = append(f.fetched, rec.ID)

	pkg, ok := f.packages[rec.ID]
	if !ok {
		return download.Result{}, common.Ef(common.ErrNotFound, "download.Fetch", "%s", rec.URL)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range pkg.payload {
		w, err := zw.Create(name)
		require.NoError(f.t, err)
		_, err = w.Write(content)
		require.NoError(f.t, err)
	}
	require.NoError(f.t, zw.Close())

	require.NoError(f.t, afero.WriteFile(f.fs, dir+"/"+rec.ID.BinaryName(), buf.Bytes(), 0o644))
	require.NoError(f.t, afero.WriteFile(f.fs, dir+"/"+rec.ID.MetadataName(), []byte(pkg.metadata), 0o644))

	return download.Result{Verified: true}, nil
}

const audioMetadata = `[Software Title]
US=Realtek Audio Driver
[General]
Version=1.0
[DevicesINFPath]
WIN11_23H2_INFPath=src\audio
`

const genericMetadata = `[Software Title]
US=Intel Graphics Driver
[General]
Version=2.0
[DevicesINFPath]
WIN11_INFPath=gfx
`

func audioPackage() fakePackage {
	return fakePackage{
		payload: map[string][]byte{
			"src/audio/driver.inf": []byte("inf content"),
			"src/audio/driver.sys": []byte("sys content"),
			"src/other/unused.bin": []byte("not routed"),
		},
		metadata: audioMetadata,
	}
}

func graphicsPackage() fakePackage {
	return fakePackage{
		payload: map[string][]byte{
			"gfx/display.inf": []byte("inf content"),
		},
		metadata: genericMetadata,
	}
}

func newTestAssembler(t *testing.T, packages map[entity.PackageID]fakePackage) (*Assembler, afero.Fs, *fakeFetcher) {
	t.Helper()

	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/repo", 0o755))
	require.NoError(t, mem.MkdirAll("/out", 0o755))

	fetcher := &fakeFetcher{t: t, fs: mem, packages: packages}
	a := NewAssemblerWithFS(mem, fetcher, "/repo", discardLogger())

	return a, mem, fetcher
}

func records(ids ...entity.PackageID) []entity.CatalogRecord {
	names := map[entity.PackageID]string{
		100: "Realtek Audio Driver",
		200: "Intel Graphics Driver",
	}

	var out []entity.CatalogRecord
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = "Package " + id.String()
		}
		out = append(out, entity.CatalogRecord{ID: id, Name: name, Category: "Driver"})
	}

	return out
}

func TestBuildPackFolder(t *testing.T) {
	a, mem, fetcher := newTestAssembler(t, map[entity.PackageID]fakePackage{
		100: audioPackage(),
		200: graphicsPackage(),
	})

	target, err := a.BuildPack(context.Background(), records(100, 200), buildOS, Options{
		Name:      "DP1234",
		OutputDir: "/out",
	})
	require.NoError(t, err)
	require.Equal(t, "/out/DP1234", target.Path)
	require.Equal(t, []entity.PackageID{100, 200}, target.Included)
	require.Empty(t, target.Skipped)
	require.Equal(t, []entity.PackageID{100, 200}, fetcher.fetched)

	// Routed payload, per-package directory, relative layout preserved.
	content, err := afero.ReadFile(mem, "/out/DP1234/Realtek_Audio_Driver_sp100/src/audio/driver.inf")
	require.NoError(t, err)
	require.Equal(t, "inf content", string(content))

	// The generic inf key is the fallback for the graphics package.
	_, err = mem.Stat("/out/DP1234/Intel_Graphics_Driver_sp200/gfx/display.inf")
	require.NoError(t, err)

	// Unrouted payload never reaches the pack.
	_, err = mem.Stat("/out/DP1234/Realtek_Audio_Driver_sp100/src/other/unused.bin")
	require.Error(t, err)

	// Intermediate extraction area is gone.
	_, err = mem.Stat("/out/DP1234/" + extractDirName)
	require.Error(t, err)

	for _, name := range []string{manifestJSONName, manifestXMLName, contentsFileName} {
		_, err = mem.Stat("/out/DP1234/" + name)
		require.NoError(t, err, "%s belongs in the pack", name)
	}
}

func TestBuildPackManifest(t *testing.T) {
	a, mem, _ := newTestAssembler(t, map[entity.PackageID]fakePackage{
		100: audioPackage(),
	})

	// sp300 downloads fine but carries no inf metadata for the target os,
	// it is skipped yet stays in the manifest.
	a.fetcher.(*fakeFetcher).packages[300] = fakePackage{
		payload:  map[string][]byte{"x.txt": []byte("x")},
		metadata: "[General]\nVersion=1.0\n",
	}

	target, err := a.BuildPack(context.Background(), records(100, 300), buildOS, Options{
		Name:      "DP1234",
		OutputDir: "/out",
	})
	require.NoError(t, err)
	require.Equal(t, []entity.PackageID{100}, target.Included)
	require.Len(t, target.Skipped, 1)
	require.Equal(t, entity.PackageID(300), target.Skipped[0].ID)
	require.Contains(t, target.Skipped[0].Reason, "inf path")

	data, err := afero.ReadFile(mem, "/out/DP1234/"+manifestJSONName)
	require.NoError(t, err)

	var m entity.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	require.Equal(t, "DP1234", m.Name)
	require.Equal(t, entity.OSNameWin11, m.OS)
	require.Equal(t, "23H2", m.OSVersion)
	require.Len(t, m.Packages, 2, "skips happen after the manifest set is fixed")
}

func TestBuildPackUnselectAndSupersede(t *testing.T) {
	a, _, fetcher := newTestAssembler(t, map[entity.PackageID]fakePackage{
		200: graphicsPackage(),
	})

	packages := []entity.CatalogRecord{
		{ID: 100, Name: "Intel Graphics Driver"},
		{ID: 200, Name: "Intel Graphics Driver"},
		{ID: 300, Name: "Realtek Audio Driver"},
	}

	target, err := a.BuildPack(context.Background(), packages, buildOS, Options{
		Name:        "DP1234",
		OutputDir:   "/out",
		Unselect:    []string{"audio"},
		RemoveOlder: true,
	})
	require.NoError(t, err)
	require.Equal(t, []entity.PackageID{300}, target.Unselected)
	require.Equal(t, []entity.PackageID{200}, target.Included, "sp100 is superseded by sp200")
	require.Equal(t, []entity.PackageID{200}, fetcher.fetched, "dropped packages are never downloaded")
}

func TestBuildPackNameCollision(t *testing.T) {
	a, mem, _ := newTestAssembler(t, map[entity.PackageID]fakePackage{
		100: audioPackage(),
	})

	for i := 0; i < 2; i++ {
		_, err := a.BuildPack(context.Background(), records(100), buildOS, Options{
			Name:      "DP1234",
			OutputDir: "/out",
		})
		require.NoError(t, err)
	}

	_, err := mem.Stat("/out/DP1234")
	require.NoError(t, err)
	_, err = mem.Stat("/out/DP1234_1")
	require.NoError(t, err, "the second build takes the next free suffix")
}

func TestBuildPackZip(t *testing.T) {
	a, mem, _ := newTestAssembler(t, map[entity.PackageID]fakePackage{
		100: audioPackage(),
	})

	target, err := a.BuildPack(context.Background(), records(100), buildOS, Options{
		Name:      "DP1234",
		OutputDir: "/out",
		Format:    FormatZip,
	})
	require.NoError(t, err)
	require.Equal(t, "/out/DP1234.zip", target.Path)

	_, err = mem.Stat(target.Path + partialSuffix)
	require.Error(t, err, "the partial file is renamed away on success")

	data, err := afero.ReadFile(mem, target.Path)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names[manifestJSONName])
	require.True(t, names["Realtek_Audio_Driver_sp100/src/audio/driver.inf"])
}

func TestBuildPackImage(t *testing.T) {
	a, mem, _ := newTestAssembler(t, map[entity.PackageID]fakePackage{
		100: audioPackage(),
	})

	target, err := a.BuildPack(context.Background(), records(100), buildOS, Options{
		Name:      "DP1234",
		OutputDir: "/out",
		Format:    FormatImage,
	})
	require.NoError(t, err)
	require.Equal(t, "/out/DP1234.wim", target.Path)

	data, err := afero.ReadFile(mem, target.Path)
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(data))
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Name == manifestJSONName {
			found = true
		}
	}
	require.True(t, found, "the image must carry the manifest")
}

func TestBuildPackUWP(t *testing.T) {
	appPkg := fakePackage{
		payload: map[string][]byte{
			"App/app.msix":   []byte("app payload"),
			"InstallApp.cmd": []byte("@echo install"),
		},
		metadata: "[General]\nVersion=1.0\n",
	}
	// Has an App dir but no install script, must be skipped.
	brokenPkg := fakePackage{
		payload: map[string][]byte{
			"App/app.msix": []byte("app payload"),
		},
		metadata: "[General]\nVersion=1.0\n",
	}

	a, mem, _ := newTestAssembler(t, map[entity.PackageID]fakePackage{
		100: appPkg,
		200: brokenPkg,
	})

	target, err := a.BuildPack(context.Background(), records(100, 200), buildOS, Options{
		Name:      "AppPack",
		OutputDir: "/out",
		UWP:       true,
	})
	require.NoError(t, err)
	require.Equal(t, []entity.PackageID{100}, target.Included)
	require.Len(t, target.Skipped, 1)

	_, err = mem.Stat("/out/AppPack/Realtek_Audio_Driver_sp100/App/app.msix")
	require.NoError(t, err)
	_, err = mem.Stat("/out/AppPack/Realtek_Audio_Driver_sp100/InstallApp.cmd")
	require.NoError(t, err)
	_, err = mem.Stat("/out/AppPack/" + installAllScriptName)
	require.NoError(t, err)
}

func TestBuildPackValidation(t *testing.T) {
	a, _, _ := newTestAssembler(t, nil)

	_, err := a.BuildPack(context.Background(), records(100), buildOS, Options{OutputDir: "/out"})
	require.ErrorIs(t, err, common.ErrConfiguration)

	_, err = a.BuildPack(context.Background(), records(100), buildOS, Options{Name: "DP1234"})
	require.ErrorIs(t, err, common.ErrConfiguration)

	_, err = a.BuildPack(context.Background(), records(100), buildOS, Options{
		Name: "DP1234", OutputDir: "/out", Format: Format("RAR"),
	})
	require.Error(t, err)
}

func TestBuildPackFailedDownloadSkips(t *testing.T) {
	a, _, _ := newTestAssembler(t, map[entity.PackageID]fakePackage{
		100: audioPackage(),
	})

	target, err := a.BuildPack(context.Background(), records(100, 999), buildOS, Options{
		Name:      "DP1234",
		OutputDir: "/out",
	})
	require.NoError(t, err, "a failing package never aborts the build")
	require.Equal(t, []entity.PackageID{100}, target.Included)
	require.Len(t, target.Skipped, 1)
	require.Equal(t, entity.PackageID(999), target.Skipped[0].ID)
}
