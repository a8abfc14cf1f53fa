package repository

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/entity"
)

func writeMirroredPackage(t *testing.T, fs afero.Fs, id entity.PackageID, title string) {
	t.Helper()

	require.NoError(t, afero.WriteFile(fs, "/repo/"+id.BinaryName(), []byte("binary"), 0o644))

	meta := "[Software Title]\nUS=" + title + "\n[General]\nVersion=1.0\nVendorName=Vendor\nType=Driver\n"
	require.NoError(t, afero.WriteFile(fs, "/repo/"+id.MetadataName(), []byte(meta), 0o644))
}

func TestBuildReport(t *testing.T) {
	store, mem := newTestStore(t)

	writeMirroredPackage(t, mem, 200, "Second")
	writeMirroredPackage(t, mem, 100, "First")

	// A binary without metadata never makes the report.
	require.NoError(t, afero.WriteFile(mem, "/repo/sp300.exe", []byte("binary"), 0o644))

	rows, err := store.BuildReport()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "sp100", rows[0].ID)
	require.Equal(t, "First", rows[0].Title)
	require.Equal(t, "Vendor", rows[0].Vendor)
	require.Equal(t, "sp200", rows[1].ID)
}

func TestWriteReport(t *testing.T) {
	store, mem := newTestStore(t)
	writeMirroredPackage(t, mem, 100, "First")

	rows, err := store.BuildReport()
	require.NoError(t, err)

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, store.WriteReport(&buf, rows, entity.ReportCSV))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		require.Equal(t, strings.Join(reportHeader, ","), lines[0])
		require.True(t, strings.HasPrefix(lines[1], "sp100,Vendor,First,Driver,1.0,"))
	})

	t.Run("excel csv carries the separator hint", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, store.WriteReport(&buf, rows, entity.ReportExcelCSV))
		require.True(t, strings.HasPrefix(buf.String(), excelHint+"\n"))
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, store.WriteReport(&buf, rows, entity.ReportJSON))

		var decoded []ReportRow
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		require.Equal(t, "sp100", decoded[0].ID)
	})

	t.Run("xml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, store.WriteReport(&buf, rows, entity.ReportXML))
		require.Contains(t, buf.String(), "<RepositoryReport>")
		require.Contains(t, buf.String(), `<Package id="sp100">`)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := store.WriteReport(&bytes.Buffer{}, rows, entity.ReportFormat("PDF"))
		require.ErrorIs(t, err, common.ErrConfiguration)
	})
}
