package repository

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/cva"
	"github.com/jgivc/paqmirror/internal/entity"
)

// ReportRow describes one locally mirrored package, derived by
// cross-referencing the metadata file with the binary. Packages missing
// either file do not appear.
type ReportRow struct {
	ID         string    `json:"id" xml:"id,attr"`
	Vendor     string    `json:"vendor" xml:"Vendor"`
	Title      string    `json:"title" xml:"Title"`
	Type       string    `json:"type" xml:"Type"`
	Version    string    `json:"version" xml:"Version"`
	Downloaded time.Time `json:"downloadedTimestamp" xml:"Downloaded"`
	SizeBytes  int64     `json:"sizeBytes" xml:"SizeBytes"`
}

type xmlReport struct {
	XMLName xml.Name    `xml:"RepositoryReport"`
	Rows    []ReportRow `xml:"Package"`
}

// excelHint makes spreadsheet imports pick the right separator.
const excelHint = "sep=,"

var reportHeader = []string{"id", "vendor", "title", "type", "version", "downloaded", "sizeBytes"}

// BuildReport scans the repository directory and collects a row for every
// package that has both its binary and its metadata file present.
func (s *Store) BuildReport() ([]ReportRow, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot scan repository dir: %w", err)
	}

	var rows []ReportRow
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entity.BinaryExt) {
			continue
		}

		id, ok := entity.PackageIDFromFileName(e.Name())
		if !ok {
			continue
		}

		metaPath := filepath.Join(s.dir, id.MetadataName())
		doc, err := cva.Load(s.fs, metaPath)
		if err != nil {
			continue
		}

		rows = append(rows, ReportRow{
			ID:         id.String(),
			Vendor:     doc.Vendor(),
			Title:      doc.Title(),
			Type:       doc.Type(),
			Version:    doc.Version(),
			Downloaded: e.ModTime(),
			SizeBytes:  e.Size(),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	return rows, nil
}

// WriteReport renders rows in the requested format.
func (s *Store) WriteReport(w io.Writer, rows []ReportRow, format entity.ReportFormat) error {
	switch format {
	case entity.ReportCSV:
		return writeCSV(w, rows, false)
	case entity.ReportExcelCSV:
		return writeCSV(w, rows, true)
	case entity.ReportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(rows)
	case entity.ReportXML:
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")

		return enc.Encode(xmlReport{Rows: rows})
	default:
		return common.Ef(common.ErrConfiguration, "repository.WriteReport",
			"unknown report format %q", format)
	}
}

func writeCSV(w io.Writer, rows []ReportRow, excel bool) error {
	if excel {
		if _, err := fmt.Fprintln(w, excelHint); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.ID,
			r.Vendor,
			r.Title,
			r.Type,
			r.Version,
			r.Downloaded.UTC().Format(time.RFC3339),
			strconv.FormatInt(r.SizeBytes, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
