package catalog

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/common"
)

var zipSignature = []byte("PK\x03\x04")

// expandArchive expands a cached catalog archive into its XML document next
// to it and returns the document path. The container is detected by magic
// bytes: cabinet or zip.
func expandArchive(fs afero.Fs, archivePath string) (string, error) {
	data, err := afero.ReadFile(fs, archivePath)
	if err != nil {
		return "", fmt.Errorf("cannot read archive: %w", err)
	}

	var files map[string][]byte

	switch {
	case IsCab(data):
		files, err = extractCab(data)
	case bytes.HasPrefix(data, zipSignature):
		files, err = extractZip(data)
	default:
		err = fmt.Errorf("unknown archive container")
	}
	if err != nil {
		return "", common.E(common.ErrMalformedCatalog, "catalog.expandArchive", err)
	}

	content, ok := pickXMLDocument(files)
	if !ok {
		return "", common.Ef(common.ErrMalformedCatalog, "catalog.expandArchive",
			"archive %s contains no xml document", filepath.Base(archivePath))
	}

	docPath := filepath.Join(filepath.Dir(archivePath), DocumentName(filepath.Base(archivePath)))
	if err := afero.WriteFile(fs, docPath, content, 0o644); err != nil {
		return "", fmt.Errorf("cannot write catalog document: %w", err)
	}

	return docPath, nil
}

func extractZip(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}

		out[f.Name] = content
	}

	return out, nil
}

func pickXMLDocument(files map[string][]byte) ([]byte, bool) {
	for name, content := range files {
		if strings.EqualFold(filepath.Ext(name), ".xml") {
			return content, true
		}
	}

	// Single-file cabinets may carry the document without an extension.
	if len(files) == 1 {
		for _, content := range files {
			return content, true
		}
	}

	return nil, false
}

// wellFormed runs a full token scan over an XML document.
func wellFormed(fs afero.Fs, docPath string) bool {
	f, err := fs.Open(docPath)
	if err != nil {
		return false
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			return false
		}
	}
}
