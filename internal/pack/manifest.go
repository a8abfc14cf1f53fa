package pack

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/entity"
)

const (
	manifestJSONName = "manifest.json"
	manifestXMLName  = "manifest.xml"
)

type xmlManifest struct {
	XMLName xml.Name `xml:"Manifest"`
	entity.Manifest
}

// writeManifest records the audit manifest in both formats inside the
// working directory, before packaging so both land inside the artifact.
func writeManifest(fs afero.Fs, dir string, m *entity.Manifest) error {
	jsonData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal manifest: %w", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(dir, manifestJSONName), jsonData, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", manifestJSONName, err)
	}

	xmlData, err := xml.MarshalIndent(xmlManifest{Manifest: *m}, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal manifest xml: %w", err)
	}
	xmlData = append([]byte(xml.Header), xmlData...)
	if err := afero.WriteFile(fs, filepath.Join(dir, manifestXMLName), xmlData, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", manifestXMLName, err)
	}

	return nil
}

func newManifest(name string, os entity.OSSpec, packages []entity.CatalogRecord, now time.Time) *entity.Manifest {
	return &entity.Manifest{
		Date:      now,
		Name:      name,
		OS:        os.Name,
		OSVersion: os.Version,
		Packages:  packages,
	}
}
