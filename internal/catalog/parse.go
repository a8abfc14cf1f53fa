package catalog

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/entity"
)

const releaseDateLayout = "2006-01-02"

type xmlCatalog struct {
	XMLName  xml.Name     `xml:"Catalog"`
	Platform string       `xml:"platform,attr"`
	Packages []xmlPackage `xml:"Package"`
}

type xmlPackage struct {
	ID              string `xml:"id,attr"`
	Name            string `xml:"Name"`
	Category        string `xml:"Category"`
	Version         string `xml:"Version"`
	Vendor          string `xml:"Vendor"`
	ReleaseType     string `xml:"ReleaseType"`
	SSMCompliant    bool   `xml:"SSMCompliant"`
	DPBCompliant    bool   `xml:"DPBCompliant"`
	UWP             bool   `xml:"UWP"`
	URL             string `xml:"URL"`
	ReleaseNotesURL string `xml:"ReleaseNotesURL"`
	MetadataURL     string `xml:"MetadataURL"`
	Size            int64  `xml:"Size"`
	DateReleased    string `xml:"DateReleased"`
}

// parseDocument decodes an expanded catalog document into records. Entries
// with an unparseable id are dropped, unknown optional fields stay at their
// zero values.
func parseDocument(fs afero.Fs, docPath string) ([]entity.CatalogRecord, error) {
	f, err := fs.Open(docPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog document: %w", err)
	}
	defer f.Close()

	var doc xmlCatalog
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, common.E(common.ErrMalformedCatalog, "catalog.parseDocument", err)
	}

	records := make([]entity.CatalogRecord, 0, len(doc.Packages))
	for _, p := range doc.Packages {
		id, err := entity.ParsePackageID(p.ID)
		if err != nil {
			continue
		}

		rec := entity.CatalogRecord{
			ID:              id,
			Name:            p.Name,
			Category:        p.Category,
			Version:         p.Version,
			Vendor:          p.Vendor,
			ReleaseType:     p.ReleaseType,
			SSMCompliant:    p.SSMCompliant,
			DPBCompliant:    p.DPBCompliant,
			IsUWP:           p.UWP,
			URL:             p.URL,
			ReleaseNotesURL: p.ReleaseNotesURL,
			MetadataURL:     p.MetadataURL,
			SizeBytes:       p.Size,
		}
		if p.DateReleased != "" {
			if t, err := time.Parse(releaseDateLayout, p.DateReleased); err == nil {
				rec.ReleaseDate = t
			}
		}

		records = append(records, rec)
	}

	return records, nil
}
