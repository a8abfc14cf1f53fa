package entity

import "time"

// CatalogRecord is one package entry of a resolved catalog. Records are
// produced fresh on every catalog fetch and never mutated, dedup by ID
// happens across fetches within one sync.
type CatalogRecord struct {
	ID              PackageID `json:"id" xml:"id,attr"`
	Name            string    `json:"name" xml:"Name"`
	Category        string    `json:"category" xml:"Category"`
	Version         string    `json:"version" xml:"Version"`
	Vendor          string    `json:"vendor" xml:"Vendor"`
	ReleaseType     string    `json:"releaseType" xml:"ReleaseType"`
	SSMCompliant    bool      `json:"ssmCompliant" xml:"SSMCompliant"`
	DPBCompliant    bool      `json:"dpbCompliant" xml:"DPBCompliant"`
	IsUWP           bool      `json:"isUWP" xml:"UWP"`
	URL             string    `json:"url" xml:"URL"`
	ReleaseNotesURL string    `json:"releaseNotesUrl" xml:"ReleaseNotesURL"`
	MetadataURL     string    `json:"metadataUrl" xml:"MetadataURL"`
	SizeBytes       int64     `json:"sizeBytes" xml:"Size"`
	ReleaseDate     time.Time `json:"releaseDate" xml:"-"`
}

// DedupRecords keeps the first occurrence of every package id, preserving
// the incoming order otherwise.
func DedupRecords(records []CatalogRecord) []CatalogRecord {
	seen := make(map[PackageID]struct{}, len(records))
	out := records[:0:0]

	for _, rec := range records {
		if _, exists := seen[rec.ID]; exists {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}

	return out
}
