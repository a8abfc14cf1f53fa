package entity

import "time"

// Manifest is the immutable audit record of one driver-pack build, written
// next to the build output as manifest.json and manifest.xml.
type Manifest struct {
	Date      time.Time       `json:"date" xml:"Date"`
	Name      string          `json:"name" xml:"Name"`
	OS        string          `json:"os" xml:"OS"`
	OSVersion string          `json:"osVersion" xml:"OSVersion"`
	Packages  []CatalogRecord `json:"packages" xml:"Packages>Package"`
}
