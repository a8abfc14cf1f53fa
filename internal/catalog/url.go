package catalog

import (
	"fmt"
	"strings"

	"github.com/jgivc/paqmirror/internal/entity"
)

const (
	archiveExt = ".cab"
	// ltscMarker is the long-term-servicing-channel catalog variant suffix,
	// inserted before the archive extension: <name>.e.cab.
	ltscMarker = ".e"
)

// ArchiveName builds the catalog archive file name
// <platform>_<bitness>_<osVersionToken>[.e].cab.
func ArchiveName(platform, bitness string, os entity.OSSpec, ltsc bool) string {
	name := fmt.Sprintf("%s_%s_%s", strings.ToLower(platform), bitness, os.Version)
	if ltsc {
		name += ltscMarker
	}

	return name + archiveExt
}

// CatalogURL builds the full catalog path under a reference host.
func CatalogURL(referenceURL, platform, bitness string, os entity.OSSpec, ltsc bool) string {
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(referenceURL, "/"),
		strings.ToLower(platform),
		ArchiveName(platform, bitness, os, ltsc))
}

// DocumentName is the XML file the archive expands to, same base name.
func DocumentName(archiveName string) string {
	return strings.TrimSuffix(archiveName, archiveExt) + ".xml"
}
