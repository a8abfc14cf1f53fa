package entity

import (
	"regexp"
	"sort"
	"strings"
)

// Category is a filter value matched against catalog record categories with
// the prefix hierarchy implemented in the filter package.
type Category string

const (
	CategoryAll Category = Wildcard

	CategoryDriver     Category = "Driver"
	CategoryGraphics   Category = "Driver - Graphics"
	CategoryAudio      Category = "Driver - Audio"
	CategoryChipset    Category = "Driver - Chipset"
	CategoryInput      Category = "Driver - Keyboard/Mouse/Input"
	CategoryEnabling   Category = "Driver - Enabling"
	CategoryNetwork    Category = "Driver - Network"
	CategoryStorage    Category = "Driver - Storage"
	CategoryController Category = "Driver - Controller"

	CategoryBIOS          Category = "BIOS"
	CategoryFirmware      Category = "Firmware"
	CategoryDiagnostic    Category = "Diagnostic"
	CategoryUtility       Category = "Utility"
	CategoryDock          Category = "Dock"
	CategorySoftware      Category = "Software"
	CategoryOS            Category = "OS"
	CategoryManageability Category = "Manageability"
	CategoryDriverpack    Category = "Driverpack"
	CategoryUWPPack       Category = "UWPPack"
)

// ReleaseType classifies the urgency of a package release.
type ReleaseType string

const (
	ReleaseTypeAll         ReleaseType = Wildcard
	ReleaseTypeCritical    ReleaseType = "Critical"
	ReleaseTypeRecommended ReleaseType = "Recommended"
	ReleaseTypeRoutine     ReleaseType = "Routine"
)

// Characteristic is a package compliance flag. Characteristics in a filter
// are AND-combined: a record must carry every requested flag.
type Characteristic string

const (
	CharacteristicAll Characteristic = Wildcard
	CharacteristicSSM Characteristic = "SSM"
	CharacteristicDPB Characteristic = "DPB"
	CharacteristicUWP Characteristic = "UWP"
)

var platformIDRe = regexp.MustCompile(`^[0-9a-fA-F]{4}$`)

// ValidPlatformID reports whether s is a 4-hex-digit platform identifier.
func ValidPlatformID(s string) bool { return platformIDRe.MatchString(s) }

// Filter is one declarative selection rule of the repository. The set
// dimensions are never empty, an absent dimension defaults to the wildcard.
type Filter struct {
	Platform        string
	OS              OSSpec
	Categories      []Category
	ReleaseTypes    []ReleaseType
	Characteristics []Characteristic
	PreferLTSC      bool
}

// Normalize enforces the never-empty invariant on the set dimensions.
func (f *Filter) Normalize() {
	if len(f.Categories) == 0 {
		f.Categories = []Category{CategoryAll}
	}
	if len(f.ReleaseTypes) == 0 {
		f.ReleaseTypes = []ReleaseType{ReleaseTypeAll}
	}
	if len(f.Characteristics) == 0 {
		f.Characteristics = []Characteristic{CharacteristicAll}
	}
}

func (f Filter) HasCategory(c Category) bool {
	for _, v := range f.Categories {
		if v == c {
			return true
		}
	}

	return false
}

func (f Filter) HasReleaseType(r ReleaseType) bool {
	for _, v := range f.ReleaseTypes {
		if v == r {
			return true
		}
	}

	return false
}

func (f Filter) HasCharacteristic(c Characteristic) bool {
	for _, v := range f.Characteristics {
		if v == c {
			return true
		}
	}

	return false
}

// Equal reports exact duplication, every field counts. Set dimensions
// compare order-insensitively.
func (f Filter) Equal(other Filter) bool {
	if f.Platform != other.Platform || f.OS != other.OS || f.PreferLTSC != other.PreferLTSC {
		return false
	}

	return sortedJoin(categoryStrings(f.Categories)) == sortedJoin(categoryStrings(other.Categories)) &&
		sortedJoin(releaseTypeStrings(f.ReleaseTypes)) == sortedJoin(releaseTypeStrings(other.ReleaseTypes)) &&
		sortedJoin(characteristicStrings(f.Characteristics)) == sortedJoin(characteristicStrings(other.Characteristics))
}

func sortedJoin(values []string) string {
	s := make([]string, len(values))
	copy(s, values)
	sort.Strings(s)

	return strings.Join(s, ",")
}

func categoryStrings(values []Category) []string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return s
}

func releaseTypeStrings(values []ReleaseType) []string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return s
}

func characteristicStrings(values []Characteristic) []string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return s
}
