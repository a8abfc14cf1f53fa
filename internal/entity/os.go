package entity

import (
	"fmt"
	"strings"
)

const (
	OSNameWin10 = "win10"
	OSNameWin11 = "win11"

	// Wildcard means "current running OS" when a catalog request is built
	// from a filter, but "any OS already on file" when searching existing
	// filters. Both readings are intentional, see filter.MatchForRemoval.
	Wildcard = "*"

	osVersionSeparator = ":"
)

// OSSpec is a structured OS name + version pair, the wire form is
// "win10:2009". An empty Version means the version was not specified,
// an explicit "*" Version means "any version of this OS".
type OSSpec struct {
	Name    string
	Version string
}

// ParseOSSpec parses "win10", "win10:2009", "win11:*" or "*". The name is
// lowercased and the version uppercased, the canonical catalog spelling.
func ParseOSSpec(s string) (OSSpec, error) {
	if s == "" {
		return OSSpec{}, fmt.Errorf("empty os spec")
	}

	if s == Wildcard {
		return OSSpec{Name: Wildcard}, nil
	}

	name, version, _ := strings.Cut(s, osVersionSeparator)
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case OSNameWin10, OSNameWin11:
	default:
		return OSSpec{}, fmt.Errorf("unknown os name %q", name)
	}

	return OSSpec{Name: name, Version: strings.ToUpper(strings.TrimSpace(version))}, nil
}

func (o OSSpec) String() string {
	if o.Version == "" {
		return o.Name
	}

	return o.Name + osVersionSeparator + o.Version
}

func (o OSSpec) IsWildcard() bool { return o.Name == Wildcard }

func (o OSSpec) AnyVersion() bool { return o.Version == "" || o.Version == Wildcard }

func (o OSSpec) IsZero() bool { return o.Name == "" && o.Version == "" }
