package entity

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// packagePrefix is presentation-only, package ids are numeric (vendor
	// "softpaq" numbering). Parsing accepts any case, rendering always
	// emits the lowercase form.
	packagePrefix = "sp"

	BinaryExt       = ".exe"
	MetadataExt     = ".cva"
	ReleaseNotesExt = ".html"
	MarkExt         = ".mark"
)

// PackageID is the numeric identifier of a single update package.
type PackageID int64

// ParsePackageID parses "sp123456", "SP123456" or a bare "123456".
func ParsePackageID(s string) (PackageID, error) {
	raw := s
	if len(raw) >= len(packagePrefix) && strings.EqualFold(raw[:len(packagePrefix)], packagePrefix) {
		raw = raw[len(packagePrefix):]
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid package id %q", s)
	}

	return PackageID(n), nil
}

// PackageIDFromFileName derives the package id from a local file name such
// as "sp123456.exe". It returns false for files outside the naming
// convention.
func PackageIDFromFileName(name string) (PackageID, bool) {
	base := name
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}

	id, err := ParsePackageID(base)
	if err != nil || !strings.EqualFold(name[:min(len(name), len(packagePrefix))], packagePrefix) {
		return 0, false
	}

	return id, true
}

func (id PackageID) String() string {
	return packagePrefix + strconv.FormatInt(int64(id), 10)
}

func (id PackageID) BinaryName() string       { return id.String() + BinaryExt }
func (id PackageID) MetadataName() string     { return id.String() + MetadataExt }
func (id PackageID) ReleaseNotesName() string { return id.String() + ReleaseNotesExt }
func (id PackageID) MarkName() string         { return id.String() + MarkExt }
