// Package cva reads the INI-style package metadata files ("sp<id>.cva")
// shipped next to every package binary.
package cva

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

const (
	SectionSoftwareTitle  = "Software Title"
	SectionGeneral        = "General"
	SectionDevicesINFPath = "DevicesINFPath"

	keyTitleUS      = "US"
	keyVersion      = "Version"
	keyVendorName   = "VendorName"
	keyCategory     = "Category"
	keyType         = "Type"
	infPathSuffix   = "_INFPath"
	infPathListSep  = ","
)

// Document is one parsed metadata file. Section and key lookups are
// case-insensitive, values keep their original spelling.
type Document struct {
	sections map[string]map[string]string
}

// Parse reads an INI-style document. Lines outside any section and
// comment lines (';') are ignored.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{sections: make(map[string]map[string]string)}

	var current map[string]string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			current = make(map[string]string)
			doc.sections[strings.ToLower(name)] = current

			continue
		}

		if current == nil {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		current[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read metadata: %w", err)
	}

	return doc, nil
}

// Load parses the metadata file at path.
func Load(fs afero.Fs, path string) (*Document, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open metadata file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Get returns a value by section and key, case-insensitively.
func (d *Document) Get(section, key string) (string, bool) {
	s, ok := d.sections[strings.ToLower(section)]
	if !ok {
		return "", false
	}
	v, ok := s[strings.ToLower(key)]

	return v, ok
}

func (d *Document) Title() string {
	v, _ := d.Get(SectionSoftwareTitle, keyTitleUS)

	return v
}

func (d *Document) Version() string {
	v, _ := d.Get(SectionGeneral, keyVersion)

	return v
}

func (d *Document) Vendor() string {
	v, _ := d.Get(SectionGeneral, keyVendorName)

	return v
}

func (d *Document) Category() string {
	v, _ := d.Get(SectionGeneral, keyCategory)

	return v
}

func (d *Document) Type() string {
	v, _ := d.Get(SectionGeneral, keyType)

	return v
}

// INFPaths resolves the payload paths for an OS tag and version. The exact
// "<OSTAG>_<OSVER>_INFPath" key wins, a generic "<OSTAG>_INFPath" key is
// the fallback. The second return reports whether any key was present.
func (d *Document) INFPaths(osTag, osVersion string) ([]string, bool) {
	if osVersion != "" {
		if v, ok := d.Get(SectionDevicesINFPath, osTag+"_"+osVersion+infPathSuffix); ok {
			return splitPaths(v), true
		}
	}

	if v, ok := d.Get(SectionDevicesINFPath, osTag+infPathSuffix); ok {
		return splitPaths(v), true
	}

	return nil, false
}

func splitPaths(v string) []string {
	parts := strings.Split(v, infPathListSep)
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
		p = strings.TrimPrefix(p, "./")
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
