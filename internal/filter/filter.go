// Package filter implements the pure matching logic between declarative
// repository filters and catalog records.
package filter

import (
	"github.com/jgivc/paqmirror/internal/entity"
)

// Matches reports whether a catalog record satisfies one filter. Category
// and release-type dimensions are OR-combined within the filter,
// characteristics are AND-combined: the record must carry every requested
// compliance flag simultaneously.
func Matches(rec *entity.CatalogRecord, f *entity.Filter) bool {
	return matchCategory(rec, f) && matchReleaseType(rec, f) && matchCharacteristics(rec, f)
}

func matchCategory(rec *entity.CatalogRecord, f *entity.Filter) bool {
	for _, want := range f.Categories {
		if CategoryMatches(want, rec.Category) {
			return true
		}
	}

	return false
}

func matchReleaseType(rec *entity.CatalogRecord, f *entity.Filter) bool {
	for _, want := range f.ReleaseTypes {
		if want == entity.ReleaseTypeAll || string(want) == rec.ReleaseType {
			return true
		}
	}

	return false
}

func matchCharacteristics(rec *entity.CatalogRecord, f *entity.Filter) bool {
	for _, want := range f.Characteristics {
		switch want {
		case entity.CharacteristicAll:
		case entity.CharacteristicSSM:
			if !rec.SSMCompliant {
				return false
			}
		case entity.CharacteristicDPB:
			if !rec.DPBCompliant {
				return false
			}
		case entity.CharacteristicUWP:
			if !rec.IsUWP {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// Select applies every filter of a group to a record list, keeping records
// matched by at least one filter.
func Select(records []entity.CatalogRecord, filters []entity.Filter) []entity.CatalogRecord {
	var out []entity.CatalogRecord

	for i := range records {
		for j := range filters {
			if Matches(&records[i], &filters[j]) {
				out = append(out, records[i])

				break
			}
		}
	}

	return out
}

// NormalizeFilterSet collapses per-platform filter groups: if any filter of
// a group uses the wildcard for a set dimension, every filter of the group
// gets the wildcard for that dimension. This keeps one catalog scan per
// platform instead of one per filter. Exact duplicates produced by the
// collapse are dropped, declared order is preserved otherwise.
func NormalizeFilterSet(filters []entity.Filter) []entity.Filter {
	wildCategories := make(map[string]bool)
	wildReleaseTypes := make(map[string]bool)
	wildCharacteristics := make(map[string]bool)

	for i := range filters {
		f := &filters[i]
		f.Normalize()

		if f.HasCategory(entity.CategoryAll) {
			wildCategories[f.Platform] = true
		}
		if f.HasReleaseType(entity.ReleaseTypeAll) {
			wildReleaseTypes[f.Platform] = true
		}
		if f.HasCharacteristic(entity.CharacteristicAll) {
			wildCharacteristics[f.Platform] = true
		}
	}

	out := make([]entity.Filter, 0, len(filters))
	for _, f := range filters {
		if wildCategories[f.Platform] {
			f.Categories = []entity.Category{entity.CategoryAll}
		}
		if wildReleaseTypes[f.Platform] {
			f.ReleaseTypes = []entity.ReleaseType{entity.ReleaseTypeAll}
		}
		if wildCharacteristics[f.Platform] {
			f.Characteristics = []entity.Characteristic{entity.CharacteristicAll}
		}

		dup := false
		for i := range out {
			if out[i].Equal(f) {
				dup = true

				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}

	return out
}

// ResolveOS is the filter-creation reading of the OS wildcard: "*" means
// the OS currently running on the evaluating machine, so a concrete catalog
// request can be built from the filter.
func ResolveOS(os entity.OSSpec, running entity.OSSpec) entity.OSSpec {
	if os.IsWildcard() {
		return running
	}

	return os
}

// MatchForRemoval is the filter-search reading of the wildcard, used by the
// removal and duplicate-lookup paths: a "*" OS in the query matches any OS
// already on file, and "<os>:*" (or a bare "<os>") matches any version of
// that OS. Set dimensions match on wildcard-or-equality. This is
// deliberately more permissive than the creation path and must stay so.
func MatchForRemoval(existing, query entity.Filter) bool {
	if query.Platform != entity.Wildcard && existing.Platform != query.Platform {
		return false
	}

	if !query.OS.IsWildcard() {
		if existing.OS.Name != query.OS.Name {
			return false
		}
		if !query.OS.AnyVersion() && existing.OS.Version != query.OS.Version {
			return false
		}
	}

	if existing.PreferLTSC != query.PreferLTSC {
		return false
	}

	return setMatches(categoryKeys(existing.Categories), categoryKeys(query.Categories)) &&
		setMatches(releaseTypeKeys(existing.ReleaseTypes), releaseTypeKeys(query.ReleaseTypes)) &&
		setMatches(characteristicKeys(existing.Characteristics), characteristicKeys(query.Characteristics))
}

func setMatches(existing, query []string) bool {
	if len(query) == 0 {
		return true
	}
	for _, q := range query {
		if q == entity.Wildcard {
			return true
		}
	}

	if len(existing) != len(query) {
		return false
	}

	want := make(map[string]struct{}, len(query))
	for _, q := range query {
		want[q] = struct{}{}
	}
	for _, e := range existing {
		if _, ok := want[e]; !ok {
			return false
		}
	}

	return true
}

func categoryKeys(values []entity.Category) []string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return s
}

func releaseTypeKeys(values []entity.ReleaseType) []string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return s
}

func characteristicKeys(values []entity.Characteristic) []string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}

	return s
}
