package pack

import (
	"sort"
	"strings"

	"github.com/jgivc/paqmirror/internal/entity"
)

// Unselect drops packages matched by the unselect list: exact match on the
// package id spelling or substring match on the name. Dropped entries are
// reported separately so the caller can show them.
func Unselect(packages []entity.CatalogRecord, unselect []string) (kept, dropped []entity.CatalogRecord) {
	if len(unselect) == 0 {
		return packages, nil
	}

	for _, p := range packages {
		if unselected(&p, unselect) {
			dropped = append(dropped, p)

			continue
		}
		kept = append(kept, p)
	}

	return kept, dropped
}

func unselected(p *entity.CatalogRecord, unselect []string) bool {
	for _, u := range unselect {
		if u == "" {
			continue
		}
		if strings.EqualFold(u, p.ID.String()) {
			return true
		}
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(u)) {
			return true
		}
	}

	return false
}

// Supersede keeps only the highest package id within every name group.
// Ids are issued sequentially upstream, so the highest id is the heuristic
// proxy for "most recent". Order of the survivors follows the input.
func Supersede(packages []entity.CatalogRecord) []entity.CatalogRecord {
	newest := make(map[string]entity.PackageID, len(packages))
	for _, p := range packages {
		if id, ok := newest[p.Name]; !ok || p.ID > id {
			newest[p.Name] = p.ID
		}
	}

	out := packages[:0:0]
	for _, p := range packages {
		if newest[p.Name] == p.ID {
			out = append(out, p)
		}
	}

	return out
}

// SortByID gives builds a stable package order.
func SortByID(packages []entity.CatalogRecord) {
	sort.Slice(packages, func(i, j int) bool { return packages[i].ID < packages[j].ID })
}
