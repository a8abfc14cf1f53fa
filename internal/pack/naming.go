package pack

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// resolveOutputName returns the artifact name to create under dir. When the
// base name is taken and overwrite is off, a numeric suffix one greater
// than the highest existing suffix among siblings is appended, so output
// names never collide and the sequence is deterministic.
func resolveOutputName(fs afero.Fs, dir, base string, overwrite bool) (string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		// Nothing there yet, the base name is free.
		return base, nil
	}

	taken := false
	highest := -1

	for _, e := range entries {
		name := e.Name()
		if i := strings.LastIndex(name, "."); i > 0 && !e.IsDir() {
			name = name[:i]
		}

		if name == base {
			taken = true

			continue
		}

		if n, ok := suffixOf(name, base); ok && n > highest {
			highest = n
		}
	}

	if !taken || overwrite {
		return base, nil
	}

	next := highest + 1
	if next < 1 {
		next = 1
	}

	return fmt.Sprintf("%s_%d", base, next), nil
}

func suffixOf(name, base string) (int, bool) {
	if !strings.HasPrefix(name, base+"_") {
		return 0, false
	}

	n, err := strconv.Atoi(name[len(base)+1:])
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}
