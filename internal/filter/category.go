package filter

import (
	"strings"

	"github.com/jgivc/paqmirror/internal/entity"
)

const (
	categoryDriverPrefix = "Driver - "

	categoryManageabilityDriverPack = "Manageability - Driver Pack"
	categoryManageabilityUWPPack    = "Manageability - UWP Pack"

	categoryDriverDisplay = "Driver - Display"
)

// CategoryMatches evaluates the category prefix hierarchy: a generic
// "Driver" filter takes every "Driver - *" category, a sub-category filter
// takes only its own prefix (Display counting as Graphics), the two
// Manageability pack categories are pulled out of the generic Manageability
// bucket, and the remaining buckets match on category-prefix equality.
func CategoryMatches(want entity.Category, category string) bool {
	switch want {
	case entity.CategoryAll:
		return true

	case entity.CategoryDriver:
		return category == string(entity.CategoryDriver) ||
			strings.HasPrefix(category, categoryDriverPrefix)

	case entity.CategoryGraphics:
		return strings.HasPrefix(category, string(entity.CategoryGraphics)) ||
			strings.HasPrefix(category, categoryDriverDisplay)

	case entity.CategoryDriverpack:
		return strings.HasPrefix(category, categoryManageabilityDriverPack)

	case entity.CategoryUWPPack:
		return strings.HasPrefix(category, categoryManageabilityUWPPack)

	case entity.CategoryManageability:
		if strings.HasPrefix(category, categoryManageabilityDriverPack) ||
			strings.HasPrefix(category, categoryManageabilityUWPPack) {
			return false
		}

		return strings.HasPrefix(category, string(entity.CategoryManageability))

	default:
		return strings.HasPrefix(category, string(want))
	}
}
