package catalog

import (
	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/entity"
)

const (
	Bitness64 = "64"
	Bitness32 = "32"
)

// Combo is one supported OS name x version x bitness combination. The list
// below is ordered newest-first and drives the "latest supported OS" probe.
type Combo struct {
	OS      entity.OSSpec
	Bitness string
}

var supportedCombos = []Combo{
	{OS: entity.OSSpec{Name: entity.OSNameWin11, Version: "24H2"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin11, Version: "23H2"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin11, Version: "22H2"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin11, Version: "21H2"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "22H2"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "21H2"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "21H1"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "20H2"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "2009"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "1909"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "1809"}, Bitness: Bitness64},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "22H2"}, Bitness: Bitness32},
	{OS: entity.OSSpec{Name: entity.OSNameWin10, Version: "1809"}, Bitness: Bitness32},
}

// SupportedCombos returns the probe list, newest first.
func SupportedCombos() []Combo {
	out := make([]Combo, len(supportedCombos))
	copy(out, supportedCombos)

	return out
}

// ValidateCombo fails fast for combinations outside the supported set.
func ValidateCombo(os entity.OSSpec, bitness string) error {
	for _, c := range supportedCombos {
		if c.OS == os && c.Bitness == bitness {
			return nil
		}
	}

	return common.Ef(common.ErrUnsupportedCombination, "catalog.ValidateCombo",
		"%s/%s", os.String(), bitness)
}
