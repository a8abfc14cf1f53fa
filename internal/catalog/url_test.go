package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/paqmirror/internal/common"
	"github.com/jgivc/paqmirror/internal/entity"
)

func TestArchiveName(t *testing.T) {
	os := entity.OSSpec{Name: entity.OSNameWin11, Version: "23H2"}

	require.Equal(t, "8a2f_64_23H2.cab", ArchiveName("8A2F", "64", os, false))
	require.Equal(t, "8a2f_64_23H2.e.cab", ArchiveName("8A2F", "64", os, true))
}

func TestCatalogURL(t *testing.T) {
	os := entity.OSSpec{Name: entity.OSNameWin10, Version: "22H2"}

	require.Equal(t,
		"https://example.com/ref/8a2f/8a2f_64_22H2.cab",
		CatalogURL("https://example.com/ref/", "8A2F", "64", os, false))
}

func TestDocumentName(t *testing.T) {
	require.Equal(t, "8a2f_64_23H2.xml", DocumentName("8a2f_64_23H2.cab"))
	require.Equal(t, "8a2f_64_23H2.e.xml", DocumentName("8a2f_64_23H2.e.cab"))
}

func TestValidateCombo(t *testing.T) {
	testCases := []struct {
		name        string
		os          entity.OSSpec
		bitness     string
		expectError bool
	}{
		{name: "win11 64", os: entity.OSSpec{Name: entity.OSNameWin11, Version: "23H2"}, bitness: Bitness64},
		{name: "win10 64", os: entity.OSSpec{Name: entity.OSNameWin10, Version: "22H2"}, bitness: Bitness64},
		{name: "win10 32", os: entity.OSSpec{Name: entity.OSNameWin10, Version: "1809"}, bitness: Bitness32},
		{name: "win11 32 never existed", os: entity.OSSpec{Name: entity.OSNameWin11, Version: "23H2"}, bitness: Bitness32, expectError: true},
		{name: "unknown version", os: entity.OSSpec{Name: entity.OSNameWin10, Version: "1507"}, bitness: Bitness64, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCombo(tc.os, tc.bitness)
			if tc.expectError {
				require.ErrorIs(t, err, common.ErrUnsupportedCombination)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestValidateComboAcceptsParsedInput(t *testing.T) {
	// User input arrives in any case, parsing canonicalizes it.
	os, err := entity.ParseOSSpec("win11:24h2")
	require.NoError(t, err)
	require.NoError(t, ValidateCombo(os, Bitness64))
}
