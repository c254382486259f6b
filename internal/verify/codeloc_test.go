package verify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocateCode_ExactMatch(t *testing.T) {
	match := LocateCode("releve de notes GP-48213 session 1", "GP-48213")
	require.True(t, match.Found)
	require.Equal(t, 100.0, match.Confidence)
}

func TestLocateCode_DashDropped(t *testing.T) {
	match := LocateCode("header GP48213 footer", "GP-48213")
	require.True(t, match.Found)
	require.Equal(t, 90.0, match.Confidence)
}

func TestLocateCode_SegmentsSplitAcrossLines(t *testing.T) {
	match := LocateCode("48213 appears here\nand GP elsewhere", "GP-48213")
	require.True(t, match.Found)
	require.Equal(t, 75.0, match.Confidence)
}

func TestLocateCode_NotFound(t *testing.T) {
	match := LocateCode("nothing relevant", "GP-48213")
	require.False(t, match.Found)
	require.Equal(t, 0.0, match.Confidence)
}

func TestLocateCode_CaseInsensitive(t *testing.T) {
	match := LocateCode("code gp-48213 shown", "GP-48213")
	require.Equal(t, 100.0, match.Confidence)
}

func TestLocateCode_TierOrdering(t *testing.T) {
	// exact beats dashless even though both would match
	match := LocateCode("GP-48213 and GP48213", "GP-48213")
	require.Equal(t, "exact", match.Tier)
}
