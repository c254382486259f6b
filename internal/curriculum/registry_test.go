package curriculum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_StripsDiacriticsAndCase(t *testing.T) {
	require.Equal(t, "algebre", Normalize("Algèbre"))
	require.Equal(t, "probabilites et statistiques", Normalize("  Probabilités   et Statistiques "))
}

func TestResolve_AliasContainment(t *testing.T) {
	reg := Default()
	id, ok := reg.Resolve("Analyse 12.5 14.0")
	require.True(t, ok)
	require.Equal(t, ModuleID("analysis"), id)
}

func TestResolve_FuzzyOCRNoise(t *testing.T) {
	reg := Default()
	// a dropped letter must still resolve above the 0.85 threshold
	id, ok := reg.Resolve("Algorithmiqu")
	require.True(t, ok)
	require.Equal(t, ModuleID("algorithmics"), id)
}

func TestResolve_NoMatch(t *testing.T) {
	reg := Default()
	_, ok := reg.Resolve("Moyenne Generale")
	require.False(t, ok)

	_, ok = reg.Resolve("")
	require.False(t, ok)
}

func TestDefault_ModuleShape(t *testing.T) {
	reg := Default()
	require.Equal(t, 8, reg.Len())
	english, ok := reg.Get("english")
	require.True(t, ok)
	require.False(t, english.HasContinuous)
	require.True(t, english.AllowEmptyContinuous)
}
