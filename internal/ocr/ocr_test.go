package ocr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	name string
	res  *Result
	err  error
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Recognize(ctx context.Context, image []byte) (*Result, error) {
	return s.res, s.err
}

func TestKeyring_RoundRobin(t *testing.T) {
	k := NewKeyring([]string{"a", "", "b", "c"})
	require.Equal(t, 3, k.Size())
	require.Equal(t, "a", k.Next())
	require.Equal(t, "b", k.Next())
	require.Equal(t, "c", k.Next())
	require.Equal(t, "a", k.Next())
}

func TestKeyring_Empty(t *testing.T) {
	k := NewKeyring(nil)
	require.Equal(t, "", k.Next())
}

func TestKeyring_IsolatedPerInstance(t *testing.T) {
	k1 := NewKeyring([]string{"a", "b"})
	k2 := NewKeyring([]string{"a", "b"})
	require.Equal(t, "a", k1.Next())
	require.Equal(t, "a", k2.Next())
}

func TestRecognizeAll_DegradesOnEngineFailure(t *testing.T) {
	engines := []Engine{
		&stubEngine{name: "ok", res: &Result{Text: "Analyse 14", Confidence: 90}},
		&stubEngine{name: "broken", err: fmt.Errorf("engine down")},
	}
	results := RecognizeAll(context.Background(), engines, []byte("img"))
	require.Len(t, results, 2)
	require.Equal(t, "ok", results[0].Engine)
	require.True(t, results[0].Result.Usable())
	require.Equal(t, "broken", results[1].Engine)
	require.False(t, results[1].Result.Usable())
	require.Equal(t, float64(0), results[1].Result.Confidence)
}

func TestNew_UnknownEngine(t *testing.T) {
	_, err := New("nope", map[string]interface{}{})
	require.Error(t, err)
}
