package forensics

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func syntheticScreenshot(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 128; x++ {
			// flat background with a text-like darker band
			c := color.RGBA{R: 245, G: 245, B: 250, A: 255}
			if y%12 < 2 && x > 8 && x < 120 {
				c = color.RGBA{R: 40, G: 40, B: 48, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetect_ReportShape(t *testing.T) {
	report, err := Detect(syntheticScreenshot(t))
	require.NoError(t, err)
	require.Len(t, report.Checks, 5)
	require.GreaterOrEqual(t, report.Probability, 0.0)
	require.LessOrEqual(t, report.Probability, 100.0)
	require.Contains(t, []string{SummaryClean, SummaryLowRisk, SummarySuspicious, SummaryHighRisk}, report.Summary)
	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
		require.GreaterOrEqual(t, check.Suspicion, 0.0)
		require.LessOrEqual(t, check.Suspicion, 100.0)
	}
	require.Contains(t, names, "error_level_analysis")
}

func TestDetect_Deterministic(t *testing.T) {
	data := syntheticScreenshot(t)
	first, err := Detect(data)
	require.NoError(t, err)
	second, err := Detect(data)
	require.NoError(t, err)
	require.Equal(t, first.Probability, second.Probability)
	require.Equal(t, first.Checks, second.Checks)
}

func TestDetect_RejectsNonImage(t *testing.T) {
	_, err := Detect([]byte("not an image"))
	require.Error(t, err)
}

func TestElaSuspicion_Monotonic(t *testing.T) {
	prev := -1.0
	for _, ratio := range []float64{0, 0.01, 0.05, 0.1, 0.2, 0.5, 1.0} {
		s := elaSuspicion(ratio)
		require.GreaterOrEqual(t, s, prev)
		prev = s
	}
	require.Equal(t, 100.0, elaSuspicion(1.0))
}

func TestRunSafely_PanicContributesConservativeScore(t *testing.T) {
	check := weightedCheck{
		name:   "boom",
		weight: 0.1,
		run: func(img image.Image, raw []byte) (float64, string, error) {
			panic("exploded")
		},
	}
	suspicion, details := runSafely(check, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil)
	require.Equal(t, float64(FallbackSuspicion), suspicion)
	require.Contains(t, details, "exploded")
}

func TestRunSafely_ErrorContributesConservativeScore(t *testing.T) {
	check := weightedCheck{
		name:   "fails",
		weight: 0.1,
		run: func(img image.Image, raw []byte) (float64, string, error) {
			return 0, "", fmt.Errorf("no data")
		},
	}
	suspicion, details := runSafely(check, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil)
	require.Equal(t, float64(FallbackSuspicion), suspicion)
	require.Contains(t, details, "no data")
}

func TestSummarize_Buckets(t *testing.T) {
	require.Equal(t, SummaryClean, summarize(0))
	require.Equal(t, SummaryClean, summarize(19.9))
	require.Equal(t, SummaryLowRisk, summarize(20))
	require.Equal(t, SummarySuspicious, summarize(50))
	require.Equal(t, SummaryHighRisk, summarize(75))
	require.Equal(t, SummaryHighRisk, summarize(100))
}
