package forensics

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

const (
	SummaryClean      = "CLEAN"
	SummaryLowRisk    = "LOW_RISK"
	SummarySuspicious = "SUSPICIOUS"
	SummaryHighRisk   = "HIGH_RISK"
)

// FallbackSuspicion is contributed by a check that errored or panicked, and
// is the whole-image figure when no check could run at all. A broken check
// must not abort the report, and must not read as a clean pass either.
const FallbackSuspicion = 25

type CheckResult struct {
	Name      string  `json:"name"`
	Suspicion float64 `json:"suspicion"`
	Details   string  `json:"details"`
}

type Report struct {
	Probability float64       `json:"probability"`
	Checks      []CheckResult `json:"checks"`
	Summary     string        `json:"summary"`
}

type weightedCheck struct {
	name   string
	weight float64
	run    func(img image.Image, raw []byte) (float64, string, error)
}

var checks = []weightedCheck{
	{name: "error_level_analysis", weight: 0.35, run: checkErrorLevel},
	{name: "edge_density_variance", weight: 0.25, run: checkEdgeDensity},
	{name: "color_temperature_spread", weight: 0.20, run: checkColorTemperature},
	{name: "recompression_ratio", weight: 0.10, run: checkRecompression},
	{name: "patch_uniformity", weight: 0.10, run: checkPatchUniformity},
}

// Detect runs the five forensic checks over one image and fuses them into
// a 0-100 tampering probability. Checks are statistical heuristics tuned to
// screenshot and photo artifacts; they make no adversarial-robustness claim.
func Detect(data []byte) (*Report, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	report := &Report{Checks: make([]CheckResult, 0, len(checks))}
	var probability float64
	for _, check := range checks {
		suspicion, details := runSafely(check, img, data)
		report.Checks = append(report.Checks, CheckResult{
			Name:      check.name,
			Suspicion: suspicion,
			Details:   details,
		})
		probability += suspicion * check.weight
	}
	report.Probability = clamp(probability, 0, 100)
	report.Summary = summarize(report.Probability)
	return report, nil
}

func runSafely(check weightedCheck, img image.Image, raw []byte) (suspicion float64, details string) {
	defer func() {
		if r := recover(); r != nil {
			suspicion = FallbackSuspicion
			details = fmt.Sprintf("check panicked: %v", r)
		}
	}()
	suspicion, details, err := check.run(img, raw)
	if err != nil {
		return FallbackSuspicion, fmt.Sprintf("check failed: %v", err)
	}
	return clamp(suspicion, 0, 100), details
}

func summarize(probability float64) string {
	switch {
	case probability < 20:
		return SummaryClean
	case probability < 50:
		return SummaryLowRisk
	case probability < 75:
		return SummarySuspicious
	default:
		return SummaryHighRisk
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
