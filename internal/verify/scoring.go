package verify

import (
	"math"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
	"github.com/edurank/gradeproof/internal/model"
)

// Outcome is the scored verdict before and after hard overrides.
type Outcome struct {
	Score     float64            `json:"score"`
	Status    string             `json:"status"`
	Breakdown map[string]float64 `json:"breakdown"`
	Issues    []string           `json:"issues"`
}

const (
	thresholdVerified = 85
	thresholdPending  = 60
)

// ScreenshotEvidence feeds the screenshot scoring profile.
type ScreenshotEvidence struct {
	CodeConfidence       float64 // 0-100, from LocateCode
	StructureScore       float64 // 0-100
	CoverageRatio        float64 // 0-1, modules found over modules expected
	TamperingProbability float64 // 0-100
}

// ScoreScreenshot applies the screenshot weight table: code 40, structure
// 25, coverage 20, tampering (inverted) 15.
func ScoreScreenshot(ev ScreenshotEvidence) Outcome {
	breakdown := map[string]float64{
		"verification_code": ev.CodeConfidence / 100 * 40,
		"structure":         ev.StructureScore / 100 * 25,
		"module_coverage":   clampRatio(ev.CoverageRatio) * 20,
		"tampering":         (100 - clampScore(ev.TamperingProbability)) / 100 * 15,
	}
	score := sum(breakdown)
	return Outcome{Score: score, Status: StatusFor(score), Breakdown: breakdown}
}

// VideoEvidence feeds the video scoring profile.
type VideoEvidence struct {
	OCRAgreement          float64 // 0-100 cross-frame/engine agreement
	ArithmeticConsistency float64 // 0-100
	TemporalConsistency   float64 // 0-100
	TamperingProbability  float64 // 0-100
	CodeFound             bool
	FluctuationCount      int
}

const (
	videoTamperPenaltyFactor   = 0.25
	videoMissingCodePenalty    = 15.0
	videoFluctuationPenalty    = 3.0
	videoFluctuationPenaltyCap = 15.0
)

// ScoreVideo applies the video weight table (agreement 50, arithmetic 30,
// temporal 20) and then subtracts the tampering, code and fluctuation
// penalties. Penalties appear in the breakdown as negative entries so the
// final number stays auditable.
func ScoreVideo(ev VideoEvidence) Outcome {
	breakdown := map[string]float64{
		"ocr_agreement":          clampScore(ev.OCRAgreement) / 100 * 50,
		"arithmetic_consistency": clampScore(ev.ArithmeticConsistency) / 100 * 30,
		"temporal_consistency":   clampScore(ev.TemporalConsistency) / 100 * 20,
	}
	breakdown["tampering_penalty"] = -clampScore(ev.TamperingProbability) * videoTamperPenaltyFactor
	if !ev.CodeFound {
		breakdown["missing_code_penalty"] = -videoMissingCodePenalty
	}
	if ev.FluctuationCount > 0 {
		penalty := math.Min(float64(ev.FluctuationCount)*videoFluctuationPenalty, videoFluctuationPenaltyCap)
		breakdown["fluctuation_penalty"] = -penalty
	}
	score := sum(breakdown)
	if score < 0 {
		score = 0
	}
	return Outcome{Score: score, Status: StatusFor(score), Breakdown: breakdown}
}

// StatusFor maps a numeric trust score to a job status.
func StatusFor(score float64) string {
	switch {
	case score >= thresholdVerified:
		return model.JobStatusVerified
	case score >= thresholdPending:
		return model.JobStatusPending
	default:
		return model.JobStatusRejected
	}
}

// Overrides are hard policy vetoes applied after the numeric score is
// computed; they force REJECTED without rewriting the breakdown.
type Overrides struct {
	CredibilityFailed bool
	PolicyBlocked     bool
	Reasons           []string
}

func Finalize(outcome Outcome, overrides Overrides) Outcome {
	outcome.Issues = append(outcome.Issues, overrides.Reasons...)
	if overrides.CredibilityFailed || overrides.PolicyBlocked {
		outcome.Status = model.JobStatusRejected
	}
	return outcome
}

// ArithmeticConsistency compares the coefficient-weighted average of the
// extracted grades with that of the stored self-reported grades. 100 means
// identical averages; each grade point of divergence costs 25.
func ArithmeticConsistency(
	extracted map[curriculum.ModuleID]extract.GradeCell,
	stored map[curriculum.ModuleID]extract.GradeCell,
	reg *curriculum.Registry,
) float64 {
	extractedAvg, okA := weightedAverage(extracted, reg)
	storedAvg, okB := weightedAverage(stored, reg)
	if !okA || !okB {
		return 0
	}
	return clampScore(100 - math.Abs(extractedAvg-storedAvg)*25)
}

func weightedAverage(grades map[curriculum.ModuleID]extract.GradeCell, reg *curriculum.Registry) (float64, bool) {
	var sumValues, sumWeights float64
	for id, cell := range grades {
		module, ok := reg.Get(id)
		if !ok {
			continue
		}
		var moduleSum float64
		fields := 0
		if cell.Exam != nil {
			moduleSum += *cell.Exam
			fields++
		}
		if cell.Continuous != nil {
			moduleSum += *cell.Continuous
			fields++
		}
		if fields == 0 {
			continue
		}
		sumValues += moduleSum / float64(fields) * module.Coefficient
		sumWeights += module.Coefficient
	}
	if sumWeights == 0 {
		return 0, false
	}
	return sumValues / sumWeights, true
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sum(breakdown map[string]float64) float64 {
	var total float64
	for _, v := range breakdown {
		total += v
	}
	return total
}
