package consensus

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
)

var (
	// ErrScreenMissing means one of the two expected portal screens never
	// appeared in any sampled frame. No grade aggregation happens then.
	ErrScreenMissing = errors.New("SCREEN_MISSING")
	// ErrTimeGapTooLarge means the two screens were first seen too far
	// apart on the recording timeline.
	ErrTimeGapTooLarge = errors.New("TIME_GAP_TOO_LARGE")
)

// MaxPageGap is the ceiling on the gap between the first sighting of the
// two expected screens.
const MaxPageGap = 30 * time.Minute

// FrameObservation is one sampled frame after per-frame consensus.
type FrameObservation struct {
	Index     int
	Timestamp time.Duration
	Page      extract.PageKind
	Grades    map[curriculum.ModuleID]ConsensusGrade
}

// Fluctuation is a flagged value jump between consecutive sightings of the
// same module field. Retained for audit, never silently dropped.
type Fluctuation struct {
	Module     curriculum.ModuleID `json:"module"`
	Field      string              `json:"field"`
	FromFrame  int                 `json:"from_frame"`
	ToFrame    int                 `json:"to_frame"`
	FromValue  float64             `json:"from_value"`
	ToValue    float64             `json:"to_value"`
	Delta      float64             `json:"delta"`
	Suspicious bool                `json:"suspicious"`
}

// FinalGrade is a module's value reduced across all frames.
type FinalGrade struct {
	Module                curriculum.ModuleID
	Exam                  *float64
	Continuous            *float64
	ExamConsistency       float64
	ContinuousConsistency float64
	FramesFound           int
}

type TemporalResult struct {
	Grades           map[curriculum.ModuleID]FinalGrade
	Consistency      float64
	PagesIndependent bool
	Fluctuations     []Fluctuation
}

const (
	fluctuationDelta = 2.0
	suspiciousDelta  = 5.0
)

type fieldObservation struct {
	frame int
	value float64
}

// Aggregate reduces ordered per-frame consensus sets into final grades.
// Policy order: coverage rule, independence rule, timing rule, then the
// cross-frame bucket vote and fluctuation detection.
func Aggregate(frames []FrameObservation, maxGap time.Duration) (*TemporalResult, error) {
	if maxGap <= 0 {
		maxGap = MaxPageGap
	}

	firstExam, firstContinuous := -1, -1
	for i, frame := range frames {
		switch frame.Page {
		case extract.PageExam:
			if firstExam < 0 {
				firstExam = i
			}
		case extract.PageContinuous:
			if firstContinuous < 0 {
				firstContinuous = i
			}
		}
	}
	if firstExam < 0 || firstContinuous < 0 {
		return nil, ErrScreenMissing
	}

	result := &TemporalResult{
		Grades:           make(map[curriculum.ModuleID]FinalGrade),
		PagesIndependent: firstExam != firstContinuous,
	}

	gap := frames[firstExam].Timestamp - frames[firstContinuous].Timestamp
	if gap < 0 {
		gap = -gap
	}
	if gap > maxGap {
		return nil, ErrTimeGapTooLarge
	}

	examObs := make(map[curriculum.ModuleID][]fieldObservation)
	continuousObs := make(map[curriculum.ModuleID][]fieldObservation)
	frameCounts := make(map[curriculum.ModuleID]int)
	var moduleOrder []curriculum.ModuleID
	for _, frame := range frames {
		for id, grade := range frame.Grades {
			if _, seen := frameCounts[id]; !seen {
				moduleOrder = append(moduleOrder, id)
			}
			frameCounts[id]++
			if grade.Exam != nil {
				examObs[id] = append(examObs[id], fieldObservation{frame: frame.Index, value: *grade.Exam})
			}
			if grade.Continuous != nil {
				continuousObs[id] = append(continuousObs[id], fieldObservation{frame: frame.Index, value: *grade.Continuous})
			}
		}
	}
	sort.Slice(moduleOrder, func(i, j int) bool { return moduleOrder[i] < moduleOrder[j] })

	var consistencySum float64
	for _, id := range moduleOrder {
		final := FinalGrade{Module: id, FramesFound: frameCounts[id]}
		fields := 0
		var fieldSum float64
		if value, pct, ok := reduceField(examObs[id]); ok {
			final.Exam = &value
			final.ExamConsistency = pct
			fields++
			fieldSum += pct
		}
		if value, pct, ok := reduceField(continuousObs[id]); ok {
			final.Continuous = &value
			final.ContinuousConsistency = pct
			fields++
			fieldSum += pct
		}
		if fields > 0 {
			consistencySum += fieldSum / float64(fields)
		}
		result.Grades[id] = final

		result.Fluctuations = append(result.Fluctuations, detectFluctuations(id, "exam", examObs[id])...)
		result.Fluctuations = append(result.Fluctuations, detectFluctuations(id, "continuous", continuousObs[id])...)
	}
	if len(moduleOrder) > 0 {
		result.Consistency = consistencySum / float64(len(moduleOrder))
	}
	return result, nil
}

// reduceField applies the same bucket vote as the engine consensus, but
// across frames. The consistency percentage is the share of frames backing
// the winning bucket.
func reduceField(observations []fieldObservation) (float64, float64, bool) {
	if len(observations) == 0 {
		return 0, 0, false
	}
	values := make([]float64, len(observations))
	for i, obs := range observations {
		values[i] = obs.value
	}
	vote, _ := majority(values)
	pct := float64(vote.supports) / float64(len(observations)) * 100
	return vote.value, pct, true
}

func detectFluctuations(id curriculum.ModuleID, field string, observations []fieldObservation) []Fluctuation {
	if len(observations) < 2 {
		return nil
	}
	ordered := make([]fieldObservation, len(observations))
	copy(ordered, observations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].frame < ordered[j].frame })

	var out []Fluctuation
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		delta := math.Abs(cur.value - prev.value)
		if delta <= fluctuationDelta {
			continue
		}
		out = append(out, Fluctuation{
			Module:     id,
			Field:      field,
			FromFrame:  prev.frame,
			ToFrame:    cur.frame,
			FromValue:  prev.value,
			ToValue:    cur.value,
			Delta:      delta,
			Suspicious: delta > suspiciousDelta,
		})
	}
	return out
}
