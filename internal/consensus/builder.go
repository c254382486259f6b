package consensus

import (
	"fmt"
	"math"
	"sort"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
)

// Certainty labels how much independent support a consensus value has.
type Certainty string

const (
	CertaintySingleEngine Certainty = "single_engine"
	CertaintyPartial      Certainty = "partial"
	CertaintyConsensus    Certainty = "consensus"
)

// EngineExtraction is one OCR engine's parsed view of one frame or image.
type EngineExtraction struct {
	Engine     string
	Confidence float64
	RawText    string
	Grades     map[curriculum.ModuleID]extract.GradeCell
}

// ConsensusGrade is the fused value for one module in one frame.
type ConsensusGrade struct {
	Module           curriculum.ModuleID
	Exam             *float64
	Continuous       *float64
	ExamAgreed       bool
	ContinuousAgreed bool
	Certainty        Certainty
	Sources          []string
}

// FrameConsensus is the per-frame fusion of all engine extractions.
type FrameConsensus struct {
	Grades        map[curriculum.ModuleID]ConsensusGrade
	Confidence    float64
	Disagreements []string
}

// Bucket groups values within +/-0.5 by rounding to the nearest half point.
func Bucket(v float64) float64 {
	return math.Round(v*2) / 2
}

type fieldVote struct {
	value    float64
	supports int
	agreed   bool
}

// majority runs the 0.5-bucket vote over one field's observed values.
// Ties break by first-seen bucket order.
// The returned value is the first raw observation of the winning bucket.
func majority(values []float64) (fieldVote, bool) {
	if len(values) == 0 {
		return fieldVote{}, false
	}
	type bucketCount struct {
		first float64
		count int
	}
	order := make([]float64, 0, len(values))
	buckets := make(map[float64]*bucketCount, len(values))
	for _, v := range values {
		b := Bucket(v)
		if entry, ok := buckets[b]; ok {
			entry.count++
			continue
		}
		buckets[b] = &bucketCount{first: v, count: 1}
		order = append(order, b)
	}
	winner := order[0]
	for _, b := range order[1:] {
		if buckets[b].count > buckets[winner].count {
			winner = b
		}
	}
	win := buckets[winner]
	return fieldVote{value: win.first, supports: win.count, agreed: win.count >= 2}, true
}

// Build fuses per-engine extractions for a single frame or image.
//
// A module reported by one engine only keeps that value labelled
// single_engine and is noted as a disagreement; it never fails the frame.
// With two or more reporters each field gets an independent bucket vote,
// and the module is a full consensus only when every observed field agreed.
func Build(extractions []EngineExtraction) *FrameConsensus {
	out := &FrameConsensus{Grades: make(map[curriculum.ModuleID]ConsensusGrade)}

	type moduleObs struct {
		exam       []float64
		continuous []float64
		sources    []string
	}
	observed := make(map[curriculum.ModuleID]*moduleObs)
	var moduleOrder []curriculum.ModuleID
	for _, ext := range extractions {
		for id, cell := range ext.Grades {
			obs, ok := observed[id]
			if !ok {
				obs = &moduleObs{}
				observed[id] = obs
				moduleOrder = append(moduleOrder, id)
			}
			obs.sources = append(obs.sources, ext.Engine)
			if cell.Exam != nil {
				obs.exam = append(obs.exam, *cell.Exam)
			}
			if cell.Continuous != nil {
				obs.continuous = append(obs.continuous, *cell.Continuous)
			}
		}
	}
	sort.Slice(moduleOrder, func(i, j int) bool { return moduleOrder[i] < moduleOrder[j] })

	fullAgreement := 0
	for _, id := range moduleOrder {
		obs := observed[id]
		grade := ConsensusGrade{Module: id, Sources: obs.sources}

		if len(obs.sources) == 1 {
			grade.Certainty = CertaintySingleEngine
			if len(obs.exam) > 0 {
				grade.Exam = &obs.exam[0]
			}
			if len(obs.continuous) > 0 {
				grade.Continuous = &obs.continuous[0]
			}
			out.Disagreements = append(out.Disagreements,
				fmt.Sprintf("module %s seen by %s only", id, obs.sources[0]))
			out.Grades[id] = grade
			continue
		}

		applicable := 0
		agreedFields := 0
		if vote, ok := majority(obs.exam); ok {
			applicable++
			grade.Exam = &vote.value
			grade.ExamAgreed = vote.agreed
			if vote.agreed {
				agreedFields++
			}
		}
		if vote, ok := majority(obs.continuous); ok {
			applicable++
			grade.Continuous = &vote.value
			grade.ContinuousAgreed = vote.agreed
			if vote.agreed {
				agreedFields++
			}
		}
		if applicable > 0 && agreedFields == applicable {
			grade.Certainty = CertaintyConsensus
			fullAgreement++
		} else {
			grade.Certainty = CertaintyPartial
		}
		out.Grades[id] = grade
	}

	if len(moduleOrder) > 0 {
		out.Confidence = float64(fullAgreement) / float64(len(moduleOrder))
	}
	return out
}
