package verify

import (
	"fmt"
	"math"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
)

const (
	FieldExam       = "exam"
	FieldContinuous = "continuous"
)

// Slot is one comparable grade position. Mandatory slots veto verification
// on mismatch regardless of the aggregate score.
type Slot struct {
	Module      curriculum.ModuleID `json:"module"`
	Field       string              `json:"field"`
	Mandatory   bool                `json:"mandatory"`
	Coefficient float64             `json:"coefficient"`
}

type SlotDetail struct {
	Slot      Slot     `json:"slot"`
	Extracted *float64 `json:"extracted"`
	Stored    *float64 `json:"stored"`
	Match     bool     `json:"match"`
}

type CredibilityResult struct {
	Score             int          `json:"score"`
	Total             int          `json:"total"`
	Passed            bool         `json:"passed"`
	MandatoryFailures []string     `json:"mandatory_failures"`
	Details           []SlotDetail `json:"details"`
}

const slotTolerance = 0.5

// DefaultSlots derives the fixed ordered slot list from the registry: exam
// marks of heavyweight modules (coefficient >= 3) are mandatory, everything
// else is tolerant.
func DefaultSlots(reg *curriculum.Registry) []Slot {
	var slots []Slot
	for _, module := range reg.All() {
		slots = append(slots, Slot{
			Module:      module.ID,
			Field:       FieldExam,
			Mandatory:   module.Coefficient >= 3,
			Coefficient: module.Coefficient,
		})
		if module.HasContinuous {
			slots = append(slots, Slot{
				Module:      module.ID,
				Field:       FieldContinuous,
				Coefficient: module.Coefficient,
			})
		}
	}
	return slots
}

// CrossCheck compares OCR-extracted grades against the student's previously
// self-reported values slot by slot. A slot matches when both values agree
// within +/-0.5, or both are absent. passed requires the aggregate
// threshold AND zero mandatory mismatches.
func CrossCheck(
	slots []Slot,
	extracted map[curriculum.ModuleID]extract.GradeCell,
	stored map[curriculum.ModuleID]extract.GradeCell,
	threshold int,
) *CredibilityResult {
	result := &CredibilityResult{Total: len(slots)}
	for _, slot := range slots {
		extractedValue := slotValue(extracted, slot)
		storedValue := slotValue(stored, slot)
		match := valuesMatch(extractedValue, storedValue)
		result.Details = append(result.Details, SlotDetail{
			Slot:      slot,
			Extracted: extractedValue,
			Stored:    storedValue,
			Match:     match,
		})
		if match {
			result.Score++
			continue
		}
		if slot.Mandatory {
			result.MandatoryFailures = append(result.MandatoryFailures,
				fmt.Sprintf("%s/%s", slot.Module, slot.Field))
		}
	}
	result.Passed = result.Score >= threshold && len(result.MandatoryFailures) == 0
	return result
}

func slotValue(grades map[curriculum.ModuleID]extract.GradeCell, slot Slot) *float64 {
	cell, ok := grades[slot.Module]
	if !ok {
		return nil
	}
	if slot.Field == FieldContinuous {
		return cell.Continuous
	}
	return cell.Exam
}

func valuesMatch(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return math.Abs(*a-*b) <= slotTolerance
}
