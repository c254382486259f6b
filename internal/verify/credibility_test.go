package verify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
)

func cell(exam, continuous float64) extract.GradeCell {
	return extract.GradeCell{Exam: ptr(exam), Continuous: ptr(continuous)}
}

func matchingGrades(reg *curriculum.Registry) map[curriculum.ModuleID]extract.GradeCell {
	grades := make(map[curriculum.ModuleID]extract.GradeCell)
	for _, module := range reg.All() {
		c := extract.GradeCell{Exam: ptr(13)}
		if module.HasContinuous {
			c.Continuous = ptr(12)
		}
		grades[module.ID] = c
	}
	return grades
}

func TestDefaultSlots_MandatoryOnHeavyweightExams(t *testing.T) {
	reg := curriculum.Default()
	slots := DefaultSlots(reg)
	for _, slot := range slots {
		if slot.Mandatory {
			require.Equal(t, FieldExam, slot.Field)
			require.GreaterOrEqual(t, slot.Coefficient, 3.0)
		}
	}
}

func TestCrossCheck_AllMatchWithinTolerance(t *testing.T) {
	reg := curriculum.Default()
	extracted := matchingGrades(reg)
	stored := matchingGrades(reg)
	// 13 vs 13.5 is still a match
	stored["analysis"] = cell(13.5, 12)
	result := CrossCheck(DefaultSlots(reg), extracted, stored, 10)
	require.True(t, result.Passed)
	require.Equal(t, result.Total, result.Score)
	require.Empty(t, result.MandatoryFailures)
}

func TestCrossCheck_MandatoryMismatchVetoes(t *testing.T) {
	reg := curriculum.Default()
	extracted := matchingGrades(reg)
	stored := matchingGrades(reg)
	// analysis exam is mandatory (coefficient 4); one point off fails it
	stored["analysis"] = cell(14.5, 12)
	result := CrossCheck(DefaultSlots(reg), extracted, stored, 3)
	require.False(t, result.Passed)
	require.Contains(t, result.MandatoryFailures, "analysis/exam")
	// the aggregate score alone would have cleared the threshold
	require.GreaterOrEqual(t, result.Score, 3)
}

func TestCrossCheck_TolerantMismatchOnlyLowersScore(t *testing.T) {
	reg := curriculum.Default()
	extracted := matchingGrades(reg)
	stored := matchingGrades(reg)
	stored["analysis"] = cell(13, 18)
	result := CrossCheck(DefaultSlots(reg), extracted, stored, 3)
	require.True(t, result.Passed)
	require.Equal(t, result.Total-1, result.Score)
	require.Empty(t, result.MandatoryFailures)
}

func TestCrossCheck_BothAbsentIsMatch(t *testing.T) {
	reg := curriculum.Default()
	extracted := matchingGrades(reg)
	stored := matchingGrades(reg)
	extracted["probability"] = extract.GradeCell{Exam: ptr(13)}
	stored["probability"] = extract.GradeCell{Exam: ptr(13)}
	result := CrossCheck(DefaultSlots(reg), extracted, stored, 3)
	require.Equal(t, result.Total, result.Score)
}

func TestCrossCheck_OneSideAbsentIsMismatch(t *testing.T) {
	reg := curriculum.Default()
	extracted := matchingGrades(reg)
	stored := matchingGrades(reg)
	extracted["probability"] = extract.GradeCell{Exam: ptr(13)}
	result := CrossCheck(DefaultSlots(reg), extracted, stored, 3)
	require.Equal(t, result.Total-1, result.Score)
}
