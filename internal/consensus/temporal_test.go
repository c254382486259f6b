package consensus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
)

func frame(index int, ts time.Duration, page extract.PageKind, grades map[curriculum.ModuleID]ConsensusGrade) FrameObservation {
	return FrameObservation{Index: index, Timestamp: ts, Page: page, Grades: grades}
}

func gradeOf(exam float64) map[curriculum.ModuleID]ConsensusGrade {
	return map[curriculum.ModuleID]ConsensusGrade{
		"analysis": {Module: "analysis", Exam: ptr(exam)},
	}
}

func TestAggregate_ScreenMissingShortCircuits(t *testing.T) {
	frames := []FrameObservation{
		frame(0, 0, extract.PageExam, gradeOf(14)),
		frame(1, time.Second, extract.PageExam, gradeOf(14)),
	}
	result, err := Aggregate(frames, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrScreenMissing))
	require.Nil(t, result)
}

func TestAggregate_TimeGapTooLarge(t *testing.T) {
	frames := []FrameObservation{
		frame(0, 0, extract.PageExam, gradeOf(14)),
		frame(1, 31*time.Minute, extract.PageContinuous, gradeOf(14)),
	}
	_, err := Aggregate(frames, 0)
	require.True(t, errors.Is(err, ErrTimeGapTooLarge))
}

func TestAggregate_PagesIndependenceFlag(t *testing.T) {
	sameFrame := []FrameObservation{
		frame(0, 0, extract.PageExam, gradeOf(14)),
		frame(0, 0, extract.PageContinuous, gradeOf(14)),
	}
	result, err := Aggregate(sameFrame, 0)
	require.NoError(t, err)
	require.False(t, result.PagesIndependent)

	separate := []FrameObservation{
		frame(0, 0, extract.PageExam, gradeOf(14)),
		frame(1, time.Second, extract.PageContinuous, gradeOf(14)),
	}
	result, err = Aggregate(separate, 0)
	require.NoError(t, err)
	require.True(t, result.PagesIndependent)
}

func TestAggregate_CrossFrameMajorityAndConsistency(t *testing.T) {
	frames := []FrameObservation{
		frame(0, 0, extract.PageExam, gradeOf(14.0)),
		frame(1, time.Second, extract.PageContinuous, gradeOf(14.1)),
		frame(2, 2*time.Second, extract.PageExam, gradeOf(12.0)),
	}
	result, err := Aggregate(frames, 0)
	require.NoError(t, err)
	final := result.Grades["analysis"]
	require.NotNil(t, final.Exam)
	require.Equal(t, 14.0, *final.Exam)
	require.Equal(t, 3, final.FramesFound)
	require.InDelta(t, 66.67, final.ExamConsistency, 0.01)
	require.InDelta(t, 66.67, result.Consistency, 0.01)
}

func TestAggregate_FluctuationDetection(t *testing.T) {
	frames := []FrameObservation{
		frame(0, 0, extract.PageExam, gradeOf(8.0)),
		frame(1, time.Second, extract.PageContinuous, gradeOf(11.0)),
		frame(2, 2*time.Second, extract.PageExam, gradeOf(18.0)),
	}
	result, err := Aggregate(frames, 0)
	require.NoError(t, err)
	require.Len(t, result.Fluctuations, 2)

	first := result.Fluctuations[0]
	require.Equal(t, 3.0, first.Delta)
	require.False(t, first.Suspicious)

	second := result.Fluctuations[1]
	require.Equal(t, 7.0, second.Delta)
	require.True(t, second.Suspicious)
}

func TestAggregate_SmallJumpNotFlagged(t *testing.T) {
	frames := []FrameObservation{
		frame(0, 0, extract.PageExam, gradeOf(12.0)),
		frame(1, time.Second, extract.PageContinuous, gradeOf(13.5)),
	}
	result, err := Aggregate(frames, 0)
	require.NoError(t, err)
	require.Empty(t, result.Fluctuations)
}
