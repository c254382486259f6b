package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
)

func ptr(v float64) *float64 { return &v }

func extraction(engine string, grades map[curriculum.ModuleID]extract.GradeCell) EngineExtraction {
	return EngineExtraction{Engine: engine, Confidence: 90, Grades: grades}
}

func TestBucket(t *testing.T) {
	require.Equal(t, 14.0, Bucket(14.0))
	require.Equal(t, 14.5, Bucket(14.4))
	require.Equal(t, 14.0, Bucket(14.2))
	require.Equal(t, 14.5, Bucket(14.3))
}

func TestBuild_AgreementWithinBucket(t *testing.T) {
	fused := Build([]EngineExtraction{
		extraction("tesseract", map[curriculum.ModuleID]extract.GradeCell{"analysis": {Exam: ptr(14.0)}}),
		extraction("gemini", map[curriculum.ModuleID]extract.GradeCell{"analysis": {Exam: ptr(14.1)}}),
	})
	grade := fused.Grades["analysis"]
	require.True(t, grade.ExamAgreed)
	require.Equal(t, CertaintyConsensus, grade.Certainty)
	require.Equal(t, 14.0, Bucket(*grade.Exam))
	require.Equal(t, 1.0, fused.Confidence)
}

func TestBuild_DisagreementAcrossBuckets(t *testing.T) {
	fused := Build([]EngineExtraction{
		extraction("tesseract", map[curriculum.ModuleID]extract.GradeCell{"analysis": {Exam: ptr(14.0)}}),
		extraction("gemini", map[curriculum.ModuleID]extract.GradeCell{"analysis": {Exam: ptr(16.0)}}),
	})
	grade := fused.Grades["analysis"]
	require.False(t, grade.ExamAgreed)
	require.Equal(t, CertaintyPartial, grade.Certainty)
	// first-seen bucket wins the tie
	require.Equal(t, 14.0, *grade.Exam)
	require.Equal(t, 0.0, fused.Confidence)
}

func TestBuild_NearBucketBoundary(t *testing.T) {
	// 14.0 -> bucket 14.0, 14.4 -> bucket 14.5: not the same bucket
	fused := Build([]EngineExtraction{
		extraction("tesseract", map[curriculum.ModuleID]extract.GradeCell{"analysis": {Exam: ptr(14.0)}}),
		extraction("gemini", map[curriculum.ModuleID]extract.GradeCell{"analysis": {Exam: ptr(14.4)}}),
	})
	grade := fused.Grades["analysis"]
	require.False(t, grade.ExamAgreed)
	bucket := Bucket(*grade.Exam)
	require.True(t, bucket == 14.0 || bucket == 14.5)
}

func TestBuild_SingleEngineIsInformational(t *testing.T) {
	fused := Build([]EngineExtraction{
		extraction("tesseract", map[curriculum.ModuleID]extract.GradeCell{
			"analysis": {Exam: ptr(14.0)},
			"algebra":  {Exam: ptr(11.0)},
		}),
		extraction("gemini", map[curriculum.ModuleID]extract.GradeCell{
			"analysis": {Exam: ptr(14.0)},
		}),
	})
	require.Equal(t, CertaintySingleEngine, fused.Grades["algebra"].Certainty)
	require.Equal(t, 11.0, *fused.Grades["algebra"].Exam)
	require.Len(t, fused.Disagreements, 1)
	// one of two modules fully agreed
	require.Equal(t, 0.5, fused.Confidence)
}

func TestBuild_PartialWhenOnlyOneFieldAgrees(t *testing.T) {
	fused := Build([]EngineExtraction{
		extraction("tesseract", map[curriculum.ModuleID]extract.GradeCell{
			"analysis": {Exam: ptr(14.0), Continuous: ptr(12.0)},
		}),
		extraction("gemini", map[curriculum.ModuleID]extract.GradeCell{
			"analysis": {Exam: ptr(14.0), Continuous: ptr(9.0)},
		}),
	})
	grade := fused.Grades["analysis"]
	require.True(t, grade.ExamAgreed)
	require.False(t, grade.ContinuousAgreed)
	require.Equal(t, CertaintyPartial, grade.Certainty)
}

func TestBuild_Empty(t *testing.T) {
	fused := Build(nil)
	require.Empty(t, fused.Grades)
	require.Equal(t, 0.0, fused.Confidence)
}
