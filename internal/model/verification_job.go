package model

const (
	JobStatusProcessing = "PROCESSING"
	JobStatusVerified   = "VERIFIED"
	JobStatusPending    = "PENDING"
	JobStatusRejected   = "REJECTED"
	JobStatusFailed     = "FAILED"
)

const (
	VerificationTypeScreenshot = "screenshot"
	VerificationTypeVideo      = "video"
)

// FinalGradeValue is one module's verdict as stored on a completed job.
type FinalGradeValue struct {
	Exam                  *float64 `json:"exam"`
	Continuous            *float64 `json:"continuous,omitempty"`
	ExamConsistency       float64  `json:"exam_consistency,omitempty"`
	ContinuousConsistency float64  `json:"continuous_consistency,omitempty"`
	FramesFound           int      `json:"frames_found,omitempty"`
}

// VerificationJob is the single active job record per user. The orchestrator
// is its only writer.
type VerificationJob struct {
	ID                   string                     `json:"id"`
	UserID               string                     `json:"user_id"`
	VerificationType     string                     `json:"verification_type"`
	Status               string                     `json:"status"`
	CurrentStep          string                     `json:"current_step"`
	TrustScore           float64                    `json:"trust_score"`
	TamperingProbability float64                    `json:"tampering_probability"`
	ExtractedGrades      map[string]FinalGradeValue `json:"extracted_grades"`
	Issues               []string                   `json:"issues"`
	ScoreBreakdown       map[string]float64         `json:"score_breakdown"`
	Message              string                     `json:"message"`
	Ctime                int64                      `json:"ctime"`
	Mtime                int64                      `json:"mtime"`
}

// Terminal reports whether the job reached a final state.
func (j *VerificationJob) Terminal() bool {
	switch j.Status {
	case JobStatusVerified, JobStatusPending, JobStatusRejected, JobStatusFailed:
		return true
	}
	return false
}
