package service

import (
	"fmt"

	"github.com/edurank/gradeproof/internal/model"
)

// Step is one stage of the verification pipeline. The set is closed; the
// orchestrator can only move along the sequence defined for the job type.
type Step string

const (
	StepUploaded           Step = "UPLOADED"
	StepExtractingFrames   Step = "EXTRACTING_FRAMES"
	StepOCRAnalysis        Step = "OCR_ANALYSIS"
	StepAggregatingResults Step = "AGGREGATING_RESULTS"
	StepPortalCrossCheck   Step = "PORTAL_CROSS_CHECK"
	StepComparingGrades    Step = "COMPARING_GRADES"
	StepTamperingDetection Step = "TAMPERING_DETECTION"
	StepCalculatingScore   Step = "CALCULATING_SCORE"
	StepCompleted          Step = "COMPLETED"
)

var screenshotSteps = []Step{
	StepUploaded,
	StepOCRAnalysis,
	StepAggregatingResults,
	StepPortalCrossCheck,
	StepTamperingDetection,
	StepCalculatingScore,
	StepCompleted,
}

var videoSteps = []Step{
	StepUploaded,
	StepExtractingFrames,
	StepOCRAnalysis,
	StepAggregatingResults,
	StepComparingGrades,
	StepTamperingDetection,
	StepCalculatingScore,
	StepCompleted,
}

// stepMachine walks one job through its transition sequence. Skipping or
// reordering a step is a programming error and is rejected.
type stepMachine struct {
	sequence []Step
	pos      int
}

func newStepMachine(verificationType string) (*stepMachine, error) {
	switch verificationType {
	case model.VerificationTypeScreenshot:
		return &stepMachine{sequence: screenshotSteps}, nil
	case model.VerificationTypeVideo:
		return &stepMachine{sequence: videoSteps}, nil
	}
	return nil, fmt.Errorf("unknown verification type: %s", verificationType)
}

func (m *stepMachine) Current() Step {
	return m.sequence[m.pos]
}

// Advance moves to the named step, which must be exactly the next one.
func (m *stepMachine) Advance(to Step) error {
	if m.pos+1 >= len(m.sequence) {
		return fmt.Errorf("step %s is terminal", m.Current())
	}
	if next := m.sequence[m.pos+1]; next != to {
		return fmt.Errorf("invalid transition %s -> %s (expected %s)", m.Current(), to, next)
	}
	m.pos++
	return nil
}

func (m *stepMachine) Done() bool {
	return m.Current() == StepCompleted
}
