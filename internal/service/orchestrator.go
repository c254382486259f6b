package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edurank/gradeproof/internal/consensus"
	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
	"github.com/edurank/gradeproof/internal/filestore"
	"github.com/edurank/gradeproof/internal/forensics"
	"github.com/edurank/gradeproof/internal/model"
	"github.com/edurank/gradeproof/internal/ocr"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
	"github.com/edurank/gradeproof/internal/pkg/timeutil"
	"github.com/edurank/gradeproof/internal/verify"
	"github.com/edurank/gradeproof/internal/video"
)

// JobStore is the persistence surface the orchestrator writes through.
type JobStore interface {
	Upsert(ctx context.Context, job *model.VerificationJob) error
	UpdateStep(ctx context.Context, jobID, step string, mtime int64) error
	Finish(ctx context.Context, job *model.VerificationJob) error
	GetByUser(ctx context.Context, userID string) (*model.VerificationJob, error)
}

type StudentStore interface {
	Get(ctx context.Context, userID string) (*model.Student, error)
	SetVerified(ctx context.Context, userID string, verified bool, mtime int64) error
}

type GradeStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.ReportedGrade, error)
}

// JobTask is the unit handed to the worker pool: everything the pipeline
// needs to run one verification without touching the request again.
type JobTask struct {
	JobID        string
	UserID       string
	Type         string
	Code         string
	EvidenceKeys []string
}

type OrchestratorConfig struct {
	Timeout    time.Duration
	FrameRate  float64
	MaxFrames  int
	MaxPageGap time.Duration
}

// Orchestrator runs the verification pipeline for one job at a time. It is
// the only writer of job records after submission; its single external side
// effect is flipping students.is_verified on a VERIFIED verdict.
type Orchestrator struct {
	jobs     JobStore
	students StudentStore
	grades   GradeStore
	files    filestore.Store
	engines  []ocr.Engine
	sampler  video.Sampler
	reg      *curriculum.Registry
	cfg      OrchestratorConfig
}

func NewOrchestrator(
	jobs JobStore,
	students StudentStore,
	grades GradeStore,
	files filestore.Store,
	engines []ocr.Engine,
	sampler video.Sampler,
	reg *curriculum.Registry,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 1
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 30
	}
	if cfg.MaxPageGap <= 0 {
		cfg.MaxPageGap = consensus.MaxPageGap
	}
	return &Orchestrator{
		jobs:     jobs,
		students: students,
		grades:   grades,
		files:    files,
		engines:  engines,
		sampler:  sampler,
		reg:      reg,
		cfg:      cfg,
	}
}

// Run executes one job to a terminal state. Errors never escape: anything
// unexpected, including a panic in a pipeline stage, lands the job in
// FAILED and leaves the worker alive.
func (o *Orchestrator) Run(ctx context.Context, task JobTask) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job_id", task.JobID),
		zap.String("user_id", task.UserID),
		zap.String("type", task.Type),
	)
	machine, err := newStepMachine(task.Type)
	if err != nil {
		logger.Error("job failed", zap.Error(err))
		o.finishFailed(ctx, task, StepUploaded, err.Error())
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked", zap.Any("panic", r))
			o.finishFailed(ctx, task, machine.Current(), fmt.Sprintf("internal error: %v", r))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	switch task.Type {
	case model.VerificationTypeScreenshot:
		err = o.runScreenshot(runCtx, machine, task)
	case model.VerificationTypeVideo:
		err = o.runVideo(runCtx, machine, task)
	}
	if err == nil {
		return
	}
	if runCtx.Err() == context.DeadlineExceeded {
		logger.Warn("job timed out", zap.Duration("timeout", o.cfg.Timeout))
		o.finishFailed(ctx, task, machine.Current(), "verification timed out")
		return
	}
	logger.Error("job failed", zap.Error(err))
	o.finishFailed(ctx, task, machine.Current(), err.Error())
}

// pageAnalysis is one evidence image after OCR fusion.
type pageAnalysis struct {
	key       string
	data      []byte
	text      string
	consensus *consensus.FrameConsensus
}

func (o *Orchestrator) runScreenshot(ctx context.Context, machine *stepMachine, task JobTask) error {
	if err := o.advance(ctx, machine, task.JobID, StepOCRAnalysis); err != nil {
		return err
	}
	pages := make([]pageAnalysis, 0, len(task.EvidenceKeys))
	for _, key := range task.EvidenceKeys {
		page, err := o.analyzeImage(ctx, key)
		if err != nil {
			return err
		}
		pages = append(pages, *page)
	}
	if !hasUsableText(pages) {
		return fmt.Errorf("no engine produced text: %w", appErr.ErrNoEvidence)
	}

	if err := o.advance(ctx, machine, task.JobID, StepAggregatingResults); err != nil {
		return err
	}
	merged := mergePages(pages)
	coverage := float64(len(merged)) / float64(o.reg.Len())
	combinedText := combineText(pages)

	if err := o.advance(ctx, machine, task.JobID, StepPortalCrossCheck); err != nil {
		return err
	}
	extractedCells := cellsFromConsensus(merged)
	stored, err := o.storedGrades(ctx, task.UserID)
	if err != nil {
		return err
	}

	var (
		codeMatch   verify.CodeMatch
		structure   *verify.StructureResult
		credibility *verify.CredibilityResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		codeMatch = verify.LocateCode(combinedText, task.Code)
		return nil
	})
	g.Go(func() error {
		extras := extract.UnrecognizedRows(combinedText, o.reg)
		structure = verify.ValidateStructure(extractedCells, extras, nil, o.reg)
		return gctx.Err()
	})
	g.Go(func() error {
		credibility = o.crossCheck(extractedCells, stored)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := o.advance(ctx, machine, task.JobID, StepTamperingDetection); err != nil {
		return err
	}
	tampering, tamperIssues := o.detectTampering(ctx, pages)

	if err := o.advance(ctx, machine, task.JobID, StepCalculatingScore); err != nil {
		return err
	}
	outcome := verify.ScoreScreenshot(verify.ScreenshotEvidence{
		CodeConfidence:       codeMatch.Confidence,
		StructureScore:       structure.Score,
		CoverageRatio:        coverage,
		TamperingProbability: tampering,
	})
	outcome.Issues = append(outcome.Issues, structure.Issues...)
	outcome.Issues = append(outcome.Issues, tamperIssues...)
	if !codeMatch.Found {
		outcome.Issues = append(outcome.Issues, "verification code not visible in evidence")
	}
	outcome = verify.Finalize(outcome, o.overridesFor(credibility))

	if err := o.advance(ctx, machine, task.JobID, StepCompleted); err != nil {
		return err
	}
	return o.finish(ctx, task, outcome, tampering, finalFromConsensus(merged))
}

func (o *Orchestrator) runVideo(ctx context.Context, machine *stepMachine, task JobTask) error {
	if len(task.EvidenceKeys) == 0 {
		return fmt.Errorf("no video evidence: %w", appErr.ErrNoEvidence)
	}

	if err := o.advance(ctx, machine, task.JobID, StepExtractingFrames); err != nil {
		return err
	}
	frames, err := o.sampleFrames(ctx, task.EvidenceKeys[0])
	if err != nil {
		return err
	}

	if err := o.advance(ctx, machine, task.JobID, StepOCRAnalysis); err != nil {
		return err
	}
	observations := make([]consensus.FrameObservation, 0, len(frames))
	analyses := make([]pageAnalysis, 0, len(frames))
	var agreementSum float64
	for _, frame := range frames {
		page, err := o.analyzeImage(ctx, frameKey(task, frame.Index), frame.Data)
		if err != nil {
			return err
		}
		analyses = append(analyses, *page)
		agreementSum += page.consensus.Confidence
		observations = append(observations, consensus.FrameObservation{
			Index:     frame.Index,
			Timestamp: frame.Timestamp,
			Page:      extract.ClassifyPage(page.text),
			Grades:    page.consensus.Grades,
		})
	}
	if !hasUsableText(analyses) {
		return fmt.Errorf("no engine produced text: %w", appErr.ErrNoEvidence)
	}
	agreement := agreementSum / float64(len(frames)) * 100

	if err := o.advance(ctx, machine, task.JobID, StepAggregatingResults); err != nil {
		return err
	}
	temporal, err := consensus.Aggregate(observations, o.cfg.MaxPageGap)
	if err != nil {
		return o.finishRejected(ctx, task, err.Error())
	}

	if err := o.advance(ctx, machine, task.JobID, StepComparingGrades); err != nil {
		return err
	}
	extractedCells := cellsFromTemporal(temporal)
	stored, err := o.storedGrades(ctx, task.UserID)
	if err != nil {
		return err
	}
	credibility := o.crossCheck(extractedCells, stored)
	arithmetic := 100.0
	if len(stored) > 0 {
		arithmetic = verify.ArithmeticConsistency(extractedCells, stored, o.reg)
	}

	if err := o.advance(ctx, machine, task.JobID, StepTamperingDetection); err != nil {
		return err
	}
	tampering, tamperIssues := o.detectTampering(ctx, sampleForForensics(analyses))

	if err := o.advance(ctx, machine, task.JobID, StepCalculatingScore); err != nil {
		return err
	}
	codeMatch := verify.LocateCode(combineText(analyses), task.Code)
	outcome := verify.ScoreVideo(verify.VideoEvidence{
		OCRAgreement:          agreement,
		ArithmeticConsistency: arithmetic,
		TemporalConsistency:   temporal.Consistency,
		TamperingProbability:  tampering,
		CodeFound:             codeMatch.Found,
		FluctuationCount:      len(temporal.Fluctuations),
	})
	outcome.Issues = append(outcome.Issues, tamperIssues...)
	if !temporal.PagesIndependent {
		outcome.Issues = append(outcome.Issues, "exam and continuous screens first seen in the same frame")
	}
	for _, f := range temporal.Fluctuations {
		if f.Suspicious {
			outcome.Issues = append(outcome.Issues,
				fmt.Sprintf("suspicious %s/%s jump of %.1f between frames %d and %d",
					f.Module, f.Field, f.Delta, f.FromFrame, f.ToFrame))
			continue
		}
		outcome.Issues = append(outcome.Issues,
			fmt.Sprintf("%s/%s moved by %.1f between frames %d and %d",
				f.Module, f.Field, f.Delta, f.FromFrame, f.ToFrame))
	}
	outcome = verify.Finalize(outcome, o.overridesFor(credibility))

	if err := o.advance(ctx, machine, task.JobID, StepCompleted); err != nil {
		return err
	}
	return o.finish(ctx, task, outcome, tampering, finalFromTemporal(temporal))
}

// analyzeImage fans the engines out over one image and fuses the results.
// data is optional; when absent the image is read back from the filestore.
func (o *Orchestrator) analyzeImage(ctx context.Context, key string, data ...[]byte) (*pageAnalysis, error) {
	var image []byte
	if len(data) > 0 && len(data[0]) > 0 {
		image = data[0]
	} else {
		var err error
		image, err = o.readEvidence(ctx, key)
		if err != nil {
			return nil, err
		}
	}
	results := ocr.RecognizeAll(ctx, o.engines, image)
	var texts []string
	extractions := make([]consensus.EngineExtraction, 0, len(results))
	for _, res := range results {
		if !res.Result.Usable() {
			continue
		}
		texts = append(texts, res.Result.Text)
		extractions = append(extractions, consensus.EngineExtraction{
			Engine:     res.Engine,
			Confidence: res.Result.Confidence,
			RawText:    res.Result.Text,
			Grades:     extract.ParseGrades(res.Result.Text, o.reg),
		})
	}
	return &pageAnalysis{
		key:       key,
		data:      image,
		text:      strings.Join(texts, "\n"),
		consensus: consensus.Build(extractions),
	}, nil
}

func (o *Orchestrator) sampleFrames(ctx context.Context, key string) ([]video.Frame, error) {
	data, err := o.readEvidence(ctx, key)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "gradeproof-video-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return o.sampler.Sample(ctx, tmp.Name(), o.cfg.FrameRate, o.cfg.MaxFrames)
}

// detectTampering scores each image and keeps the worst case. A page that
// fails to decode counts as an issue, not a crash.
func (o *Orchestrator) detectTampering(ctx context.Context, pages []pageAnalysis) (float64, []string) {
	type tamperOut struct {
		probability float64
		issue       string
	}
	outs := make([]tamperOut, len(pages))
	g, _ := errgroup.WithContext(ctx)
	for i := range pages {
		i := i
		g.Go(func() error {
			report, err := forensics.Detect(pages[i].data)
			if err != nil {
				outs[i] = tamperOut{
					probability: float64(forensics.FallbackSuspicion),
					issue:       fmt.Sprintf("forensic analysis failed for %s", pages[i].key),
				}
				return nil
			}
			out := tamperOut{probability: report.Probability}
			if report.Summary == forensics.SummarySuspicious || report.Summary == forensics.SummaryHighRisk {
				out.issue = fmt.Sprintf("tampering signals in %s (%s)", pages[i].key, report.Summary)
			}
			outs[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var worst float64
	var issues []string
	for _, out := range outs {
		if out.probability > worst {
			worst = out.probability
		}
		if out.issue != "" {
			issues = append(issues, out.issue)
		}
	}
	return worst, issues
}

func (o *Orchestrator) crossCheck(
	extracted map[curriculum.ModuleID]extract.GradeCell,
	stored map[curriculum.ModuleID]extract.GradeCell,
) *verify.CredibilityResult {
	// nothing self-reported yet: nothing to contradict
	if len(stored) == 0 {
		return nil
	}
	slots := verify.DefaultSlots(o.reg)
	threshold := len(slots) * 2 / 3
	return verify.CrossCheck(slots, extracted, stored, threshold)
}

func (o *Orchestrator) overridesFor(credibility *verify.CredibilityResult) verify.Overrides {
	if credibility == nil || credibility.Passed {
		return verify.Overrides{}
	}
	overrides := verify.Overrides{CredibilityFailed: true}
	for _, failure := range credibility.MandatoryFailures {
		overrides.Reasons = append(overrides.Reasons, "mandatory grade mismatch: "+failure)
	}
	if len(overrides.Reasons) == 0 {
		overrides.Reasons = append(overrides.Reasons,
			fmt.Sprintf("reported grades contradict evidence (%d/%d slots match)",
				credibility.Score, credibility.Total))
	}
	return overrides
}

func (o *Orchestrator) storedGrades(ctx context.Context, userID string) (map[curriculum.ModuleID]extract.GradeCell, error) {
	items, err := o.grades.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[curriculum.ModuleID]extract.GradeCell, len(items))
	for _, item := range items {
		out[curriculum.ModuleID(item.ModuleID)] = extract.GradeCell{
			Exam:       item.Exam,
			Continuous: item.Continuous,
		}
	}
	return out, nil
}

func (o *Orchestrator) advance(ctx context.Context, machine *stepMachine, jobID string, to Step) error {
	if err := machine.Advance(to); err != nil {
		return err
	}
	return o.jobs.UpdateStep(ctx, jobID, string(to), timeutil.NowUnix())
}

func (o *Orchestrator) readEvidence(ctx context.Context, key string) ([]byte, error) {
	rc, err := o.files.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open evidence %s: %w", key, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (o *Orchestrator) finish(
	ctx context.Context,
	task JobTask,
	outcome verify.Outcome,
	tampering float64,
	grades map[string]model.FinalGradeValue,
) error {
	now := timeutil.NowUnix()
	job := &model.VerificationJob{
		ID:                   task.JobID,
		UserID:               task.UserID,
		VerificationType:     task.Type,
		Status:               outcome.Status,
		CurrentStep:          string(StepCompleted),
		TrustScore:           outcome.Score,
		TamperingProbability: tampering,
		ExtractedGrades:      grades,
		Issues:               outcome.Issues,
		ScoreBreakdown:       outcome.Breakdown,
		Mtime:                now,
	}
	if err := o.jobs.Finish(ctx, job); err != nil {
		return err
	}
	if outcome.Status == model.JobStatusVerified {
		if err := o.students.SetVerified(ctx, task.UserID, true, now); err != nil {
			logutil.GetLogger(ctx).Error("mark student verified",
				zap.String("user_id", task.UserID), zap.Error(err))
		}
	}
	return nil
}

// finishRejected closes the job on a named policy rule.
func (o *Orchestrator) finishRejected(ctx context.Context, task JobTask, rule string) error {
	return o.jobs.Finish(ctx, &model.VerificationJob{
		ID:               task.JobID,
		UserID:           task.UserID,
		VerificationType: task.Type,
		Status:           model.JobStatusRejected,
		CurrentStep:      string(StepAggregatingResults),
		Issues:           []string{rule},
		Message:          rule,
		Mtime:            timeutil.NowUnix(),
	})
}

func (o *Orchestrator) finishFailed(ctx context.Context, task JobTask, step Step, message string) {
	writeCtx := context.WithoutCancel(ctx)
	err := o.jobs.Finish(writeCtx, &model.VerificationJob{
		ID:               task.JobID,
		UserID:           task.UserID,
		VerificationType: task.Type,
		Status:           model.JobStatusFailed,
		CurrentStep:      string(step),
		Message:          message,
		Mtime:            timeutil.NowUnix(),
	})
	if err != nil {
		logutil.GetLogger(writeCtx).Error("persist failed job",
			zap.String("job_id", task.JobID), zap.Error(err))
	}
}

func hasUsableText(pages []pageAnalysis) bool {
	for _, page := range pages {
		if strings.TrimSpace(page.text) != "" {
			return true
		}
	}
	return false
}

func combineText(pages []pageAnalysis) string {
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		texts = append(texts, page.text)
	}
	return strings.Join(texts, "\n")
}

// mergePages folds per-image consensus sets into one module map. The first
// sighting of each field wins; later pages only fill gaps.
func mergePages(pages []pageAnalysis) map[curriculum.ModuleID]consensus.ConsensusGrade {
	merged := make(map[curriculum.ModuleID]consensus.ConsensusGrade)
	for _, page := range pages {
		ids := make([]curriculum.ModuleID, 0, len(page.consensus.Grades))
		for id := range page.consensus.Grades {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			grade := page.consensus.Grades[id]
			existing, ok := merged[id]
			if !ok {
				merged[id] = grade
				continue
			}
			if existing.Exam == nil && grade.Exam != nil {
				existing.Exam = grade.Exam
				existing.ExamAgreed = grade.ExamAgreed
			}
			if existing.Continuous == nil && grade.Continuous != nil {
				existing.Continuous = grade.Continuous
				existing.ContinuousAgreed = grade.ContinuousAgreed
			}
			merged[id] = existing
		}
	}
	return merged
}

func cellsFromConsensus(grades map[curriculum.ModuleID]consensus.ConsensusGrade) map[curriculum.ModuleID]extract.GradeCell {
	out := make(map[curriculum.ModuleID]extract.GradeCell, len(grades))
	for id, grade := range grades {
		out[id] = extract.GradeCell{Exam: grade.Exam, Continuous: grade.Continuous}
	}
	return out
}

func cellsFromTemporal(result *consensus.TemporalResult) map[curriculum.ModuleID]extract.GradeCell {
	out := make(map[curriculum.ModuleID]extract.GradeCell, len(result.Grades))
	for id, grade := range result.Grades {
		out[id] = extract.GradeCell{Exam: grade.Exam, Continuous: grade.Continuous}
	}
	return out
}

func finalFromConsensus(grades map[curriculum.ModuleID]consensus.ConsensusGrade) map[string]model.FinalGradeValue {
	out := make(map[string]model.FinalGradeValue, len(grades))
	for id, grade := range grades {
		out[string(id)] = model.FinalGradeValue{Exam: grade.Exam, Continuous: grade.Continuous}
	}
	return out
}

func finalFromTemporal(result *consensus.TemporalResult) map[string]model.FinalGradeValue {
	out := make(map[string]model.FinalGradeValue, len(result.Grades))
	for id, grade := range result.Grades {
		out[string(id)] = model.FinalGradeValue{
			Exam:                  grade.Exam,
			Continuous:            grade.Continuous,
			ExamConsistency:       grade.ExamConsistency,
			ContinuousConsistency: grade.ContinuousConsistency,
			FramesFound:           grade.FramesFound,
		}
	}
	return out
}

// sampleForForensics keeps forensic analysis bounded on long recordings:
// first, middle and last frames.
func sampleForForensics(analyses []pageAnalysis) []pageAnalysis {
	if len(analyses) <= 3 {
		return analyses
	}
	return []pageAnalysis{analyses[0], analyses[len(analyses)/2], analyses[len(analyses)-1]}
}

func frameKey(task JobTask, index int) string {
	return fmt.Sprintf("%s/frame_%05d.jpg", task.JobID, index)
}
