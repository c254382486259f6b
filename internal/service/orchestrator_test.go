package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edurank/gradeproof/internal/consensus"
	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/model"
	"github.com/edurank/gradeproof/internal/ocr"
	"github.com/edurank/gradeproof/internal/video"
)

type memJobStore struct {
	mu       sync.Mutex
	steps    []string
	finished *model.VerificationJob
}

func (s *memJobStore) Upsert(ctx context.Context, job *model.VerificationJob) error { return nil }

func (s *memJobStore) UpdateStep(ctx context.Context, jobID, step string, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
	return nil
}

func (s *memJobStore) Finish(ctx context.Context, job *model.VerificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = job
	return nil
}

func (s *memJobStore) GetByUser(ctx context.Context, userID string) (*model.VerificationJob, error) {
	return nil, nil
}

type memStudentStore struct {
	mu       sync.Mutex
	verified []string
}

func (s *memStudentStore) Get(ctx context.Context, userID string) (*model.Student, error) {
	return &model.Student{UserID: userID, StudentID: "S-1"}, nil
}

func (s *memStudentStore) SetVerified(ctx context.Context, userID string, verified bool, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = append(s.verified, userID)
	return nil
}

type memGradeStore struct {
	grades []model.ReportedGrade
}

func (s *memGradeStore) ListByUser(ctx context.Context, userID string) ([]model.ReportedGrade, error) {
	return s.grades, nil
}

type memFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFileStore() *memFileStore {
	return &memFileStore{files: map[string][]byte{}}
}

func (s *memFileStore) Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.files[key] = data
	s.mu.Unlock()
	return nil
}

func (s *memFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return io.NopCloser(bytes.NewReader(s.files[key])), nil
}

func (s *memFileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

// fixedEngine always transcribes the same text, whatever the image.
type fixedEngine struct {
	name string
	text string
}

func (e *fixedEngine) Name() string { return e.name }

func (e *fixedEngine) Recognize(ctx context.Context, img []byte) (*ocr.Result, error) {
	return &ocr.Result{Text: e.text, Confidence: 90}, nil
}

// echoEngine transcribes the image bytes themselves, letting frame stubs
// carry their own text.
type echoEngine struct {
	name string
}

func (e *echoEngine) Name() string { return e.name }

func (e *echoEngine) Recognize(ctx context.Context, img []byte) (*ocr.Result, error) {
	return &ocr.Result{Text: string(img), Confidence: 90}, nil
}

type stubSampler struct {
	duration time.Duration
	frames   []video.Frame
}

func (s *stubSampler) Duration(ctx context.Context, path string) (time.Duration, error) {
	return s.duration, nil
}

func (s *stubSampler) Sample(ctx context.Context, path string, rate float64, maxFrames int) ([]video.Frame, error) {
	return s.frames, nil
}

const transcriptText = `Relevé de notes GP-48213
Analyse 14 13
Algèbre 12 11
Algorithmique 15 14
Structure Machine 10 11
Probabilités 13 12
Physique 11 10
Anglais 15
Histoire des Sciences 12`

func flatPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 230, G: 230, B: 228, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func matchingReported() []model.ReportedGrade {
	rows := []struct {
		module     string
		exam       float64
		continuous *float64
	}{
		{"analysis", 14, ptrF(13)},
		{"algebra", 12, ptrF(11)},
		{"algorithmics", 15, ptrF(14)},
		{"machine-structure", 10, ptrF(11)},
		{"probability", 13, ptrF(12)},
		{"physics", 11, ptrF(10)},
		{"english", 15, nil},
		{"history-of-science", 12, nil},
	}
	out := make([]model.ReportedGrade, 0, len(rows))
	for _, row := range rows {
		exam := row.exam
		out = append(out, model.ReportedGrade{
			UserID:     "u1",
			ModuleID:   row.module,
			Exam:       &exam,
			Continuous: row.continuous,
		})
	}
	return out
}

func ptrF(v float64) *float64 { return &v }

func newTestOrchestrator(jobs *memJobStore, students *memStudentStore, grades *memGradeStore, files *memFileStore, engines []ocr.Engine, sampler video.Sampler) *Orchestrator {
	return NewOrchestrator(jobs, students, grades, files, engines, sampler,
		curriculum.Default(), OrchestratorConfig{Timeout: 30 * time.Second})
}

func TestOrchestrator_ScreenshotVerified(t *testing.T) {
	jobs := &memJobStore{}
	students := &memStudentStore{}
	grades := &memGradeStore{grades: matchingReported()}
	files := newMemFileStore()
	files.files["jobs/j1/evidence_00.png"] = flatPNG(t)

	engines := []ocr.Engine{
		&fixedEngine{name: "alpha", text: transcriptText},
		&fixedEngine{name: "beta", text: transcriptText},
	}
	o := newTestOrchestrator(jobs, students, grades, files, engines, nil)
	o.Run(context.Background(), JobTask{
		JobID:        "j1",
		UserID:       "u1",
		Type:         model.VerificationTypeScreenshot,
		Code:         "GP-48213",
		EvidenceKeys: []string{"jobs/j1/evidence_00.png"},
	})

	require.NotNil(t, jobs.finished)
	require.Equal(t, model.JobStatusVerified, jobs.finished.Status)
	require.Equal(t, []string{
		string(StepOCRAnalysis), string(StepAggregatingResults),
		string(StepPortalCrossCheck), string(StepTamperingDetection),
		string(StepCalculatingScore), string(StepCompleted),
	}, jobs.steps)
	require.Equal(t, []string{"u1"}, students.verified)

	analysis := jobs.finished.ExtractedGrades["analysis"]
	require.NotNil(t, analysis.Exam)
	require.Equal(t, 14.0, *analysis.Exam)
	require.NotNil(t, analysis.Continuous)
	require.Equal(t, 13.0, *analysis.Continuous)
	require.Equal(t, 40.0, jobs.finished.ScoreBreakdown["verification_code"])
	require.Equal(t, 25.0, jobs.finished.ScoreBreakdown["structure"])
	require.Equal(t, 20.0, jobs.finished.ScoreBreakdown["module_coverage"])
}

func TestOrchestrator_MandatoryMismatchRejects(t *testing.T) {
	reported := matchingReported()
	// analysis exam off by two: mandatory slot, hard veto
	wrong := 16.0
	reported[0].Exam = &wrong

	jobs := &memJobStore{}
	students := &memStudentStore{}
	files := newMemFileStore()
	files.files["jobs/j2/evidence_00.png"] = flatPNG(t)

	engines := []ocr.Engine{
		&fixedEngine{name: "alpha", text: transcriptText},
		&fixedEngine{name: "beta", text: transcriptText},
	}
	o := newTestOrchestrator(jobs, students, &memGradeStore{grades: reported}, files, engines, nil)
	o.Run(context.Background(), JobTask{
		JobID:        "j2",
		UserID:       "u1",
		Type:         model.VerificationTypeScreenshot,
		Code:         "GP-48213",
		EvidenceKeys: []string{"jobs/j2/evidence_00.png"},
	})

	require.NotNil(t, jobs.finished)
	require.Equal(t, model.JobStatusRejected, jobs.finished.Status)
	require.Contains(t, jobs.finished.Issues, "mandatory grade mismatch: analysis/exam")
	require.Empty(t, students.verified)
	// the numeric score itself stayed high; only the veto rejected it
	require.GreaterOrEqual(t, jobs.finished.TrustScore, 85.0)
}

func TestOrchestrator_NoUsableTextFails(t *testing.T) {
	jobs := &memJobStore{}
	files := newMemFileStore()
	files.files["jobs/j3/evidence_00.png"] = flatPNG(t)

	engines := []ocr.Engine{&fixedEngine{name: "alpha", text: "   "}}
	o := newTestOrchestrator(jobs, &memStudentStore{}, &memGradeStore{}, files, engines, nil)
	o.Run(context.Background(), JobTask{
		JobID:        "j3",
		UserID:       "u1",
		Type:         model.VerificationTypeScreenshot,
		Code:         "GP-48213",
		EvidenceKeys: []string{"jobs/j3/evidence_00.png"},
	})

	require.NotNil(t, jobs.finished)
	require.Equal(t, model.JobStatusFailed, jobs.finished.Status)
	require.Contains(t, jobs.finished.Message, "no engine produced text")
	require.Equal(t, string(StepOCRAnalysis), jobs.finished.CurrentStep)
}

const examPageText = `Notes d'examen GP-48213
Analyse 14 13
Algèbre 12 11
Anglais 15`

const continuousPageText = `Contrôle continu
Analyse 14 13
Algèbre 12 11
Anglais 15`

func TestOrchestrator_VideoVerifiedFlow(t *testing.T) {
	jobs := &memJobStore{}
	students := &memStudentStore{}
	grades := &memGradeStore{}
	files := newMemFileStore()
	files.files["jobs/j4/evidence_00.mp4"] = []byte("video-bytes")

	sampler := &stubSampler{frames: []video.Frame{
		{Index: 0, Timestamp: 0, Data: []byte(examPageText)},
		{Index: 1, Timestamp: time.Second, Data: []byte(continuousPageText)},
	}}
	engines := []ocr.Engine{&echoEngine{name: "alpha"}, &echoEngine{name: "beta"}}

	o := newTestOrchestrator(jobs, students, grades, files, engines, sampler)
	o.Run(context.Background(), JobTask{
		JobID:        "j4",
		UserID:       "u1",
		Type:         model.VerificationTypeVideo,
		Code:         "GP-48213",
		EvidenceKeys: []string{"jobs/j4/evidence_00.mp4"},
	})

	require.NotNil(t, jobs.finished)
	require.Equal(t, []string{
		string(StepExtractingFrames), string(StepOCRAnalysis),
		string(StepAggregatingResults), string(StepComparingGrades),
		string(StepTamperingDetection), string(StepCalculatingScore),
		string(StepCompleted),
	}, jobs.steps)

	// frame data is not decodable imagery, so forensics degrades to the
	// same fallback figure an errored check contributes; everything else
	// is fully consistent
	require.Equal(t, 25.0, jobs.finished.TamperingProbability)
	require.InDelta(t, 93.75, jobs.finished.TrustScore, 1e-9)
	require.Equal(t, model.JobStatusVerified, jobs.finished.Status)

	analysis := jobs.finished.ExtractedGrades["analysis"]
	require.NotNil(t, analysis.Exam)
	require.Equal(t, 14.0, *analysis.Exam)
	require.Equal(t, 2, analysis.FramesFound)
}

func TestOrchestrator_VideoFluctuationRecordedInIssues(t *testing.T) {
	jobs := &memJobStore{}
	files := newMemFileStore()
	files.files["jobs/j7/evidence_00.mp4"] = []byte("video-bytes")

	// analysis exam moves 14 -> 17 between the first two frames: over the
	// recording threshold but under the suspicious one
	sampler := &stubSampler{frames: []video.Frame{
		{Index: 0, Timestamp: 0, Data: []byte("Notes d'examen GP-48213\nAnalyse 14 13")},
		{Index: 1, Timestamp: time.Second, Data: []byte("Notes d'examen GP-48213\nAnalyse 17 13")},
		{Index: 2, Timestamp: 2 * time.Second, Data: []byte("Contrôle continu\nAnalyse 17 13")},
	}}
	engines := []ocr.Engine{&echoEngine{name: "alpha"}, &echoEngine{name: "beta"}}

	o := newTestOrchestrator(jobs, &memStudentStore{}, &memGradeStore{}, files, engines, sampler)
	o.Run(context.Background(), JobTask{
		JobID:        "j7",
		UserID:       "u1",
		Type:         model.VerificationTypeVideo,
		Code:         "GP-48213",
		EvidenceKeys: []string{"jobs/j7/evidence_00.mp4"},
	})

	require.NotNil(t, jobs.finished)
	require.Contains(t, jobs.finished.Issues, "analysis/exam moved by 3.0 between frames 0 and 1")
	require.Equal(t, -3.0, jobs.finished.ScoreBreakdown["fluctuation_penalty"])
}

func TestOrchestrator_VideoMissingScreenRejects(t *testing.T) {
	jobs := &memJobStore{}
	files := newMemFileStore()
	files.files["jobs/j5/evidence_00.mp4"] = []byte("video-bytes")

	sampler := &stubSampler{frames: []video.Frame{
		{Index: 0, Timestamp: 0, Data: []byte(examPageText)},
		{Index: 1, Timestamp: time.Second, Data: []byte(examPageText)},
	}}
	engines := []ocr.Engine{&echoEngine{name: "alpha"}}

	o := newTestOrchestrator(jobs, &memStudentStore{}, &memGradeStore{}, files, engines, sampler)
	o.Run(context.Background(), JobTask{
		JobID:        "j5",
		UserID:       "u1",
		Type:         model.VerificationTypeVideo,
		Code:         "GP-48213",
		EvidenceKeys: []string{"jobs/j5/evidence_00.mp4"},
	})

	require.NotNil(t, jobs.finished)
	require.Equal(t, model.JobStatusRejected, jobs.finished.Status)
	require.Contains(t, jobs.finished.Issues, consensus.ErrScreenMissing.Error())
}

func TestOrchestrator_PanicLandsInFailed(t *testing.T) {
	jobs := &memJobStore{}
	files := newMemFileStore()
	files.files["jobs/j6/evidence_00.png"] = flatPNG(t)
	engines := []ocr.Engine{&fixedEngine{name: "alpha", text: "Analyse 12"}}

	o := newTestOrchestrator(jobs, &memStudentStore{}, &memGradeStore{}, files, engines, nil)
	// force a nil dereference inside the pipeline
	o.reg = nil
	o.Run(context.Background(), JobTask{
		JobID:        "j6",
		UserID:       "u1",
		Type:         model.VerificationTypeScreenshot,
		Code:         "GP-48213",
		EvidenceKeys: []string{"jobs/j6/evidence_00.png"},
	})
	require.NotNil(t, jobs.finished)
	require.Equal(t, model.JobStatusFailed, jobs.finished.Status)
	require.Contains(t, jobs.finished.Message, "internal error")
	// the record keeps the step the pipeline actually died in
	require.Equal(t, string(StepOCRAnalysis), jobs.finished.CurrentStep)
}
