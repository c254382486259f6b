package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/edurank/gradeproof/internal/filestore"
	"github.com/edurank/gradeproof/internal/model"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
	"github.com/edurank/gradeproof/internal/pkg/timeutil"
	"github.com/edurank/gradeproof/internal/video"
	"github.com/edurank/gradeproof/internal/worker"
)

const maxScreenshotCount = 4

// Upload is one evidence file from a multipart submission.
type Upload struct {
	Name   string
	Reader io.ReadSeeker
	Size   int64
}

// TaskSubmitter decouples the service from the pool implementation.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

type VerificationConfig struct {
	VideoMinSeconds float64
	VideoMaxSeconds float64
	JobTimeout      time.Duration
}

// VerificationService validates submissions synchronously, persists the
// evidence and queues the pipeline. The handler answers 202 with whatever
// this returns; everything slow happens on the worker.
type VerificationService struct {
	codes        *CodeService
	jobs         JobStore
	files        filestore.Store
	pool         TaskSubmitter
	orchestrator *Orchestrator
	sampler      video.Sampler
	cfg          VerificationConfig
}

func NewVerificationService(
	codes *CodeService,
	jobs JobStore,
	files filestore.Store,
	pool TaskSubmitter,
	orchestrator *Orchestrator,
	sampler video.Sampler,
	cfg VerificationConfig,
) *VerificationService {
	if cfg.VideoMinSeconds <= 0 {
		cfg.VideoMinSeconds = 3
	}
	if cfg.VideoMaxSeconds <= 0 {
		cfg.VideoMaxSeconds = 90
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	return &VerificationService{
		codes:        codes,
		jobs:         jobs,
		files:        files,
		pool:         pool,
		orchestrator: orchestrator,
		sampler:      sampler,
		cfg:          cfg,
	}
}

func (s *VerificationService) SubmitScreenshot(ctx context.Context, userID, code string, uploads []Upload) (*model.VerificationJob, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("no screenshot attached: %w", appErr.ErrInvalid)
	}
	if len(uploads) > maxScreenshotCount {
		return nil, fmt.Errorf("too many screenshots: %w", appErr.ErrInvalid)
	}
	if err := s.ensureNoActiveJob(ctx, userID); err != nil {
		return nil, err
	}
	issued, err := s.codes.Consume(ctx, userID, code)
	if err != nil {
		return nil, err
	}

	jobID := newID()
	keys := make([]string, 0, len(uploads))
	for i, upload := range uploads {
		key := evidenceKey(jobID, i, upload.Name)
		if err := s.files.Save(ctx, key, upload.Reader, upload.Size); err != nil {
			return nil, fmt.Errorf("store evidence: %w", err)
		}
		keys = append(keys, key)
	}
	return s.launch(ctx, JobTask{
		JobID:        jobID,
		UserID:       userID,
		Type:         model.VerificationTypeScreenshot,
		Code:         issued.Code,
		EvidenceKeys: keys,
	})
}

func (s *VerificationService) SubmitVideo(ctx context.Context, userID, code string, upload Upload) (*model.VerificationJob, error) {
	if upload.Reader == nil || upload.Size == 0 {
		return nil, fmt.Errorf("no video attached: %w", appErr.ErrInvalid)
	}
	if err := s.ensureNoActiveJob(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.checkDuration(ctx, upload); err != nil {
		return nil, err
	}
	issued, err := s.codes.Consume(ctx, userID, code)
	if err != nil {
		return nil, err
	}

	jobID := newID()
	key := evidenceKey(jobID, 0, upload.Name)
	if err := s.files.Save(ctx, key, upload.Reader, upload.Size); err != nil {
		return nil, fmt.Errorf("store evidence: %w", err)
	}
	return s.launch(ctx, JobTask{
		JobID:        jobID,
		UserID:       userID,
		Type:         model.VerificationTypeVideo,
		Code:         issued.Code,
		EvidenceKeys: []string{key},
	})
}

func (s *VerificationService) Status(ctx context.Context, userID string) (*model.VerificationJob, error) {
	return s.jobs.GetByUser(ctx, userID)
}

// ensureNoActiveJob rejects a submission while a fresh job is still being
// processed. Stale PROCESSING rows (crashed worker) do not block resubmission.
func (s *VerificationService) ensureNoActiveJob(ctx context.Context, userID string) error {
	job, err := s.jobs.GetByUser(ctx, userID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if job.Status == model.JobStatusProcessing &&
		timeutil.NowUnix()-job.Mtime < int64(s.cfg.JobTimeout.Seconds()) {
		return fmt.Errorf("verification already in progress: %w", appErr.ErrConflict)
	}
	return nil
}

// checkDuration probes the upload before accepting it; rejecting a 2-second
// clip must not create a job.
func (s *VerificationService) checkDuration(ctx context.Context, upload Upload) error {
	tmp, err := os.CreateTemp("", "gradeproof-probe-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := upload.Reader.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(tmp, upload.Reader); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	duration, err := s.sampler.Duration(ctx, tmp.Name())
	if err != nil {
		return fmt.Errorf("unreadable video: %w", appErr.ErrInvalid)
	}
	return video.CheckDuration(duration, s.cfg.VideoMinSeconds, s.cfg.VideoMaxSeconds)
}

func (s *VerificationService) launch(ctx context.Context, task JobTask) (*model.VerificationJob, error) {
	now := timeutil.NowUnix()
	job := &model.VerificationJob{
		ID:               task.JobID,
		UserID:           task.UserID,
		VerificationType: task.Type,
		Status:           model.JobStatusProcessing,
		CurrentStep:      string(StepUploaded),
		Ctime:            now,
		Mtime:            now,
	}
	if err := s.jobs.Upsert(ctx, job); err != nil {
		return nil, err
	}
	err := s.pool.Submit(worker.Task{
		ID: task.JobID,
		Execute: func(workerCtx context.Context) {
			s.orchestrator.Run(workerCtx, task)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue verification: %w", appErr.ErrTooMany)
	}
	return job, nil
}

func evidenceKey(jobID string, index int, name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("jobs/%s/evidence_%02d%s", jobID, index, ext)
}
