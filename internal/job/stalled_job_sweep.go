package job

import (
	"context"
	"time"

	"github.com/edurank/gradeproof/internal/repo"
)

// StalledJobSweep recovers verification jobs orphaned by a crash or
// restart: anything still PROCESSING past the pipeline ceiling is failed so
// the student can resubmit.
type StalledJobSweep struct {
	repo    *repo.JobRepo
	timeout time.Duration
}

func NewStalledJobSweep(repo *repo.JobRepo, timeout time.Duration) *StalledJobSweep {
	return &StalledJobSweep{repo: repo, timeout: timeout}
}

func (j *StalledJobSweep) Name() string {
	return "stalled_job_sweep"
}

func (j *StalledJobSweep) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	timeout := j.timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	now := time.Now().Unix()
	_, err := j.repo.SweepStalled(ctx, now-int64(timeout.Seconds()), now)
	return err
}
