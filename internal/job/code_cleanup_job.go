package job

import (
	"context"
	"time"

	"github.com/edurank/gradeproof/internal/repo"
)

type CodeCleanupJob struct {
	repo *repo.CodeRepo
}

func NewCodeCleanupJob(repo *repo.CodeRepo) *CodeCleanupJob {
	return &CodeCleanupJob{repo: repo}
}

func (j *CodeCleanupJob) Name() string {
	return "verification_code_cleanup"
}

func (j *CodeCleanupJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	_, err := j.repo.PurgeStale(ctx, time.Now().Unix())
	return err
}
