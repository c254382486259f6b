package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/edurank/gradeproof/internal/model"
	"github.com/edurank/gradeproof/internal/pkg/dbutil"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
)

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

// Upsert replaces the user's active job record. One row per user: a new
// submission overwrites the previous verdict.
func (r *JobRepo) Upsert(ctx context.Context, job *model.VerificationJob) error {
	grades, issues, breakdown, err := encodeJobFields(job)
	if err != nil {
		return err
	}
	sqlStr := `
		INSERT INTO verification_jobs
			(id, user_id, verification_type, status, current_step, trust_score,
			 tampering_probability, extracted_grades, issues, score_breakdown,
			 message, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET
			id = EXCLUDED.id,
			verification_type = EXCLUDED.verification_type,
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			trust_score = EXCLUDED.trust_score,
			tampering_probability = EXCLUDED.tampering_probability,
			extracted_grades = EXCLUDED.extracted_grades,
			issues = EXCLUDED.issues,
			score_breakdown = EXCLUDED.score_breakdown,
			message = EXCLUDED.message,
			mtime = EXCLUDED.mtime
	`
	args := []interface{}{
		job.ID, job.UserID, job.VerificationType, job.Status, job.CurrentStep,
		job.TrustScore, job.TamperingProbability, grades, issues, breakdown,
		job.Message, job.Ctime, job.Mtime,
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// UpdateStep advances current_step for a job still identified by id, so a
// stale worker cannot scribble over a newer submission.
func (r *JobRepo) UpdateStep(ctx context.Context, jobID, step string, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("verification_jobs",
		map[string]interface{}{"id": jobID},
		map[string]interface{}{"current_step": step, "mtime": mtime})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Finish writes the terminal verdict in one statement.
func (r *JobRepo) Finish(ctx context.Context, job *model.VerificationJob) error {
	grades, issues, breakdown, err := encodeJobFields(job)
	if err != nil {
		return err
	}
	sqlStr, args, err := builder.BuildUpdate("verification_jobs",
		map[string]interface{}{"id": job.ID},
		map[string]interface{}{
			"status":                job.Status,
			"current_step":          job.CurrentStep,
			"trust_score":           job.TrustScore,
			"tampering_probability": job.TamperingProbability,
			"extracted_grades":      grades,
			"issues":                issues,
			"score_breakdown":       breakdown,
			"message":               job.Message,
			"mtime":                 job.Mtime,
		})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *JobRepo) GetByUser(ctx context.Context, userID string) (*model.VerificationJob, error) {
	sqlStr, args, err := builder.BuildSelect("verification_jobs",
		map[string]interface{}{"user_id": userID}, jobColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryOne(ctx, sqlStr, args)
}

func (r *JobRepo) GetByID(ctx context.Context, jobID string) (*model.VerificationJob, error) {
	sqlStr, args, err := builder.BuildSelect("verification_jobs",
		map[string]interface{}{"id": jobID}, jobColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryOne(ctx, sqlStr, args)
}

// SweepStalled flips PROCESSING jobs untouched since cutoff to FAILED.
// Covers workers lost to a crash or restart.
func (r *JobRepo) SweepStalled(ctx context.Context, cutoff int64, now int64) (int64, error) {
	sqlStr := `
		UPDATE verification_jobs
		SET status = ?, message = ?, mtime = ?
		WHERE status = ? AND mtime < ?
	`
	args := []interface{}{
		model.JobStatusFailed, "verification timed out", now,
		model.JobStatusProcessing, cutoff,
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *JobRepo) queryOne(ctx context.Context, sqlStr string, args []interface{}) (*model.VerificationJob, error) {
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var item model.VerificationJob
	var grades, issues, breakdown string
	err := row.Scan(&item.ID, &item.UserID, &item.VerificationType, &item.Status,
		&item.CurrentStep, &item.TrustScore, &item.TamperingProbability,
		&grades, &issues, &breakdown, &item.Message, &item.Ctime, &item.Mtime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(grades), &item.ExtractedGrades); err != nil {
		return nil, fmt.Errorf("decode extracted_grades: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &item.Issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &item.ScoreBreakdown); err != nil {
		return nil, fmt.Errorf("decode score_breakdown: %w", err)
	}
	return &item, nil
}

func jobColumns() []string {
	return []string{
		"id", "user_id", "verification_type", "status", "current_step",
		"trust_score", "tampering_probability", "extracted_grades", "issues",
		"score_breakdown", "message", "ctime", "mtime",
	}
}

func encodeJobFields(job *model.VerificationJob) (string, string, string, error) {
	grades := job.ExtractedGrades
	if grades == nil {
		grades = map[string]model.FinalGradeValue{}
	}
	issues := job.Issues
	if issues == nil {
		issues = []string{}
	}
	breakdown := job.ScoreBreakdown
	if breakdown == nil {
		breakdown = map[string]float64{}
	}
	gradesJSON, err := json.Marshal(grades)
	if err != nil {
		return "", "", "", err
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return "", "", "", err
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return "", "", "", err
	}
	return string(gradesJSON), string(issuesJSON), string(breakdownJSON), nil
}
