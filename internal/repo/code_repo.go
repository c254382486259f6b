package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/edurank/gradeproof/internal/model"
	"github.com/edurank/gradeproof/internal/pkg/dbutil"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
)

type CodeRepo struct {
	db *sql.DB
}

func NewCodeRepo(db *sql.DB) *CodeRepo {
	return &CodeRepo{db: db}
}

func (r *CodeRepo) Create(ctx context.Context, code *model.VerificationCode) error {
	sqlStr, args, err := builder.BuildInsert("verification_codes", []map[string]interface{}{{
		"id":          code.ID,
		"user_id":     code.UserID,
		"code":        code.Code,
		"used":        code.Used,
		"invalidated": code.Invalidated,
		"ctime":       code.Ctime,
		"expires_at":  code.ExpiresAt,
	}})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Latest returns the user's newest code whatever its state. The service
// decides whether it is still consumable; a user with no row at all never
// requested one.
func (r *CodeRepo) Latest(ctx context.Context, userID string) (*model.VerificationCode, error) {
	sqlStr := `
		SELECT id, user_id, code, used, invalidated, ctime, expires_at
		FROM verification_codes
		WHERE user_id = ?
		ORDER BY ctime DESC
		LIMIT 1
	`
	args := []interface{}{userID}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var item model.VerificationCode
	if err := row.Scan(&item.ID, &item.UserID, &item.Code, &item.Used, &item.Invalidated, &item.Ctime, &item.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *CodeRepo) MarkUsed(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildUpdate("verification_codes",
		map[string]interface{}{"id": id},
		map[string]interface{}{"used": 1})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// InvalidateActive retires every unused code the user still holds, so a
// fresh Issue leaves exactly one live code.
func (r *CodeRepo) InvalidateActive(ctx context.Context, userID string) error {
	sqlStr, args, err := builder.BuildUpdate("verification_codes",
		map[string]interface{}{"user_id": userID, "used": 0, "invalidated": 0},
		map[string]interface{}{"invalidated": 1})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// PurgeStale deletes codes that expired before cutoff or were already
// consumed or invalidated.
func (r *CodeRepo) PurgeStale(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr := `
		DELETE FROM verification_codes
		WHERE expires_at < ? OR used = 1 OR invalidated = 1
	`
	args := []interface{}{cutoff}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
