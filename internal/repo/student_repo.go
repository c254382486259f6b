package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/edurank/gradeproof/internal/model"
	"github.com/edurank/gradeproof/internal/pkg/dbutil"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
)

type StudentRepo struct {
	db *sql.DB
}

func NewStudentRepo(db *sql.DB) *StudentRepo {
	return &StudentRepo{db: db}
}

func (r *StudentRepo) Get(ctx context.Context, userID string) (*model.Student, error) {
	sqlStr, args, err := builder.BuildSelect("students",
		map[string]interface{}{"user_id": userID},
		[]string{"user_id", "student_id", "is_verified", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var item model.Student
	if err := row.Scan(&item.UserID, &item.StudentID, &item.IsVerified, &item.Ctime, &item.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *StudentRepo) Upsert(ctx context.Context, student *model.Student) error {
	sqlStr := `
		INSERT INTO students (user_id, student_id, is_verified, ctime, mtime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET
			student_id = EXCLUDED.student_id,
			is_verified = EXCLUDED.is_verified,
			mtime = EXCLUDED.mtime
	`
	args := []interface{}{student.UserID, student.StudentID, student.IsVerified, student.Ctime, student.Mtime}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *StudentRepo) SetVerified(ctx context.Context, userID string, verified bool, mtime int64) error {
	value := 0
	if verified {
		value = 1
	}
	sqlStr, args, err := builder.BuildUpdate("students",
		map[string]interface{}{"user_id": userID},
		map[string]interface{}{"is_verified": value, "mtime": mtime})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
