package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/edurank/gradeproof/internal/model"
	"github.com/edurank/gradeproof/internal/pkg/dbutil"
)

type GradeRepo struct {
	db *sql.DB
}

func NewGradeRepo(db *sql.DB) *GradeRepo {
	return &GradeRepo{db: db}
}

func (r *GradeRepo) ListByUser(ctx context.Context, userID string) ([]model.ReportedGrade, error) {
	sqlStr, args, err := builder.BuildSelect("reported_grades",
		map[string]interface{}{"user_id": userID},
		[]string{"user_id", "module_id", "exam", "continuous", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	items := make([]model.ReportedGrade, 0)
	for rows.Next() {
		var item model.ReportedGrade
		var exam, continuous sql.NullFloat64
		if err := rows.Scan(&item.UserID, &item.ModuleID, &exam, &continuous, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		if exam.Valid {
			v := exam.Float64
			item.Exam = &v
		}
		if continuous.Valid {
			v := continuous.Float64
			item.Continuous = &v
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *GradeRepo) Upsert(ctx context.Context, grade *model.ReportedGrade) error {
	sqlStr := `
		INSERT INTO reported_grades (user_id, module_id, exam, continuous, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, module_id)
		DO UPDATE SET
			exam = EXCLUDED.exam,
			continuous = EXCLUDED.continuous,
			mtime = EXCLUDED.mtime
	`
	args := []interface{}{grade.UserID, grade.ModuleID, grade.Exam, grade.Continuous, grade.Ctime, grade.Mtime}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
