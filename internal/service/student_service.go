package service

import (
	"context"
	"fmt"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/model"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
	"github.com/edurank/gradeproof/internal/pkg/timeutil"
)

// StudentWriter extends StudentStore with record creation.
type StudentWriter interface {
	StudentStore
	Upsert(ctx context.Context, student *model.Student) error
}

// GradeWriter extends GradeStore with self-reporting.
type GradeWriter interface {
	GradeStore
	Upsert(ctx context.Context, grade *model.ReportedGrade) error
}

// ReportedEntry is one module's self-reported marks from the client.
type ReportedEntry struct {
	Module     string   `json:"module"`
	Exam       *float64 `json:"exam"`
	Continuous *float64 `json:"continuous"`
}

// StudentService owns the student profile and the self-reported grades the
// verification pipeline cross-checks against.
type StudentService struct {
	students StudentWriter
	grades   GradeWriter
	reg      *curriculum.Registry
}

func NewStudentService(students StudentWriter, grades GradeWriter, reg *curriculum.Registry) *StudentService {
	return &StudentService{students: students, grades: grades, reg: reg}
}

// Profile returns the student record plus their reported grades, creating
// the record on first sight from the token's student id.
func (s *StudentService) Profile(ctx context.Context, userID, studentID string) (*model.Student, []model.ReportedGrade, error) {
	student, err := s.ensureStudent(ctx, userID, studentID)
	if err != nil {
		return nil, nil, err
	}
	grades, err := s.grades.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return student, grades, nil
}

// ReportGrades stores the student's own claimed marks. Values are bounded
// and modules must exist in the curriculum; unknown names are rejected
// rather than silently dropped.
func (s *StudentService) ReportGrades(ctx context.Context, userID, studentID string, entries []ReportedEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("no grades reported: %w", appErr.ErrInvalid)
	}
	if _, err := s.ensureStudent(ctx, userID, studentID); err != nil {
		return err
	}
	now := timeutil.NowUnix()
	for _, entry := range entries {
		module, ok := s.reg.Get(curriculum.ModuleID(entry.Module))
		if !ok {
			return fmt.Errorf("unknown module %s: %w", entry.Module, appErr.ErrInvalid)
		}
		if !inRange(entry.Exam) || !inRange(entry.Continuous) {
			return fmt.Errorf("module %s grade out of range: %w", entry.Module, appErr.ErrInvalid)
		}
		if entry.Continuous != nil && !module.HasContinuous {
			return fmt.Errorf("module %s has no continuous mark: %w", entry.Module, appErr.ErrInvalid)
		}
		err := s.grades.Upsert(ctx, &model.ReportedGrade{
			UserID:     userID,
			ModuleID:   string(module.ID),
			Exam:       entry.Exam,
			Continuous: entry.Continuous,
			Ctime:      now,
			Mtime:      now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *StudentService) ensureStudent(ctx context.Context, userID, studentID string) (*model.Student, error) {
	if userID == "" {
		return nil, appErr.ErrUnauthorized
	}
	student, err := s.students.Get(ctx, userID)
	if err == nil {
		return student, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, err
	}
	now := timeutil.NowUnix()
	student = &model.Student{
		UserID:    userID,
		StudentID: studentID,
		Ctime:     now,
		Mtime:     now,
	}
	if err := s.students.Upsert(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

func inRange(v *float64) bool {
	return v == nil || (*v >= 0 && *v <= 20)
}
