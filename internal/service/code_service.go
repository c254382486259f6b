package service

import (
	"context"
	"strings"
	"time"

	"github.com/edurank/gradeproof/internal/model"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
	"github.com/edurank/gradeproof/internal/pkg/timeutil"
)

// CodeStore is the persistence surface CodeService needs.
type CodeStore interface {
	Create(ctx context.Context, code *model.VerificationCode) error
	Latest(ctx context.Context, userID string) (*model.VerificationCode, error)
	MarkUsed(ctx context.Context, id string) error
	InvalidateActive(ctx context.Context, userID string) error
}

type CodeService struct {
	codes CodeStore
	ttl   time.Duration
	now   func() int64
}

func NewCodeService(codes CodeStore, ttl time.Duration) *CodeService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CodeService{codes: codes, ttl: ttl, now: timeutil.NowUnix}
}

// Issue mints a fresh code and retires any earlier unused one, keeping at
// most one live code per user.
func (s *CodeService) Issue(ctx context.Context, userID string) (*model.VerificationCode, error) {
	if userID == "" {
		return nil, appErr.ErrInvalid
	}
	if err := s.codes.InvalidateActive(ctx, userID); err != nil {
		return nil, err
	}
	now := s.now()
	item := &model.VerificationCode{
		ID:        newID(),
		UserID:    userID,
		Code:      newCode(),
		Ctime:     now,
		ExpiresAt: now + int64(s.ttl.Seconds()),
	}
	if err := s.codes.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Consume burns the user's active code on the first submission attempt,
// whatever the outcome, then validates it. An expired or mismatched code
// cannot be retried.
func (s *CodeService) Consume(ctx context.Context, userID, submitted string) (*model.VerificationCode, error) {
	item, err := s.codes.Latest(ctx, userID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.ErrNoActiveCode
		}
		return nil, err
	}
	if item.Used == 1 || item.Invalidated == 1 {
		return nil, appErr.ErrCodeUsed
	}
	if err := s.codes.MarkUsed(ctx, item.ID); err != nil {
		return nil, err
	}
	if item.ExpiresAt <= s.now() {
		return nil, appErr.ErrCodeExpired
	}
	if !strings.EqualFold(strings.TrimSpace(submitted), item.Code) {
		return nil, appErr.ErrInvalid
	}
	return item, nil
}
