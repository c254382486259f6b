package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edurank/gradeproof/internal/model"
	appErr "github.com/edurank/gradeproof/internal/pkg/errors"
)

type memCodeStore struct {
	items []*model.VerificationCode
}

func (s *memCodeStore) Create(ctx context.Context, code *model.VerificationCode) error {
	s.items = append(s.items, code)
	return nil
}

func (s *memCodeStore) Latest(ctx context.Context, userID string) (*model.VerificationCode, error) {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].UserID == userID {
			return s.items[i], nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *memCodeStore) MarkUsed(ctx context.Context, id string) error {
	for _, item := range s.items {
		if item.ID == id {
			item.Used = 1
		}
	}
	return nil
}

func (s *memCodeStore) InvalidateActive(ctx context.Context, userID string) error {
	for _, item := range s.items {
		if item.UserID == userID && item.Used == 0 {
			item.Invalidated = 1
		}
	}
	return nil
}

func TestCodeService_IssueFormatAndSingleActive(t *testing.T) {
	store := &memCodeStore{}
	svc := NewCodeService(store, 10*time.Minute)

	first, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.Code, "GP-"))
	require.Len(t, first.Code, 8)

	second, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	active, err := store.Latest(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)
	require.Equal(t, 1, store.items[0].Invalidated)
}

func TestCodeService_ConsumeWithoutIssuedCode(t *testing.T) {
	svc := NewCodeService(&memCodeStore{}, 10*time.Minute)

	_, err := svc.Consume(context.Background(), "u1", "GP-12345")
	require.ErrorIs(t, err, appErr.ErrNoActiveCode)
}

func TestCodeService_ConsumeBurnsOnFirstTouch(t *testing.T) {
	store := &memCodeStore{}
	svc := NewCodeService(store, 10*time.Minute)
	issued, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	// wrong value still consumes the code
	_, err = svc.Consume(context.Background(), "u1", "GP-00000X")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Equal(t, 1, store.items[0].Used)

	_, err = svc.Consume(context.Background(), "u1", issued.Code)
	require.ErrorIs(t, err, appErr.ErrCodeUsed)
}

func TestCodeService_ConsumeValid(t *testing.T) {
	store := &memCodeStore{}
	svc := NewCodeService(store, 10*time.Minute)
	issued, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	got, err := svc.Consume(context.Background(), "u1", strings.ToLower(issued.Code))
	require.NoError(t, err)
	require.Equal(t, issued.Code, got.Code)
}

func TestCodeService_ConsumeExpired(t *testing.T) {
	store := &memCodeStore{}
	svc := NewCodeService(store, 10*time.Minute)
	issued, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	svc.now = func() int64 { return issued.ExpiresAt + 1 }
	_, err = svc.Consume(context.Background(), "u1", issued.Code)
	require.ErrorIs(t, err, appErr.ErrCodeExpired)
	require.Equal(t, 1, store.items[0].Used)
}
