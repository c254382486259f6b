package repo

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/edurank/gradeproof/internal/model"
)

// CachedStudentRepo layers a short-lived read cache over StudentRepo. The
// orchestrator reads the student record on every job; the row changes
// rarely, only on SetVerified, which also evicts.
type CachedStudentRepo struct {
	inner *StudentRepo
	cache *expirable.LRU[string, *model.Student]
}

func NewCachedStudentRepo(inner *StudentRepo, size int, ttl time.Duration) *CachedStudentRepo {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStudentRepo{
		inner: inner,
		cache: expirable.NewLRU[string, *model.Student](size, nil, ttl),
	}
}

func (r *CachedStudentRepo) Get(ctx context.Context, userID string) (*model.Student, error) {
	if item, ok := r.cache.Get(userID); ok {
		return item, nil
	}
	item, err := r.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(userID, item)
	return item, nil
}

func (r *CachedStudentRepo) Upsert(ctx context.Context, student *model.Student) error {
	if err := r.inner.Upsert(ctx, student); err != nil {
		return err
	}
	r.cache.Remove(student.UserID)
	return nil
}

func (r *CachedStudentRepo) SetVerified(ctx context.Context, userID string, verified bool, mtime int64) error {
	if err := r.inner.SetVerified(ctx, userID, verified, mtime); err != nil {
		return err
	}
	r.cache.Remove(userID)
	return nil
}
