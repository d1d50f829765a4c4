package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nutriscan/nutriscan/internal/domain/assessment"
)

type AssessmentsRepo struct {
	mu    sync.RWMutex
	items map[string]assessment.Assessment
}

func NewAssessmentsRepo() *AssessmentsRepo {
	return &AssessmentsRepo{items: make(map[string]assessment.Assessment)}
}

func (r *AssessmentsRepo) Create(_ context.Context, a assessment.Assessment) error {
	r.mu.Lock()
	r.items[a.ID] = a
	r.mu.Unlock()

	return nil
}

func (r *AssessmentsRepo) GetByID(_ context.Context, id string) (assessment.Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]

	if !ok {
		return assessment.Assessment{}, assessment.ErrNotFound
	}

	return a, nil
}

func (r *AssessmentsRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]assessment.Assessment, int, error) {
	r.mu.RLock()

	var all []assessment.Assessment

	for _, a := range r.items {
		if a.UserID == userID {
			all = append(all, a)
		}
	}

	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}

		return all[i].ID > all[j].ID
	})

	total := len(all)

	if offset >= len(all) {
		return []assessment.Assessment{}, total, nil
	}

	all = all[offset:]

	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	return all, total, nil
}

func (r *AssessmentsRepo) Update(_ context.Context, a assessment.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[a.ID]; !ok {
		return assessment.ErrNotFound
	}

	r.items[a.ID] = a

	return nil
}

func (r *AssessmentsRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return assessment.ErrNotFound
	}

	delete(r.items, id)

	return nil
}

// DeleteByUser mirrors the ON DELETE CASCADE behavior of the real schema.
func (r *AssessmentsRepo) DeleteByUser(_ context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.items {
		if a.UserID == userID {
			delete(r.items, id)
		}
	}
}
