package memory

import (
	"context"
	"sync"

	"github.com/nutriscan/nutriscan/internal/domain/consent"
)

type ConsentsRepo struct {
	mu    sync.RWMutex
	items map[string]consent.Consent // keyed by user id
}

func NewConsentsRepo() *ConsentsRepo {
	return &ConsentsRepo{items: make(map[string]consent.Consent)}
}

func (r *ConsentsRepo) GetByUser(_ context.Context, userID string) (consent.Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[userID]

	if !ok {
		return consent.Consent{}, consent.ErrNotFound
	}

	return c, nil
}

func (r *ConsentsRepo) Upsert(_ context.Context, c consent.Consent) error {
	r.mu.Lock()
	r.items[c.UserID] = c
	r.mu.Unlock()

	return nil
}
