// Package memory holds map-backed repositories used by handler and
// integration tests; they match the postgres repos method for method.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nutriscan/nutriscan/internal/domain/user"
)

type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{items: make(map[string]user.User)}
}

func (r *UsersRepo) Create(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}

	r.items[u.ID] = u

	return nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	email = user.NormalizeEmail(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if u.Email == email {
			return u, nil
		}
	}

	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) GetByVerificationToken(_ context.Context, token string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()

	for _, u := range r.items {
		if u.VerificationToken != nil && *u.VerificationToken == token &&
			u.VerificationExpires != nil && u.VerificationExpires.After(now) {
			return u, nil
		}
	}

	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByResetToken(_ context.Context, token string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()

	for _, u := range r.items {
		if u.ResetToken != nil && *u.ResetToken == token &&
			u.ResetExpires != nil && u.ResetExpires.After(now) {
			return u, nil
		}
	}

	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) Update(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[u.ID]; !ok {
		return user.ErrNotFound
	}

	u.UpdatedAt = time.Now().UTC()
	r.items[u.ID] = u

	return nil
}

func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return user.ErrNotFound
	}

	delete(r.items, id)

	return nil
}
