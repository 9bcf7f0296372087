// Package tree stores users in the same domain.Store that holds events, for
// drivers without a relational users table.
package tree

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/store"
)

// userRecord is the stored shape of a user; domain.User hides credentials from JSON.
type userRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	Salt         string    `json:"salt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type emailIndex struct {
	UserID string `json:"userId"`
}

type userRepository struct {
	store domain.Store
	root  string
}

// NewUserRepository returns a UserRepository keeping users at {root}/users/{id}
// and an email index at {root}/user_emails/{key}.
func NewUserRepository(s domain.Store, root string) domain.UserRepository {
	return &userRepository{store: s, root: root}
}

// EmailKey turns an email into a single path segment.
func EmailKey(email string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(email)), ".", ",")
}

func (r *userRepository) userPath(id string) string {
	return store.Join(r.root, "users", id)
}

func (r *userRepository) emailPath(email string) string {
	return store.Join(r.root, "user_emails", EmailKey(email))
}

// Create checks the email index and then writes the user and the index entry.
// The check and the writes are not atomic.
func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	existing, err := r.store.Get(ctx, r.emailPath(u.Email))
	if err != nil {
		return err
	}
	if existing.Exists() {
		return domain.ErrDuplicateEmail
	}
	u.ID = uuid.NewString()
	rec := userRecord{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Salt:         u.Salt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if err := r.store.Set(ctx, r.userPath(u.ID), rec); err != nil {
		return err
	}
	return r.store.Set(ctx, r.emailPath(u.Email), emailIndex{UserID: u.ID})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	snap, err := r.store.Get(ctx, r.emailPath(email))
	if err != nil {
		return nil, err
	}
	var idx emailIndex
	if err := snap.Decode(&idx); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.GetByID(ctx, idx.UserID)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	snap, err := r.store.Get(ctx, r.userPath(id))
	if err != nil {
		return nil, err
	}
	var rec userRecord
	if err := snap.Decode(&rec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &domain.User{
		ID:           rec.ID,
		Email:        rec.Email,
		Name:         rec.Name,
		PasswordHash: rec.PasswordHash,
		Salt:         rec.Salt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}
