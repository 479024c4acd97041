package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
)

// Users checks and registers user credentials.
type Users struct {
	store repository.Store
}

// NewUsers creates a credential checker over the store.
func NewUsers(store repository.Store) *Users {
	return &Users{store: store}
}

// Authenticate returns the user when the password matches. Unknown users and wrong passwords
// both wrap domain.ErrNotFound.
func (u *Users) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := u.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	return user, nil
}

// Register creates a user with a hashed password.
func (u *Users) Register(ctx context.Context, username, email, password string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := u.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
