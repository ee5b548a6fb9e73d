package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/domain"
	"github.com/spec-kit/training-auth/internal/repository"
)

// UserDirectory implements IdentityDirectory and CredentialUpdater over the
// user repository and bcrypt.
type UserDirectory struct {
	users      repository.UserRepository
	bcryptCost int

	dummyOnce sync.Once
	dummyHash string
}

// NewUserDirectory builds the directory.
func NewUserDirectory(users repository.UserRepository, bcryptCost int) *UserDirectory {
	return &UserDirectory{users: users, bcryptCost: bcryptCost}
}

// VerifyCredentials checks an email/password pair.
func (d *UserDirectory) VerifyCredentials(ctx context.Context, principal, secret string) (domain.Identity, error) {
	user, err := d.users.GetByEmail(ctx, principal)
	if errors.Is(err, repository.ErrNotFound) {
		d.compareDummy(secret)
		return domain.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Identity{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, secret); err != nil {
		return domain.Identity{}, ErrInvalidCredentials
	}
	if user.Status != domain.UserStatusActive {
		return domain.Identity{}, ErrInvalidCredentials
	}
	return user.Identity(), nil
}

// compareDummy burns one bcrypt comparison at the stored-hash cost so unknown
// principals take as long to reject as wrong passwords.
func (d *UserDirectory) compareDummy(secret string) {
	d.dummyOnce.Do(func() {
		d.dummyHash, _ = auth.HashPassword("dummy-password", d.bcryptCost)
	})
	_ = auth.ComparePassword(d.dummyHash, secret)
}

// ResolveByEmail maps an email address to its identity.
func (d *UserDirectory) ResolveByEmail(ctx context.Context, email string) (domain.Identity, error) {
	user, err := d.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Identity{}, ErrSubjectNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}

// SetPassword stores a new bcrypt hash for identity.
func (d *UserDirectory) SetPassword(ctx context.Context, identity domain.Identity, newSecret string) error {
	hash, err := auth.HashPassword(newSecret, d.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := d.users.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectNotFound.Wrap(err)
		}
		return err
	}
	return nil
}

// Register creates an active user with a hashed password. It backs the seed
// path of cmd/api; account management proper lives outside this service.
func (d *UserDirectory) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	hash, err := auth.HashPassword(password, d.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := d.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
