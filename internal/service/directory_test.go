package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/training-auth/internal/repository"
)

func TestVerifyCredentials_UnknownPrincipalUsesStoredCost(t *testing.T) {
	const cost = bcrypt.MinCost + 1
	users := repository.NewMemoryUserRepository()
	d := NewUserDirectory(users, cost)
	ctx := context.Background()

	user, err := d.Register(ctx, "Ada", testEmail, testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := d.VerifyCredentials(ctx, "nobody@x.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}

	storedCost, err := bcrypt.Cost([]byte(user.PasswordHash))
	if err != nil {
		t.Fatalf("stored hash cost: %v", err)
	}
	dummyCost, err := bcrypt.Cost([]byte(d.dummyHash))
	if err != nil {
		t.Fatalf("dummy hash cost: %v", err)
	}
	if dummyCost != storedCost || dummyCost != cost {
		t.Fatalf("dummy cost %d, stored cost %d, configured %d", dummyCost, storedCost, cost)
	}
}

func TestVerifyCredentials(t *testing.T) {
	d := NewUserDirectory(repository.NewMemoryUserRepository(), bcrypt.MinCost)
	ctx := context.Background()
	user, err := d.Register(ctx, "Ada", testEmail, testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	identity, err := d.VerifyCredentials(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if identity != user.Identity() {
		t.Fatalf("want %v, got %v", user.Identity(), identity)
	}
	if _, err := d.VerifyCredentials(ctx, testEmail, "not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
}
