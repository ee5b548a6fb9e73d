package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/domain"
)

type memoryCredentialStore struct {
	mu     sync.Mutex
	byID   map[string]*domain.Token
	byHash map[string]string
}

// NewMemoryCredentialStore returns a process-local store. It is used when no
// Postgres DSN is configured and in tests.
func NewMemoryCredentialStore() CredentialStore {
	return &memoryCredentialStore{
		byID:   make(map[string]*domain.Token),
		byHash: make(map[string]string),
	}
}

func (s *memoryCredentialStore) Save(_ context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(token)
}

func (s *memoryCredentialStore) FindByValue(_ context.Context, value string, typ domain.TokenType) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[auth.Digest(value)]
	if !ok {
		return nil, ErrNotFound
	}
	row := s.byID[id]
	if row.Type != typ {
		return nil, ErrNotFound
	}
	token := copyToken(row)
	token.Value = value
	return token, nil
}

func (s *memoryCredentialStore) FindLiveForSubject(_ context.Context, subject domain.Identity, typ domain.TokenType, now time.Time) ([]*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []*domain.Token
	for _, row := range s.byID {
		if row.Subject == subject && row.Type == typ && row.Live(now) {
			tokens = append(tokens, copyToken(row))
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].IssuedAt.After(tokens[j].IssuedAt) })
	return tokens, nil
}

func (s *memoryCredentialStore) MarkRevoked(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	revoke(row, now)
	return nil
}

func (s *memoryCredentialStore) MarkConsumed(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	consume(row, now)
	return nil
}

func (s *memoryCredentialStore) Rotate(_ context.Context, oldID string, next *domain.Token, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[oldID]
	if !ok || !row.Live(now) {
		return ErrNotLive
	}
	if _, dup := s.byHash[auth.Digest(next.Value)]; dup {
		return ErrDuplicateToken
	}
	revoke(row, now)
	return s.insertLocked(next)
}

func (s *memoryCredentialStore) ConsumeIfLive(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok || !row.Live(now) {
		return ErrNotLive
	}
	consume(row, now)
	return nil
}

func (s *memoryCredentialStore) RevokeLiveForSubject(_ context.Context, subject domain.Identity, typ domain.TokenType, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeLiveLocked(subject, typ, now), nil
}

func (s *memoryCredentialStore) Supersede(_ context.Context, next *domain.Token, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byHash[auth.Digest(next.Value)]; dup {
		return ErrDuplicateToken
	}
	s.revokeLiveLocked(next.Subject, next.Type, now)
	return s.insertLocked(next)
}

func (s *memoryCredentialStore) revokeLiveLocked(subject domain.Identity, typ domain.TokenType, now time.Time) int64 {
	var n int64
	for _, row := range s.byID {
		if row.Subject == subject && row.Type == typ && row.Live(now) {
			revoke(row, now)
			n++
		}
	}
	return n
}

func (s *memoryCredentialStore) insertLocked(token *domain.Token) error {
	hash := auth.Digest(token.Value)
	if _, dup := s.byHash[hash]; dup {
		return ErrDuplicateToken
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	row := copyToken(token)
	row.Value = ""
	s.byID[row.ID] = row
	s.byHash[hash] = row.ID
	return nil
}

func revoke(row *domain.Token, at time.Time) {
	if row.Revoked {
		return
	}
	row.Revoked = true
	row.RevokedAt = &at
}

func consume(row *domain.Token, at time.Time) {
	if row.Consumed {
		return
	}
	row.Consumed = true
	row.ConsumedAt = &at
}

func copyToken(t *domain.Token) *domain.Token {
	cp := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}
	if t.ConsumedAt != nil {
		at := *t.ConsumedAt
		cp.ConsumedAt = &at
	}
	return &cp
}
