package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/domain"
)

const pgUniqueViolation = "23505"

// CredentialStore persists REFRESH and PASSWORD_RESET tokens.
//
// Rows are keyed by the digest of their value, so tokens returned from
// FindLiveForSubject carry an empty Value. Mutations never delete rows.
type CredentialStore interface {
	Save(ctx context.Context, token *domain.Token) error
	FindByValue(ctx context.Context, value string, typ domain.TokenType) (*domain.Token, error)
	FindLiveForSubject(ctx context.Context, subject domain.Identity, typ domain.TokenType, now time.Time) ([]*domain.Token, error)
	// MarkRevoked and MarkConsumed are idempotent. A repeat keeps the first
	// timestamp.
	MarkRevoked(ctx context.Context, id string, now time.Time) error
	MarkConsumed(ctx context.Context, id string, now time.Time) error

	// Rotate revokes oldID if it is still live and inserts next in the same
	// transaction. It returns ErrNotLive when the old token was not live.
	Rotate(ctx context.Context, oldID string, next *domain.Token, now time.Time) error
	// ConsumeIfLive flags a live token consumed, or returns ErrNotLive.
	ConsumeIfLive(ctx context.Context, id string, now time.Time) error
	// RevokeLiveForSubject revokes every live token of typ owned by subject.
	RevokeLiveForSubject(ctx context.Context, subject domain.Identity, typ domain.TokenType, now time.Time) (int64, error)
	// Supersede revokes every live token of next's subject and type, then inserts next.
	Supersede(ctx context.Context, next *domain.Token, now time.Time) error
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type postgresCredentialStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialStore returns a Postgres-backed implementation.
func NewPostgresCredentialStore(pool *pgxpool.Pool) CredentialStore {
	return &postgresCredentialStore{pool: pool}
}

func (r *postgresCredentialStore) Save(ctx context.Context, token *domain.Token) error {
	return insertToken(ctx, r.pool, token)
}

func (r *postgresCredentialStore) FindByValue(ctx context.Context, value string, typ domain.TokenType) (*domain.Token, error) {
	const query = `
        SELECT id, type, subject_id, issued_at, expires_at, revoked, consumed, revoked_at, consumed_at
        FROM auth_tokens WHERE value_hash=$1 AND type=$2`

	token, err := scanToken(r.pool.QueryRow(ctx, query, auth.Digest(value), typ.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	token.Value = value
	return token, nil
}

func (r *postgresCredentialStore) FindLiveForSubject(ctx context.Context, subject domain.Identity, typ domain.TokenType, now time.Time) ([]*domain.Token, error) {
	const query = `
        SELECT id, type, subject_id, issued_at, expires_at, revoked, consumed, revoked_at, consumed_at
        FROM auth_tokens
        WHERE subject_id=$1 AND type=$2 AND NOT revoked AND NOT consumed AND expires_at > $3
        ORDER BY issued_at DESC`

	rows, err := r.pool.Query(ctx, query, subject.ID, typ.String(), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*domain.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (r *postgresCredentialStore) MarkRevoked(ctx context.Context, id string, now time.Time) error {
	const query = `
        UPDATE auth_tokens SET revoked=TRUE, revoked_at=COALESCE(revoked_at, $2)
        WHERE id=$1`
	return execOne(ctx, r.pool, query, id, now)
}

func (r *postgresCredentialStore) MarkConsumed(ctx context.Context, id string, now time.Time) error {
	const query = `
        UPDATE auth_tokens SET consumed=TRUE, consumed_at=COALESCE(consumed_at, $2)
        WHERE id=$1`
	return execOne(ctx, r.pool, query, id, now)
}

func (r *postgresCredentialStore) Rotate(ctx context.Context, oldID string, next *domain.Token, now time.Time) error {
	const revoke = `
        UPDATE auth_tokens SET revoked=TRUE, revoked_at=$2
        WHERE id=$1 AND NOT revoked AND NOT consumed AND expires_at > $2`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockSubject(ctx, tx, next.Subject); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx, revoke, oldID, now)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotLive
		}
		return insertToken(ctx, tx, next)
	})
}

func (r *postgresCredentialStore) ConsumeIfLive(ctx context.Context, id string, now time.Time) error {
	const query = `
        UPDATE auth_tokens SET consumed=TRUE, consumed_at=$2
        WHERE id=$1 AND NOT revoked AND NOT consumed AND expires_at > $2`

	cmd, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotLive
	}
	return nil
}

func (r *postgresCredentialStore) RevokeLiveForSubject(ctx context.Context, subject domain.Identity, typ domain.TokenType, now time.Time) (int64, error) {
	var revoked int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockSubject(ctx, tx, subject); err != nil {
			return err
		}
		n, err := revokeLive(ctx, tx, subject, typ, now)
		revoked = n
		return err
	})
	return revoked, err
}

func (r *postgresCredentialStore) Supersede(ctx context.Context, next *domain.Token, now time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockSubject(ctx, tx, next.Subject); err != nil {
			return err
		}
		if _, err := revokeLive(ctx, tx, next.Subject, next.Type, now); err != nil {
			return err
		}
		return insertToken(ctx, tx, next)
	})
}

// lockSubject serializes subject-scoped mutations until the transaction ends,
// so a rotation cannot slip a new row past a concurrent bulk revoke.
func lockSubject(ctx context.Context, tx pgx.Tx, subject domain.Identity) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, subject.ID)
	return err
}

func revokeLive(ctx context.Context, db execer, subject domain.Identity, typ domain.TokenType, now time.Time) (int64, error) {
	const query = `
        UPDATE auth_tokens SET revoked=TRUE, revoked_at=$3
        WHERE subject_id=$1 AND type=$2 AND NOT revoked AND NOT consumed AND expires_at > $3`

	cmd, err := db.Exec(ctx, query, subject.ID, typ.String(), now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func insertToken(ctx context.Context, db execer, token *domain.Token) error {
	const query = `
        INSERT INTO auth_tokens (id, value_hash, type, subject_id, issued_at, expires_at, revoked, consumed)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	_, err := db.Exec(ctx, query,
		token.ID,
		auth.Digest(token.Value),
		token.Type.String(),
		token.Subject.ID,
		token.IssuedAt,
		token.ExpiresAt,
		token.Revoked,
		token.Consumed,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateToken
	}
	return err
}

func execOne(ctx context.Context, db execer, query string, args ...any) error {
	cmd, err := db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var (
		token   domain.Token
		typName string
	)
	if err := row.Scan(
		&token.ID,
		&typName,
		&token.Subject.ID,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Revoked,
		&token.Consumed,
		&token.RevokedAt,
		&token.ConsumedAt,
	); err != nil {
		return nil, err
	}
	typ, err := domain.ParseTokenType(typName)
	if err != nil {
		return nil, err
	}
	token.Type = typ
	return &token, nil
}
