package branding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists branding profiles keyed by org type.
type Store interface {
	Get(ctx context.Context, orgType string) (Profile, error)
	Upsert(ctx context.Context, p Profile) error
	Delete(ctx context.Context, orgType string) error
}

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps profiles in the branding_profiles table.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const (
	selectProfileSQL = `SELECT document, updated_at FROM branding_profiles WHERE org_type = $1`
	upsertProfileSQL = `INSERT INTO branding_profiles (org_type, document, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (org_type) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`
	deleteProfileSQL = `DELETE FROM branding_profiles WHERE org_type = $1`
)

func (s *PostgresStore) Get(ctx context.Context, orgType string) (Profile, error) {
	var (
		doc       []byte
		updatedAt time.Time
	)
	err := s.db.QueryRow(ctx, selectProfileSQL, orgType).Scan(&doc, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("select branding profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return Profile{}, fmt.Errorf("decode branding profile %s: %w", orgType, err)
	}
	p.OrgType = orgType
	p.UpdatedAt = updatedAt
	return p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = s.now().UTC()
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode branding profile: %w", err)
	}
	if _, err := s.db.Exec(ctx, upsertProfileSQL, p.OrgType, doc, p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert branding profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, orgType string) error {
	tag, err := s.db.Exec(ctx, deleteProfileSQL, orgType)
	if err != nil {
		return fmt.Errorf("delete branding profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
