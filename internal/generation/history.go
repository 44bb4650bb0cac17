package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Record is one row of generation history.
type Record struct {
	ID             uuid.UUID
	OrgType        string
	Operation      string
	Model          string
	OriginalPrompt string
	FinalPrompt    string
	NegativePrompt string
	ConfigVersion  string
	ImageKeys      []string
	CreatedAt      time.Time
}

// History stores completed generations.
type History interface {
	Record(ctx context.Context, rec Record) error
}

// NopHistory discards records.
type NopHistory struct{}

func (NopHistory) Record(context.Context, Record) error { return nil }

// Execer is the slice of pgxpool.Pool used by PostgresHistory.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertGenerationSQL = `INSERT INTO generations
    (id, org_type, operation, model, original_prompt, final_prompt, negative_prompt, config_version, image_keys, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// PostgresHistory writes to the generations table.
type PostgresHistory struct {
	db Execer
}

func NewPostgresHistory(db Execer) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func (h *PostgresHistory) Record(ctx context.Context, rec Record) error {
	keys := rec.ImageKeys
	if keys == nil {
		keys = []string{}
	}
	_, err := h.db.Exec(ctx, insertGenerationSQL,
		rec.ID, rec.OrgType, rec.Operation, rec.Model,
		rec.OriginalPrompt, rec.FinalPrompt, rec.NegativePrompt, rec.ConfigVersion,
		keys, rec.CreatedAt,
	)
	return err
}
