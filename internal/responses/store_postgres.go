package responses

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Each captured field is one row
// of the responses table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed response store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, learnerID, unitID string) (progression.Bundle, error) {
	m, err := s.Snapshot(ctx, learnerID, []string{unitID})
	if err != nil {
		return nil, err
	}
	b, ok := m[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, learnerID, unitID)
	}
	return b, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, learnerID string, unitIDs []string) (progression.ResponseMap, error) {
	out := progression.ResponseMap{}
	if len(unitIDs) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT unit_id, field_id, value
		 FROM responses
		 WHERE learner_id = $1
		   AND unit_id = ANY($2)`,
		learnerID,
		unitIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var unitID, fieldID string
		var raw []byte
		if err := rows.Scan(&unitID, &fieldID, &raw); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		var v progression.Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode response %s/%s: %w", unitID, fieldID, err)
		}
		b, ok := out[unitID]
		if !ok {
			b = progression.Bundle{}
			out[unitID] = b
		}
		b[fieldID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Submit(ctx context.Context, learnerID, unitID string, fields progression.Bundle) error {
	if err := checkKey(learnerID, unitID); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submit: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for fieldID, v := range Normalize(fields) {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal field %s: %w", fieldID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO responses (learner_id, unit_id, field_id, value, updated_at)
			 VALUES ($1, $2, $3, $4::jsonb, $5)
			 ON CONFLICT (learner_id, unit_id, field_id)
			 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			learnerID,
			unitID,
			fieldID,
			string(data),
			now,
		); err != nil {
			return fmt.Errorf("upsert field %s: %w", fieldID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submit: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkComplete(ctx context.Context, learnerID, unitID string) error {
	return s.Submit(ctx, learnerID, unitID, markerBundle())
}
