//go:build integration

package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/testhelpers"
)

const pgCheckViolation = "23514"

func TestRunMigrations_Idempotent(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)

	sqlDB, err := sql.Open("postgres", engineDB.ConnStr)
	if err != nil {
		t.Fatalf("failed to open sql connection: %v", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
}

// schemaFixture inserts one submitted contract revision and one submitted rate revision.
func schemaFixture(t *testing.T, ctx context.Context, tx pgx.Tx) (contractRev, rateRev uuid.UUID) {
	t.Helper()

	user := uuid.New()
	now := time.Now().UTC()
	var contractID, rateID uuid.UUID

	steps := []struct {
		query string
		args  []any
		dest  *uuid.UUID
	}{
		{`INSERT INTO states (state_code) VALUES ('MN') ON CONFLICT DO NOTHING RETURNING state_code`, nil, nil},
		{`INSERT INTO contracts (state_code, state_number) VALUES ('MN', 1) RETURNING id`, nil, &contractID},
		{`INSERT INTO rates (state_code) VALUES ('MN') RETURNING id`, nil, &rateID},
	}
	for _, s := range steps {
		if s.dest == nil {
			if _, err := tx.Exec(ctx, s.query, s.args...); err != nil {
				t.Fatalf("fixture %q: %v", s.query, err)
			}
			continue
		}
		if err := tx.QueryRow(ctx, s.query, s.args...).Scan(s.dest); err != nil {
			t.Fatalf("fixture %q: %v", s.query, err)
		}
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO contract_revisions (contract_id, submitted_at, submitted_by, submit_reason)
		VALUES ($1, $2, $3, 'initial submit') RETURNING id`, contractID, now, user).Scan(&contractRev); err != nil {
		t.Fatalf("failed to insert contract revision: %v", err)
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO rate_revisions (rate_id, submitted_at, submitted_by, submit_reason)
		VALUES ($1, $2, $3, 'Rate Submit') RETURNING id`, rateID, now, user).Scan(&rateRev); err != nil {
		t.Fatalf("failed to insert rate revision: %v", err)
	}
	return contractRev, rateRev
}

func TestSchema_EdgeConstraints(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.Reset(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{
			name: "open edge",
			query: `INSERT INTO rate_revisions_on_contract_revisions
				(contract_revision_id, rate_revision_id, valid_after) VALUES ($1, $2, now())`,
		},
		{
			name: "closed edge without cause",
			query: `INSERT INTO rate_revisions_on_contract_revisions
				(contract_revision_id, rate_revision_id, valid_after, valid_until) VALUES ($1, $2, now(), now())`,
			wantCode: pgCheckViolation,
		},
		{
			name: "closed edge with two causes",
			query: `INSERT INTO rate_revisions_on_contract_revisions
				(contract_revision_id, rate_revision_id, valid_after, valid_until,
				 invalidated_by_contract_revision_id, invalidated_by_rate_revision_id)
				VALUES ($1, $2, now(), now(), $1, $2)`,
			wantCode: pgCheckViolation,
		},
		{
			name: "removal edge with an interval",
			query: `INSERT INTO rate_revisions_on_contract_revisions
				(contract_revision_id, rate_revision_id, valid_after, valid_until,
				 invalidated_by_contract_revision_id, is_removal)
				VALUES ($1, $2, now() - interval '1 minute', now(), $1, true)`,
			wantCode: pgCheckViolation,
		},
		{
			name: "removal edge",
			query: `INSERT INTO rate_revisions_on_contract_revisions
				(contract_revision_id, rate_revision_id, valid_after, valid_until,
				 invalidated_by_contract_revision_id, is_removal)
				VALUES ($1, $2, '2024-03-14T09:00:00Z', '2024-03-14T09:00:00Z', $1, true)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := engineDB.DB.Begin(ctx)
			if err != nil {
				t.Fatalf("failed to begin: %v", err)
			}
			defer func() { _ = tx.Rollback(ctx) }()

			contractRev, rateRev := schemaFixture(t, ctx, tx)
			_, err = tx.Exec(ctx, tt.query, contractRev, rateRev)

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("expected insert to succeed, got %v", err)
				}
				return
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != tt.wantCode {
				t.Fatalf("expected error code %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestSchema_SubmitInfoComplete(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.Reset(t)
	ctx := context.Background()

	tx, err := engineDB.DB.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	schemaFixture(t, ctx, tx)

	_, err = tx.Exec(ctx, `
		INSERT INTO rate_revisions (rate_id, submitted_at)
		SELECT id, now() FROM rates LIMIT 1`)
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgCheckViolation {
		t.Fatalf("expected check violation for partial submit info, got %v", err)
	}
}
