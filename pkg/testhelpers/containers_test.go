//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/mc-review/submission-engine/pkg/database"
)

func TestEngineDB_MigrationsApplied(t *testing.T) {
	engineDB := GetEngineDB(t)

	ctx := context.Background()

	for _, table := range submissionTables {
		var exists bool
		err := engineDB.DB.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables
			  WHERE table_schema = 'public' AND table_name = $1)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to look up table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}
}

func TestEngineDB_Reset(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx := context.Background()

	if _, err := engineDB.DB.Exec(ctx, `INSERT INTO states (state_code) VALUES ('ZZ')`); err != nil {
		t.Fatalf("failed to insert state: %v", err)
	}

	engineDB.Reset(t)

	var count int
	if err := engineDB.DB.QueryRow(ctx, `SELECT COUNT(*) FROM states`).Scan(&count); err != nil {
		t.Fatalf("failed to count states: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty states table after reset, got %d rows", count)
	}
}

func TestEngineDB_ScopedContext(t *testing.T) {
	engineDB := GetEngineDB(t)

	ctx := engineDB.ScopedContext(t)
	scope, ok := database.GetScope(ctx)
	if !ok || scope.Conn == nil {
		t.Fatal("expected a scoped connection in context")
	}
}
