package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mc-review/submission-engine/pkg/auth"
	"github.com/mc-review/submission-engine/pkg/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestAuditor creates an auditor with an observer to capture log entries.
func setupTestAuditor(t *testing.T) (*Auditor, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	a := NewAuditor(zap.New(core))
	a.now = func() time.Time { return fixedNow }
	return a, recorded
}

func stateUserContext(userID uuid.UUID, state string) context.Context {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Role:             auth.RoleStateUser,
		State:            state,
	}
	return auth.WithClaims(context.Background(), claims, "token")
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) Event {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var e Event
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func TestLogSubmitted(t *testing.T) {
	a, recorded := setupTestAuditor(t)
	userID, contractID, revID := uuid.New(), uuid.New(), uuid.New()

	a.LogSubmitted(stateUserContext(userID, "FL"), models.SideContract, contractID, revID, "initial", "10.0.0.1")

	logs := recorded.All()
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "audit", entry.LoggerName)
	assert.Equal(t, revID.String(), entry.ContextMap()["revision_id"])

	e := decodeEvent(t, entry)
	assert.Equal(t, EventSubmitted, e.EventType)
	assert.Equal(t, models.SideContract, e.Side)
	assert.Equal(t, contractID, e.EntityID)
	require.NotNil(t, e.RevisionID)
	assert.Equal(t, revID, *e.RevisionID)
	assert.Equal(t, userID.String(), e.UserID)
	assert.Equal(t, auth.RoleStateUser, e.Role)
	assert.Equal(t, "FL", e.State)
	assert.Equal(t, "initial", e.Reason)
	assert.Equal(t, "info", e.Severity)
	assert.True(t, e.Timestamp.Equal(fixedNow))
}

func TestLogUnlocked(t *testing.T) {
	a, recorded := setupTestAuditor(t)
	rateID, draftID := uuid.New(), uuid.New()

	a.LogUnlocked(context.Background(), models.SideRate, rateID, draftID, "fix rates", "")

	logs := recorded.All()
	require.Len(t, logs, 1)
	e := decodeEvent(t, logs[0])
	assert.Equal(t, EventUnlocked, e.EventType)
	assert.Equal(t, models.SideRate, e.Side)
	assert.Equal(t, "fix rates", e.Reason)
	assert.Empty(t, e.UserID, "no claims in context")
}

func TestLogAccessDenied(t *testing.T) {
	a, recorded := setupTestAuditor(t)
	contractID := uuid.New()

	a.LogAccessDenied(stateUserContext(uuid.New(), "TX"), models.SideContract, contractID, "192.168.1.100")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	_, hasRevision := logs[0].ContextMap()["revision_id"]
	assert.False(t, hasRevision)

	e := decodeEvent(t, logs[0])
	assert.Equal(t, EventAccessDenied, e.EventType)
	assert.Equal(t, "TX", e.State)
	assert.Equal(t, "192.168.1.100", e.ClientIP)
	assert.Nil(t, e.RevisionID)
	assert.Equal(t, "warning", e.Severity)
}

func TestNilAuditor(t *testing.T) {
	var a *Auditor
	assert.NotPanics(t, func() {
		a.LogSubmitted(context.Background(), models.SideContract, uuid.New(), uuid.New(), "", "")
		a.LogUnlocked(context.Background(), models.SideRate, uuid.New(), uuid.New(), "", "")
		a.LogAccessDenied(context.Background(), models.SideRate, uuid.New(), "")
	})
}
