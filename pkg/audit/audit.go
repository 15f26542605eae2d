// Package audit records submission lifecycle events and access denials in a structured form
// for SIEM consumption. Events go to a dedicated "audit" logger so they can be routed and
// retained separately from request logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mc-review/submission-engine/pkg/auth"
	"github.com/mc-review/submission-engine/pkg/models"
)

// EventType categorizes audit events for filtering and alerting.
type EventType string

const (
	// EventSubmitted is logged when a state user submits a contract or rate revision.
	EventSubmitted EventType = "submission_submitted"
	// EventUnlocked is logged when a CMS user reopens a submitted contract or rate.
	EventUnlocked EventType = "submission_unlocked"
	// EventAccessDenied is logged when a state user touches another state's submission.
	EventAccessDenied EventType = "cross_state_access_denied"
)

// Event is one auditable action with the caller's identity.
type Event struct {
	Timestamp  time.Time   `json:"timestamp"`
	EventType  EventType   `json:"event_type"`
	Side       models.Side `json:"side"`
	EntityID   uuid.UUID   `json:"entity_id"`
	RevisionID *uuid.UUID  `json:"revision_id,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	Role       string      `json:"role,omitempty"`
	State      string      `json:"state,omitempty"`
	ClientIP   string      `json:"client_ip,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Severity   string      `json:"severity"` // info, warning
}

// Auditor writes audit events. A nil *Auditor discards everything.
type Auditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditor creates an auditor logging under the "audit" namespace of logger.
func NewAuditor(logger *zap.Logger) *Auditor {
	return &Auditor{
		logger: logger.Named("audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LogSubmitted records a successful submission of revisionID.
func (a *Auditor) LogSubmitted(ctx context.Context, side models.Side, entityID, revisionID uuid.UUID, reason, clientIP string) {
	if a == nil {
		return
	}
	e := a.event(ctx, EventSubmitted, side, entityID, clientIP)
	e.RevisionID = &revisionID
	e.Reason = reason
	e.Severity = "info"
	a.write(zap.InfoLevel, "Submission recorded", e)
}

// LogUnlocked records that entityID was reopened, creating draft revision draftID.
func (a *Auditor) LogUnlocked(ctx context.Context, side models.Side, entityID, draftID uuid.UUID, reason, clientIP string) {
	if a == nil {
		return
	}
	e := a.event(ctx, EventUnlocked, side, entityID, clientIP)
	e.RevisionID = &draftID
	e.Reason = reason
	e.Severity = "info"
	a.write(zap.InfoLevel, "Submission unlocked", e)
}

// LogAccessDenied records a caller reaching for a submission outside their state.
func (a *Auditor) LogAccessDenied(ctx context.Context, side models.Side, entityID uuid.UUID, clientIP string) {
	if a == nil {
		return
	}
	e := a.event(ctx, EventAccessDenied, side, entityID, clientIP)
	e.Severity = "warning"
	a.write(zap.WarnLevel, "Cross-state access denied", e)
}

func (a *Auditor) event(ctx context.Context, eventType EventType, side models.Side, entityID uuid.UUID, clientIP string) Event {
	e := Event{
		Timestamp: a.now(),
		EventType: eventType,
		Side:      side,
		EntityID:  entityID,
		ClientIP:  clientIP,
	}
	if claims, ok := auth.GetClaims(ctx); ok && claims != nil {
		e.UserID = claims.Subject
		e.Role = claims.Role
		e.State = claims.State
	}
	return e
}

func (a *Auditor) write(level zapcore.Level, msg string, e Event) {
	// Marshaling a flat struct of known types does not fail.
	eventJSON, _ := json.Marshal(e)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(e.EventType)),
		zap.String("side", string(e.Side)),
		zap.String("entity_id", e.EntityID.String()),
		zap.String("user_id", e.UserID),
		zap.String("client_ip", e.ClientIP),
		zap.String("severity", e.Severity),
	}
	if e.RevisionID != nil {
		fields = append(fields, zap.String("revision_id", e.RevisionID.String()))
	}
	if ce := a.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}
