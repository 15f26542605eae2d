package models

import (
	"time"

	"github.com/google/uuid"
)

// RevisionEdge is a validity-interval link between one contract revision and one rate revision.
// A nil ValidUntil means the edge is still active. A closed edge carries exactly one
// invalidation cause.
type RevisionEdge struct {
	ID                              int64      `json:"id"`
	ContractRevisionID              uuid.UUID  `json:"contract_revision_id"`
	ContractID                      uuid.UUID  `json:"contract_id"`
	RateRevisionID                  uuid.UUID  `json:"rate_revision_id"`
	RateID                          uuid.UUID  `json:"rate_id"`
	ValidAfter                      time.Time  `json:"valid_after"`
	ValidUntil                      *time.Time `json:"valid_until,omitempty"`
	InvalidatedByContractRevisionID *uuid.UUID `json:"invalidated_by_contract_revision_id,omitempty"`
	InvalidatedByRateRevisionID     *uuid.UUID `json:"invalidated_by_rate_revision_id,omitempty"`
	IsRemoval                       bool       `json:"is_removal"`
	CreatedAt                       time.Time  `json:"created_at"`
}

// IsOpen returns true if the edge has not been closed.
func (e *RevisionEdge) IsOpen() bool {
	return e.ValidUntil == nil
}

// RevisionID returns the revision on the given side of the edge.
func (e *RevisionEdge) RevisionID(side Side) uuid.UUID {
	if side == SideContract {
		return e.ContractRevisionID
	}
	return e.RateRevisionID
}

// EntityID returns the contract or rate ID on the given side of the edge.
func (e *RevisionEdge) EntityID(side Side) uuid.UUID {
	if side == SideContract {
		return e.ContractID
	}
	return e.RateID
}

// InvalidatedBy returns the invalidating revision on the given side, if that side closed the edge.
func (e *RevisionEdge) InvalidatedBy(side Side) *uuid.UUID {
	if side == SideContract {
		return e.InvalidatedByContractRevisionID
	}
	return e.InvalidatedByRateRevisionID
}
