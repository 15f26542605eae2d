package models

import (
	"time"

	"github.com/google/uuid"
)

// UpdateInfo records who submitted or unlocked a revision, when, and why.
// UpdatedBy is a user reference; resolving it to an email is left to presentation code.
type UpdateInfo struct {
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
	UpdatedBy     uuid.UUID `json:"updated_by" yaml:"updated_by"`
	UpdatedReason string    `json:"updated_reason" yaml:"updated_reason"`
}

// SubmissionStatus is derived from an entity's revisions.
type SubmissionStatus string

const (
	StatusDraft       SubmissionStatus = "DRAFT"
	StatusSubmitted   SubmissionStatus = "SUBMITTED"
	StatusUnlocked    SubmissionStatus = "UNLOCKED"
	StatusResubmitted SubmissionStatus = "RESUBMITTED"
)

// DeriveStatus computes the status from revisions' submit info, oldest first.
func DeriveStatus(submitInfos []*UpdateInfo) SubmissionStatus {
	if len(submitInfos) == 0 {
		return StatusDraft
	}

	submitted := 0
	for _, info := range submitInfos {
		if info != nil {
			submitted++
		}
	}

	latest := submitInfos[len(submitInfos)-1]
	switch {
	case submitted == 0:
		return StatusDraft
	case latest == nil:
		return StatusUnlocked
	case submitted == 1:
		return StatusSubmitted
	default:
		return StatusResubmitted
	}
}

// Side identifies which half of the contract/rate pair a revision belongs to.
type Side string

const (
	SideContract Side = "contract"
	SideRate     Side = "rate"
)

// Counterpart returns the opposite side.
func (s Side) Counterpart() Side {
	if s == SideContract {
		return SideRate
	}
	return SideContract
}

// String returns the string representation of a Side.
func (s Side) String() string {
	return string(s)
}

// RevisionHeader is the side-neutral part of a revision used by the submission routine.
type RevisionHeader struct {
	ID         uuid.UUID
	EntityID   uuid.UUID
	SubmitInfo *UpdateInfo
	UnlockInfo *UpdateInfo
	CreatedAt  time.Time
}

// IsDraft returns true if the revision has not been submitted.
func (h *RevisionHeader) IsDraft() bool {
	return h.SubmitInfo == nil
}
