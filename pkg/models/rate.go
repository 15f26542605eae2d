package models

import (
	"time"

	"github.com/google/uuid"
)

// Rate is a rate certification submitted alongside one or more contracts.
type Rate struct {
	ID        uuid.UUID        `json:"id"`
	StateCode string           `json:"state_code"`
	Status    SubmissionStatus `json:"status"`
	Revisions []*RateRevision  `json:"revisions"` // oldest first
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// DraftRevision returns the open draft revision, or nil.
func (r *Rate) DraftRevision() *RateRevision {
	for _, rev := range r.Revisions {
		if rev.SubmitInfo == nil {
			return rev
		}
	}
	return nil
}

// LatestSubmittedRevision returns the newest submitted revision, or nil.
func (r *Rate) LatestSubmittedRevision() *RateRevision {
	for i := len(r.Revisions) - 1; i >= 0; i-- {
		if r.Revisions[i].SubmitInfo != nil {
			return r.Revisions[i]
		}
	}
	return nil
}

// RateRevision is one version of a rate's form data.
type RateRevision struct {
	ID         uuid.UUID    `json:"id"`
	RateID     uuid.UUID    `json:"rate_id"`
	FormData   RateFormData `json:"form_data"`
	SubmitInfo *UpdateInfo  `json:"submit_info,omitempty"`
	UnlockInfo *UpdateInfo  `json:"unlock_info,omitempty"`
	// DraftContractIDs are the staged contract links of a draft revision.
	DraftContractIDs []uuid.UUID `json:"draft_contract_ids,omitempty"`
	// ContractRevisions are the active contract links; populated after submission.
	ContractRevisions []*ContractRevisionSummary `json:"contract_revisions,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// Header returns the side-neutral view of the revision.
func (r *RateRevision) Header() *RevisionHeader {
	return &RevisionHeader{
		ID:         r.ID,
		EntityID:   r.RateID,
		SubmitInfo: r.SubmitInfo,
		UnlockInfo: r.UnlockInfo,
		CreatedAt:  r.CreatedAt,
	}
}

func (r *RateRevision) Summary() *RateRevisionSummary {
	return &RateRevisionSummary{ID: r.ID, RateID: r.RateID, RevisionFormData: r.FormData}
}

// RateRevisionSummary is the lightweight view of a rate revision shown inside a contract snapshot.
type RateRevisionSummary struct {
	ID               uuid.UUID    `json:"id" yaml:"id"`
	RateID           uuid.UUID    `json:"rate_id" yaml:"rate_id"`
	RevisionFormData RateFormData `json:"revision_form_data" yaml:"revision_form_data"`
}
