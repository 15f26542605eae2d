package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract is a state's managed-care contract submission.
type Contract struct {
	ID          uuid.UUID           `json:"id"`
	StateCode   string              `json:"state_code"`
	StateNumber int                 `json:"state_number"`
	Status      SubmissionStatus    `json:"status"`
	Revisions   []*ContractRevision `json:"revisions"` // oldest first
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// DraftRevision returns the open draft revision, or nil.
func (c *Contract) DraftRevision() *ContractRevision {
	for _, rev := range c.Revisions {
		if rev.SubmitInfo == nil {
			return rev
		}
	}
	return nil
}

// LatestSubmittedRevision returns the newest submitted revision, or nil.
func (c *Contract) LatestSubmittedRevision() *ContractRevision {
	for i := len(c.Revisions) - 1; i >= 0; i-- {
		if c.Revisions[i].SubmitInfo != nil {
			return c.Revisions[i]
		}
	}
	return nil
}

// ContractRevision is one version of a contract's form data.
type ContractRevision struct {
	ID         uuid.UUID        `json:"id"`
	ContractID uuid.UUID        `json:"contract_id"`
	FormData   ContractFormData `json:"form_data"`
	SubmitInfo *UpdateInfo      `json:"submit_info,omitempty"`
	UnlockInfo *UpdateInfo      `json:"unlock_info,omitempty"`
	// DraftRateIDs are the staged rate links of a draft revision.
	DraftRateIDs []uuid.UUID `json:"draft_rate_ids,omitempty"`
	// RateRevisions are the active rate links; populated after submission.
	RateRevisions []*RateRevisionSummary `json:"rate_revisions,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Header returns the side-neutral view of the revision.
func (r *ContractRevision) Header() *RevisionHeader {
	return &RevisionHeader{
		ID:         r.ID,
		EntityID:   r.ContractID,
		SubmitInfo: r.SubmitInfo,
		UnlockInfo: r.UnlockInfo,
		CreatedAt:  r.CreatedAt,
	}
}

// Summary returns the view of the revision embedded in rate results.
func (r *ContractRevision) Summary() *ContractRevisionSummary {
	return &ContractRevisionSummary{ID: r.ID, ContractID: r.ContractID, ContractFormData: r.FormData}
}

// ContractRevisionSummary is the lightweight view of a contract revision shown inside a rate snapshot.
type ContractRevisionSummary struct {
	ID               uuid.UUID        `json:"id" yaml:"id"`
	ContractID       uuid.UUID        `json:"contract_id" yaml:"contract_id"`
	ContractFormData ContractFormData `json:"contract_form_data" yaml:"contract_form_data"`
}
