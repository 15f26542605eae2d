package models

import "github.com/google/uuid"

// ContractRevisionSnapshot is one point in a contract's reconstructed history.
// SubmitInfo is attributed to whichever submission caused the snapshot: the contract's own
// submission or the submission of a linked rate.
type ContractRevisionSnapshot struct {
	ID               uuid.UUID              `json:"id" yaml:"id"`
	ContractID       uuid.UUID              `json:"contract_id" yaml:"contract_id"`
	ContractFormData ContractFormData       `json:"contract_form_data" yaml:"contract_form_data"`
	SubmitInfo       UpdateInfo             `json:"submit_info" yaml:"submit_info"`
	RateRevisions    []*RateRevisionSummary `json:"rate_revisions" yaml:"rate_revisions"`
}

// RateRevisionSnapshot is one point in a rate's reconstructed history.
type RateRevisionSnapshot struct {
	ID                uuid.UUID                  `json:"id" yaml:"id"`
	RateID            uuid.UUID                  `json:"rate_id" yaml:"rate_id"`
	RevisionFormData  RateFormData               `json:"revision_form_data" yaml:"revision_form_data"`
	SubmitInfo        UpdateInfo                 `json:"submit_info" yaml:"submit_info"`
	ContractRevisions []*ContractRevisionSummary `json:"contract_revisions" yaml:"contract_revisions"`
}
