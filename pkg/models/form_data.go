package models

// Submission types for contract form data.
const (
	SubmissionTypeContractOnly     = "CONTRACT_ONLY"
	SubmissionTypeContractAndRates = "CONTRACT_AND_RATES"
)

// ContractFormData is the state-entered content of a contract revision.
// The revision engine stores and returns it without interpreting it.
type ContractFormData struct {
	SubmissionType        string   `json:"submission_type,omitempty" yaml:"submission_type,omitempty"`
	SubmissionDescription string   `json:"submission_description,omitempty" yaml:"submission_description,omitempty"`
	ContractType          string   `json:"contract_type,omitempty" yaml:"contract_type,omitempty"` // BASE | AMENDMENT
	ProgramIDs            []string `json:"program_ids,omitempty" yaml:"program_ids,omitempty"`
	ContractDateStart     string   `json:"contract_date_start,omitempty" yaml:"contract_date_start,omitempty"`
	ContractDateEnd       string   `json:"contract_date_end,omitempty" yaml:"contract_date_end,omitempty"`
}

// RateFormData is the state-entered content of a rate revision.
type RateFormData struct {
	RateCertificationName string   `json:"rate_certification_name,omitempty" yaml:"rate_certification_name,omitempty"`
	RateType              string   `json:"rate_type,omitempty" yaml:"rate_type,omitempty"` // NEW | AMENDMENT
	RateProgramIDs        []string `json:"rate_program_ids,omitempty" yaml:"rate_program_ids,omitempty"`
	RateDateStart         string   `json:"rate_date_start,omitempty" yaml:"rate_date_start,omitempty"`
	RateDateEnd           string   `json:"rate_date_end,omitempty" yaml:"rate_date_end,omitempty"`
}
