package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoDraftRevision = errors.New("no draft revision found")
	ErrDraftExists     = errors.New("a draft revision already exists")
	ErrNotSubmitted    = errors.New("no submitted revision found")
	ErrDataIntegrity   = errors.New("revision history integrity violation")

	// The two counterpart errors keep their exact wording; callers surface them verbatim.
	ErrRateWithUnsubmittedContract = errors.New("Attempted to submit a rate related to a contract that has not been submitted") //nolint:staticcheck
	ErrContractWithUnsubmittedRate = errors.New("Attempted to submit a contract related to a rate that has not been submitted") //nolint:staticcheck
)

// IsPrecondition reports whether err is a caller-correctable precondition failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNoDraftRevision) ||
		errors.Is(err, ErrDraftExists) ||
		errors.Is(err, ErrNotSubmitted) ||
		errors.Is(err, ErrRateWithUnsubmittedContract) ||
		errors.Is(err, ErrContractWithUnsubmittedRate)
}
