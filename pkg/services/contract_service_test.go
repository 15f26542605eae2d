package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/models"
)

func TestCreateContract_AssignsStateNumbers(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	first, err := h.contracts.CreateContract(ctx, " mn ", models.ContractFormData{}, nil)
	require.NoError(t, err)
	second, err := h.contracts.CreateContract(ctx, "MN", models.ContractFormData{}, nil)
	require.NoError(t, err)
	other, err := h.contracts.CreateContract(ctx, "FL", models.ContractFormData{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "MN", first.StateCode)
	assert.Equal(t, 1, first.StateNumber)
	assert.Equal(t, 2, second.StateNumber)
	assert.Equal(t, 1, other.StateNumber)
	require.Len(t, first.Revisions, 1)
	assert.Nil(t, first.Revisions[0].SubmitInfo)
	assert.Equal(t, models.StatusDraft, first.Status)
}

func TestCreateContract_RequiresStateCode(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.contracts.CreateContract(context.Background(), "  ", models.ContractFormData{}, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Empty(t, h.store.contracts)
}

func TestCreateContract_UnknownRate(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.contracts.CreateContract(context.Background(), "MN", models.ContractFormData{}, []uuid.UUID{uuid.New()})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Empty(t, h.store.contracts)
}

func TestCreateContract_RateFromOtherState(t *testing.T) {
	h := newServiceHarness(t)
	other, err := h.rates.CreateRate(context.Background(), "FL", models.RateFormData{}, nil)
	require.NoError(t, err)

	_, err = h.contracts.CreateContract(context.Background(), "MN", models.ContractFormData{}, []uuid.UUID{other.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
	assert.Contains(t, err.Error(), other.ID.String())
	assert.Empty(t, h.store.contracts)
}

func TestUpdateContractDraft_RateFromOtherState(t *testing.T) {
	h := newServiceHarness(t)
	other, err := h.rates.CreateRate(context.Background(), "FL", models.RateFormData{}, nil)
	require.NoError(t, err)
	c := h.createContract(t, "first")

	_, err = h.contracts.UpdateContractDraft(context.Background(), c.ID,
		models.ContractFormData{SubmissionDescription: "edited"}, []uuid.UUID{other.ID})
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	draft := h.store.contractRevs[0]
	assert.Equal(t, "first", draft.FormData.SubmissionDescription)
	assert.Empty(t, h.store.draftLinks[draft.ID])
}

func TestUpdateContractDraft(t *testing.T) {
	h := newServiceHarness(t)
	seed := h.createContract(t, "seed")
	r := h.createRate(t, "one", seed.ID)
	c := h.createContract(t, "first")

	draft, err := h.contracts.UpdateContractDraft(context.Background(), c.ID,
		models.ContractFormData{SubmissionDescription: "edited"}, []uuid.UUID{r.ID, r.ID})
	require.NoError(t, err)

	assert.Equal(t, "edited", draft.FormData.SubmissionDescription)
	assert.Equal(t, []uuid.UUID{r.ID}, draft.DraftRateIDs)
	assert.Equal(t, []uuid.UUID{r.ID}, h.store.draftLinks[draft.ID])
}

func TestUpdateContractDraft_NoDraft(t *testing.T) {
	h := newServiceHarness(t)
	c := h.createContract(t, "first")
	h.submitContract(t, c.ID, "initial submit")

	_, err := h.contracts.UpdateContractDraft(context.Background(), c.ID, models.ContractFormData{}, nil)
	assert.True(t, errors.Is(err, apperrors.ErrNoDraftRevision))

	_, err = h.contracts.UpdateContractDraft(context.Background(), uuid.New(), models.ContractFormData{}, nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSubmitContractRevision_ReturnsLinksFromSubmitTx(t *testing.T) {
	h := newServiceHarness(t)
	seed := h.createContract(t, "seed")
	h.submitContract(t, seed.ID, "seed")
	r := h.createRate(t, "one", seed.ID)
	h.submitRate(t, r.ID, "Rate Submit")
	c := h.createContract(t, "first", r.ID)
	draftID := h.store.contractRevs[len(h.store.contractRevs)-1].ID

	calls, roCalls := h.tx.calls, h.tx.roCalls
	rev, err := h.contracts.SubmitContractRevision(context.Background(), draftID, testUser, "initial submit")
	require.NoError(t, err)

	assert.Equal(t, calls+1, h.tx.calls)
	assert.Equal(t, roCalls, h.tx.roCalls, "the result is read in the submit tx")
	assert.Equal(t, c.ID, rev.ContractID)
	require.NotNil(t, rev.SubmitInfo)
	require.Len(t, rev.RateRevisions, 1)
	assert.Equal(t, r.ID, rev.RateRevisions[0].RateID)
}

func TestSubmitContractRevision_ReadFailureFailsSubmit(t *testing.T) {
	h := newServiceHarness(t)
	c := h.createContract(t, "first")
	h.contractRepo.getRevisionErr = errors.New("connection reset")

	_, err := h.contracts.SubmitContract(context.Background(), c.ID, testUser, "initial submit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to submit contract revision")
	assert.ErrorIs(t, err, h.contractRepo.getRevisionErr)
	assert.Equal(t, 1.0, h.counter(t, h.metrics.SubmissionsTotal.WithLabelValues("contract", "error")))
	assert.Empty(t, h.cache.invalidated[models.SideContract])
}

func TestGetContract_StatusLifecycle(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	c := h.createContract(t, "first")

	status := func() models.SubmissionStatus {
		got, err := h.contracts.GetContract(ctx, c.ID)
		require.NoError(t, err)
		return got.Status
	}

	assert.Equal(t, models.StatusDraft, status())
	h.submitContract(t, c.ID, "initial submit")
	assert.Equal(t, models.StatusSubmitted, status())
	_, err := h.contracts.UnlockContract(ctx, c.ID, testUser, "fix")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnlocked, status())
	h.submitContract(t, c.ID, "resubmit")
	assert.Equal(t, models.StatusResubmitted, status())
}

func TestGetContract_AttachesLinks(t *testing.T) {
	h := newServiceHarness(t)
	f := buildSubmissionFixture(t, h)

	got, err := h.contracts.GetContract(context.Background(), f.contract.ID)
	require.NoError(t, err)
	require.Len(t, got.Revisions, 2)

	first, latest := got.Revisions[0], got.Revisions[1]
	assert.Empty(t, first.RateRevisions, "superseded revisions have no open edges")
	require.Len(t, latest.RateRevisions, 2)
	assert.Equal(t, f.rate1.ID, latest.RateRevisions[0].RateID)
	assert.Equal(t, f.rate3.ID, latest.RateRevisions[1].RateID)
}

func TestUnlockContract(t *testing.T) {
	h := newServiceHarness(t)
	c := h.createContract(t, "first")
	h.submitContract(t, c.ID, "initial submit")
	r := h.createRate(t, "one", c.ID)
	h.submitRate(t, r.ID, "Rate Submit")

	draft, err := h.contracts.UnlockContract(context.Background(), c.ID, testUser, "needs changes")
	require.NoError(t, err)

	assert.Nil(t, draft.SubmitInfo)
	require.NotNil(t, draft.UnlockInfo)
	assert.Equal(t, "needs changes", draft.UnlockInfo.UpdatedReason)
	assert.Equal(t, testUser, draft.UnlockInfo.UpdatedBy)
	assert.Equal(t, "first", draft.FormData.SubmissionDescription)
	assert.Equal(t, []uuid.UUID{r.ID}, draft.DraftRateIDs)
}

func TestUnlockContract_Preconditions(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	c := h.createContract(t, "first")

	_, err := h.contracts.UnlockContract(ctx, c.ID, testUser, "unlock")
	assert.True(t, errors.Is(err, apperrors.ErrNotSubmitted))

	h.submitContract(t, c.ID, "initial submit")
	_, err = h.contracts.UnlockContract(ctx, c.ID, testUser, "unlock")
	require.NoError(t, err)

	_, err = h.contracts.UnlockContract(ctx, c.ID, testUser, "unlock again")
	assert.True(t, errors.Is(err, apperrors.ErrDraftExists))

	_, err = h.contracts.UnlockContract(ctx, uuid.New(), testUser, "unlock")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
