package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/metrics"
	"github.com/mc-review/submission-engine/pkg/models"
)

// serviceHarness wires the three services to one memStore and a shared ticking clock.
type serviceHarness struct {
	store        *memStore
	tx           *fakeTransactor
	edges        *fakeEdgeRepo
	contractRepo *fakeContractRepo
	rateRevs     *fakeRevisionRepo
	cache        *recordingCache
	metrics      *metrics.Metrics
	contracts    *contractService
	rates        *rateService
	history      HistoryService

	// ctx is passed to every service call the helpers make.
	ctx   context.Context
	base  time.Time
	ticks int
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	store := newMemStore()
	h := &serviceHarness{
		store:   store,
		tx:      &fakeTransactor{},
		edges:   &fakeEdgeRepo{store: store},
		cache:   newRecordingCache(),
		metrics: metrics.New(),
		ctx:     context.Background(),
		// Sub-microsecond component checks that stored times are truncated.
		base: time.Date(2024, 3, 14, 9, 0, 0, 789, time.UTC),
	}

	contractRepo := &fakeContractRepo{store: store, now: h.base}
	h.contractRepo = contractRepo
	rateRepo := &fakeRateRepo{store: store, now: h.base}
	contractRevs := &fakeRevisionRepo{store: store, side: models.SideContract}
	h.rateRevs = &fakeRevisionRepo{store: store, side: models.SideRate}
	logger := zap.NewNop()

	h.contracts = newContractService(h.tx, contractRepo, rateRepo, contractRevs, h.rateRevs, h.edges, h.cache, h.metrics, logger)
	h.rates = newRateService(h.tx, contractRepo, rateRepo, contractRevs, h.rateRevs, h.edges, h.cache, h.metrics, logger)
	h.history = NewHistoryService(h.tx, contractRepo, rateRepo, h.edges, h.cache, h.metrics, logger)

	h.contracts.writer.clock = h.tick
	h.rates.writer.clock = h.tick
	return h
}

func (h *serviceHarness) tick() time.Time {
	h.ticks++
	return h.base.Add(time.Duration(h.ticks) * time.Minute)
}

func (h *serviceHarness) createContract(t *testing.T, description string, rateIDs ...uuid.UUID) *models.Contract {
	t.Helper()
	c, err := h.contracts.CreateContract(h.ctx, "MN",
		models.ContractFormData{SubmissionDescription: description}, rateIDs)
	require.NoError(t, err)
	return c
}

func (h *serviceHarness) createRate(t *testing.T, name string, contractIDs ...uuid.UUID) *models.Rate {
	t.Helper()
	r, err := h.rates.CreateRate(h.ctx, "MN",
		models.RateFormData{RateCertificationName: name}, contractIDs)
	require.NoError(t, err)
	return r
}

func (h *serviceHarness) submitContract(t *testing.T, contractID uuid.UUID, reason string) *models.ContractRevision {
	t.Helper()
	rev, err := h.contracts.SubmitContract(h.ctx, contractID, testUser, reason)
	require.NoError(t, err)
	return rev
}

func (h *serviceHarness) submitRate(t *testing.T, rateID uuid.UUID, reason string) *models.RateRevision {
	t.Helper()
	rev, err := h.rates.SubmitRateRevision(h.ctx, rateID, testUser, reason)
	require.NoError(t, err)
	return rev
}

func (h *serviceHarness) counter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

var testUser = uuid.MustParse("7b1f6f5e-2f43-4d2e-9a55-3c9c0f2b6a10")

// submissionFixture is the canonical interleaving of two contract submissions with five rate
// submissions and removals.
type submissionFixture struct {
	contract *models.Contract
	rate1    *models.Rate
	rate2    *models.Rate
	rate3    *models.Rate
}

func buildSubmissionFixture(t *testing.T, h *serviceHarness) *submissionFixture {
	t.Helper()
	ctx := h.ctx
	f := &submissionFixture{}

	f.contract = h.createContract(t, "first")
	h.submitContract(t, f.contract.ID, "initial submit")

	f.rate1 = h.createRate(t, "one", f.contract.ID)
	h.submitRate(t, f.rate1.ID, "Rate Submit")

	f.rate2 = h.createRate(t, "two", f.contract.ID)
	h.submitRate(t, f.rate2.ID, "RateSubmit 2")

	f.rate3 = h.createRate(t, "three", f.contract.ID)
	h.submitRate(t, f.rate3.ID, "3 submit")

	_, err := h.rates.UnlockRate(ctx, f.rate2.ID, testUser, "drop the contract")
	require.NoError(t, err)
	_, err = h.rates.UpdateRateDraft(ctx, f.rate2.ID, models.RateFormData{RateCertificationName: "twopointone"}, nil)
	require.NoError(t, err)
	h.submitRate(t, f.rate2.ID, "2.1 remove")

	_, err = h.rates.UnlockRate(ctx, f.rate1.ID, testUser, "rename")
	require.NoError(t, err)
	_, err = h.rates.UpdateRateDraft(ctx, f.rate1.ID, models.RateFormData{RateCertificationName: "onepointone"}, []uuid.UUID{f.contract.ID})
	require.NoError(t, err)
	h.submitRate(t, f.rate1.ID, "1.1 new name")

	_, err = h.contracts.UnlockContract(ctx, f.contract.ID, testUser, "resubmit")
	require.NoError(t, err)
	_, err = h.contracts.UpdateContractDraft(ctx, f.contract.ID, models.ContractFormData{SubmissionDescription: "second"},
		[]uuid.UUID{f.rate1.ID, f.rate3.ID})
	require.NoError(t, err)
	h.submitContract(t, f.contract.ID, "third submit")

	return f
}
