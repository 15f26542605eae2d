package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/models"
	"github.com/mc-review/submission-engine/pkg/repositories"
)

// memStore is an in-memory stand-in for the revision tables. Slices keep creation order,
// which is the order the SQL repositories sort by.
type memStore struct {
	contracts    map[uuid.UUID]*models.Contract
	rates        map[uuid.UUID]*models.Rate
	contractRevs []*models.ContractRevision
	rateRevs     []*models.RateRevision
	draftLinks   map[uuid.UUID][]uuid.UUID
	edges        []*models.RevisionEdge
	stateNumbers map[string]int
	nextEdgeID   int64
	// locks records LockEntities calls as "<side> <mode>" in call order.
	locks []string
}

func newMemStore() *memStore {
	return &memStore{
		contracts:    make(map[uuid.UUID]*models.Contract),
		rates:        make(map[uuid.UUID]*models.Rate),
		draftLinks:   make(map[uuid.UUID][]uuid.UUID),
		stateNumbers: make(map[string]int),
	}
}

// headers returns side-neutral views that write through to the stored revisions.
func (s *memStore) headers(side models.Side) []*revisionRef {
	var refs []*revisionRef
	if side == models.SideContract {
		for _, r := range s.contractRevs {
			refs = append(refs, &revisionRef{id: r.ID, entityID: r.ContractID, submit: &r.SubmitInfo})
		}
		return refs
	}
	for _, r := range s.rateRevs {
		refs = append(refs, &revisionRef{id: r.ID, entityID: r.RateID, submit: &r.SubmitInfo})
	}
	return refs
}

func (s *memStore) entityExists(side models.Side, id uuid.UUID) bool {
	if side == models.SideContract {
		_, ok := s.contracts[id]
		return ok
	}
	_, ok := s.rates[id]
	return ok
}

func (s *memStore) stateOf(side models.Side, id uuid.UUID) string {
	if side == models.SideContract {
		return s.contracts[id].StateCode
	}
	return s.rates[id].StateCode
}

func (s *memStore) entityOf(side models.Side, revisionID uuid.UUID) uuid.UUID {
	for _, ref := range s.headers(side) {
		if ref.id == revisionID {
			return ref.entityID
		}
	}
	return uuid.Nil
}

type revisionRef struct {
	id       uuid.UUID
	entityID uuid.UUID
	submit   **models.UpdateInfo
}

// fakeTransactor runs fn directly; memStore has no isolation to offer.
type fakeTransactor struct {
	calls   int
	roCalls int
}

var _ database.Transactor = (*fakeTransactor)(nil)

func (t *fakeTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

func (t *fakeTransactor) WithinReadOnlyTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.roCalls++
	return fn(ctx)
}

// ---------- RevisionRepository ----------

type fakeRevisionRepo struct {
	store *memStore
	side  models.Side

	latestErr error
}

var _ repositories.RevisionRepository = (*fakeRevisionRepo)(nil)

func (r *fakeRevisionRepo) Side() models.Side { return r.side }

func (r *fakeRevisionRepo) LockEntity(_ context.Context, entityID uuid.UUID) error {
	if !r.store.entityExists(r.side, entityID) {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *fakeRevisionRepo) LockEntities(_ context.Context, ids []uuid.UUID, shared bool) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if !r.store.entityExists(r.side, id) {
			return apperrors.ErrNotFound
		}
	}
	mode := "update"
	if shared {
		mode = "share"
	}
	r.store.locks = append(r.store.locks, r.side.String()+" "+mode)
	return nil
}

func (r *fakeRevisionRepo) MismatchedStateIDs(_ context.Context, stateCode string, ids []uuid.UUID) ([]uuid.UUID, error) {
	var mismatched []uuid.UUID
	for _, id := range ids {
		if r.store.entityExists(r.side, id) && r.store.stateOf(r.side, id) != stateCode {
			mismatched = append(mismatched, id)
		}
	}
	return mismatched, nil
}

func (r *fakeRevisionRepo) MissingEntityIDs(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var missing []uuid.UUID
	for _, id := range ids {
		if !r.store.entityExists(r.side, id) {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *fakeRevisionRepo) GetDraftRevisionID(_ context.Context, entityID uuid.UUID) (uuid.UUID, error) {
	if !r.store.entityExists(r.side, entityID) {
		return uuid.Nil, apperrors.ErrNotFound
	}
	for _, ref := range r.store.headers(r.side) {
		if ref.entityID == entityID && *ref.submit == nil {
			return ref.id, nil
		}
	}
	return uuid.Nil, apperrors.ErrNoDraftRevision
}

func (r *fakeRevisionRepo) LockDraftRevision(_ context.Context, revisionID uuid.UUID) (*models.RevisionHeader, error) {
	for _, ref := range r.store.headers(r.side) {
		if ref.id != revisionID {
			continue
		}
		if *ref.submit != nil {
			return nil, fmt.Errorf("%w: %s revision %s is already submitted", apperrors.ErrNoDraftRevision, r.side, revisionID)
		}
		return &models.RevisionHeader{ID: ref.id, EntityID: ref.entityID}, nil
	}
	return nil, fmt.Errorf("%w: %s revision %s does not exist", apperrors.ErrNoDraftRevision, r.side, revisionID)
}

func (r *fakeRevisionRepo) StampSubmitInfo(_ context.Context, revisionID uuid.UUID, info models.UpdateInfo) error {
	for _, ref := range r.store.headers(r.side) {
		if ref.id == revisionID && *ref.submit == nil {
			stamped := info
			*ref.submit = &stamped
			return nil
		}
	}
	return apperrors.ErrNoDraftRevision
}

func (r *fakeRevisionRepo) GetPreviousSubmittedRevisionID(_ context.Context, entityID, excludeID uuid.UUID) (*uuid.UUID, error) {
	var (
		prev   *uuid.UUID
		prevAt time.Time
	)
	for _, ref := range r.store.headers(r.side) {
		if ref.entityID != entityID || ref.id == excludeID || *ref.submit == nil {
			continue
		}
		if at := (*ref.submit).UpdatedAt; prev == nil || !at.Before(prevAt) {
			id := ref.id
			prev, prevAt = &id, at
		}
	}
	return prev, nil
}

func (r *fakeRevisionRepo) GetLatestSubmittedRevisionIDs(_ context.Context, entityIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	if r.latestErr != nil {
		return nil, r.latestErr
	}
	wanted := make(map[uuid.UUID]bool, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = true
	}
	latest := make(map[uuid.UUID]uuid.UUID)
	latestAt := make(map[uuid.UUID]time.Time)
	for _, ref := range r.store.headers(r.side) {
		if !wanted[ref.entityID] || *ref.submit == nil {
			continue
		}
		at := (*ref.submit).UpdatedAt
		if prev, ok := latestAt[ref.entityID]; !ok || !at.Before(prev) {
			latest[ref.entityID] = ref.id
			latestAt[ref.entityID] = at
		}
	}
	return latest, nil
}

func (r *fakeRevisionRepo) GetDraftLinks(_ context.Context, revisionID uuid.UUID) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), r.store.draftLinks[revisionID]...), nil
}

func (r *fakeRevisionRepo) ReplaceDraftLinks(_ context.Context, revisionID uuid.UUID, counterpartIDs []uuid.UUID) error {
	if len(counterpartIDs) == 0 {
		delete(r.store.draftLinks, revisionID)
		return nil
	}
	r.store.draftLinks[revisionID] = append([]uuid.UUID(nil), counterpartIDs...)
	return nil
}

// ---------- RevisionEdgeRepository ----------

type fakeEdgeRepo struct {
	store *memStore

	openErr error
}

var _ repositories.RevisionEdgeRepository = (*fakeEdgeRepo)(nil)

func (r *fakeEdgeRepo) newEdge(side models.Side, revisionID, counterpartRevisionID uuid.UUID, at time.Time) *models.RevisionEdge {
	r.store.nextEdgeID++
	e := &models.RevisionEdge{ID: r.store.nextEdgeID, ValidAfter: at, CreatedAt: at}
	contractRev, rateRev := revisionID, counterpartRevisionID
	if side == models.SideRate {
		contractRev, rateRev = counterpartRevisionID, revisionID
	}
	e.ContractRevisionID = contractRev
	e.ContractID = r.store.entityOf(models.SideContract, contractRev)
	e.RateRevisionID = rateRev
	e.RateID = r.store.entityOf(models.SideRate, rateRev)
	return e
}

func (r *fakeEdgeRepo) OpenEdges(_ context.Context, side models.Side, revisionID uuid.UUID, counterpartRevisionIDs []uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	var out []*models.RevisionEdge
	for _, cp := range counterpartRevisionIDs {
		e := r.newEdge(side, revisionID, cp, groupTime)
		r.store.edges = append(r.store.edges, e)
		out = append(out, copyEdge(e))
	}
	return out, nil
}

func (r *fakeEdgeRepo) CloseOpenEdges(_ context.Context, side models.Side, revisionID, invalidatingRevisionID uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error) {
	var out []*models.RevisionEdge
	for _, e := range r.store.edges {
		if e.RevisionID(side) != revisionID || !e.IsOpen() {
			continue
		}
		until, by := groupTime, invalidatingRevisionID
		e.ValidUntil = &until
		if side == models.SideContract {
			e.InvalidatedByContractRevisionID = &by
		} else {
			e.InvalidatedByRateRevisionID = &by
		}
		out = append(out, copyEdge(e))
	}
	return out, nil
}

func (r *fakeEdgeRepo) InsertRemovalEdges(_ context.Context, side models.Side, revisionID uuid.UUID, counterpartRevisionIDs []uuid.UUID, groupTime time.Time) ([]*models.RevisionEdge, error) {
	var out []*models.RevisionEdge
	for _, cp := range counterpartRevisionIDs {
		e := r.newEdge(side, revisionID, cp, groupTime)
		until, by := groupTime, revisionID
		e.ValidUntil = &until
		e.IsRemoval = true
		if side == models.SideContract {
			e.InvalidatedByContractRevisionID = &by
		} else {
			e.InvalidatedByRateRevisionID = &by
		}
		r.store.edges = append(r.store.edges, e)
		out = append(out, copyEdge(e))
	}
	return out, nil
}

func (r *fakeEdgeRepo) ListByRevisions(_ context.Context, side models.Side, revisionIDs []uuid.UUID) ([]*models.RevisionEdge, error) {
	wanted := make(map[uuid.UUID]bool, len(revisionIDs))
	for _, id := range revisionIDs {
		wanted[id] = true
	}
	var out []*models.RevisionEdge
	for _, e := range r.store.edges {
		if wanted[e.RevisionID(side)] {
			out = append(out, copyEdge(e))
		}
	}
	return out, nil
}

func copyEdge(e *models.RevisionEdge) *models.RevisionEdge {
	cp := *e
	return &cp
}

// ---------- ContractRepository ----------

type fakeContractRepo struct {
	store *memStore
	now   time.Time

	getRevisionErr error
}

var _ repositories.ContractRepository = (*fakeContractRepo)(nil)

func (r *fakeContractRepo) Create(_ context.Context, contract *models.Contract) error {
	r.store.stateNumbers[contract.StateCode]++
	contract.ID = uuid.New()
	contract.StateNumber = r.store.stateNumbers[contract.StateCode]
	contract.CreatedAt, contract.UpdatedAt = r.now, r.now
	stored := *contract
	r.store.contracts[contract.ID] = &stored
	return nil
}

func (r *fakeContractRepo) GetByID(_ context.Context, contractID uuid.UUID) (*models.Contract, error) {
	c, ok := r.store.contracts[contractID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	cp.Revisions = nil
	return &cp, nil
}

func (r *fakeContractRepo) CreateRevision(_ context.Context, rev *models.ContractRevision) error {
	for _, existing := range r.store.contractRevs {
		if existing.ContractID == rev.ContractID && existing.SubmitInfo == nil {
			return apperrors.ErrDraftExists
		}
	}
	rev.ID = uuid.New()
	rev.CreatedAt, rev.UpdatedAt = r.now, r.now
	stored := *rev
	r.store.contractRevs = append(r.store.contractRevs, &stored)
	return nil
}

func (r *fakeContractRepo) GetRevision(_ context.Context, revisionID uuid.UUID) (*models.ContractRevision, error) {
	if r.getRevisionErr != nil {
		return nil, r.getRevisionErr
	}
	for _, rev := range r.store.contractRevs {
		if rev.ID == revisionID {
			cp := *rev
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeContractRepo) ListRevisions(_ context.Context, contractID uuid.UUID) ([]*models.ContractRevision, error) {
	var out []*models.ContractRevision
	for _, rev := range r.store.contractRevs {
		if rev.ContractID == contractID {
			cp := *rev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeContractRepo) GetRevisionsByIDs(_ context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]*models.ContractRevision, error) {
	out := make(map[uuid.UUID]*models.ContractRevision)
	for _, id := range revisionIDs {
		for _, rev := range r.store.contractRevs {
			if rev.ID == id {
				cp := *rev
				out[id] = &cp
			}
		}
	}
	return out, nil
}

func (r *fakeContractRepo) UpdateDraftFormData(_ context.Context, revisionID uuid.UUID, formData models.ContractFormData) error {
	for _, rev := range r.store.contractRevs {
		if rev.ID == revisionID && rev.SubmitInfo == nil {
			rev.FormData = formData
			return nil
		}
	}
	return apperrors.ErrNoDraftRevision
}

// ---------- RateRepository ----------

type fakeRateRepo struct {
	store *memStore
	now   time.Time
}

var _ repositories.RateRepository = (*fakeRateRepo)(nil)

func (r *fakeRateRepo) Create(_ context.Context, rate *models.Rate) error {
	rate.ID = uuid.New()
	rate.CreatedAt, rate.UpdatedAt = r.now, r.now
	stored := *rate
	r.store.rates[rate.ID] = &stored
	return nil
}

func (r *fakeRateRepo) GetByID(_ context.Context, rateID uuid.UUID) (*models.Rate, error) {
	rate, ok := r.store.rates[rateID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *rate
	cp.Revisions = nil
	return &cp, nil
}

func (r *fakeRateRepo) CreateRevision(_ context.Context, rev *models.RateRevision) error {
	for _, existing := range r.store.rateRevs {
		if existing.RateID == rev.RateID && existing.SubmitInfo == nil {
			return apperrors.ErrDraftExists
		}
	}
	rev.ID = uuid.New()
	rev.CreatedAt, rev.UpdatedAt = r.now, r.now
	stored := *rev
	r.store.rateRevs = append(r.store.rateRevs, &stored)
	return nil
}

func (r *fakeRateRepo) GetRevision(_ context.Context, revisionID uuid.UUID) (*models.RateRevision, error) {
	for _, rev := range r.store.rateRevs {
		if rev.ID == revisionID {
			cp := *rev
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeRateRepo) ListRevisions(_ context.Context, rateID uuid.UUID) ([]*models.RateRevision, error) {
	var out []*models.RateRevision
	for _, rev := range r.store.rateRevs {
		if rev.RateID == rateID {
			cp := *rev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRateRepo) GetRevisionsByIDs(_ context.Context, revisionIDs []uuid.UUID) (map[uuid.UUID]*models.RateRevision, error) {
	out := make(map[uuid.UUID]*models.RateRevision)
	for _, id := range revisionIDs {
		for _, rev := range r.store.rateRevs {
			if rev.ID == id {
				cp := *rev
				out[id] = &cp
			}
		}
	}
	return out, nil
}

func (r *fakeRateRepo) UpdateDraftFormData(_ context.Context, revisionID uuid.UUID, formData models.RateFormData) error {
	for _, rev := range r.store.rateRevs {
		if rev.ID == revisionID && rev.SubmitInfo == nil {
			rev.FormData = formData
			return nil
		}
	}
	return apperrors.ErrNoDraftRevision
}

// ---------- HistoryCache ----------

type recordingCache struct {
	contracts   map[uuid.UUID][]*models.ContractRevisionSnapshot
	rates       map[uuid.UUID][]*models.RateRevisionSnapshot
	invalidated map[models.Side][]uuid.UUID
}

var _ HistoryCache = (*recordingCache)(nil)

func newRecordingCache() *recordingCache {
	return &recordingCache{
		contracts:   make(map[uuid.UUID][]*models.ContractRevisionSnapshot),
		rates:       make(map[uuid.UUID][]*models.RateRevisionSnapshot),
		invalidated: make(map[models.Side][]uuid.UUID),
	}
}

func (c *recordingCache) GetContractHistory(_ context.Context, id uuid.UUID) ([]*models.ContractRevisionSnapshot, bool) {
	h, ok := c.contracts[id]
	return h, ok
}

func (c *recordingCache) SetContractHistory(_ context.Context, id uuid.UUID, h []*models.ContractRevisionSnapshot) {
	c.contracts[id] = h
}

func (c *recordingCache) GetRateHistory(_ context.Context, id uuid.UUID) ([]*models.RateRevisionSnapshot, bool) {
	h, ok := c.rates[id]
	return h, ok
}

func (c *recordingCache) SetRateHistory(_ context.Context, id uuid.UUID, h []*models.RateRevisionSnapshot) {
	c.rates[id] = h
}

func (c *recordingCache) Invalidate(_ context.Context, side models.Side, ids ...uuid.UUID) {
	for _, id := range ids {
		if side == models.SideContract {
			delete(c.contracts, id)
		} else {
			delete(c.rates, id)
		}
	}
	c.invalidated[side] = append(c.invalidated[side], ids...)
}
