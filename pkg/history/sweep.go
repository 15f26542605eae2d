// Package history reconstructs the linear, attributed history of a contract or rate from its
// submitted revisions and their validity-interval edges.
//
// The reconstruction is written once and instantiated twice: a contract's history is built with
// contract revisions as the self side and rate revisions as the counterpart, and a rate's history
// the other way round.
package history

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mc-review/submission-engine/pkg/apperrors"
	"github.com/mc-review/submission-engine/pkg/models"
)

// Edge is a join edge as seen from the revision whose history is being built.
type Edge[C any] struct {
	// Counterpart is the value exposed in snapshots while the edge is active.
	Counterpart           C
	CounterpartRevisionID uuid.UUID
	ValidAfter            time.Time
	ValidUntil            *time.Time
	// InvalidatedBySelf is set when a newer revision of the same entity closed the edge.
	InvalidatedBySelf *uuid.UUID
	// InvalidatedByCounterpart is set when a newer counterpart revision closed the edge.
	InvalidatedByCounterpart *uuid.UUID
	IsRemoval                bool
}

// Revision is one revision of the entity whose history is being built.
type Revision[F, C any] struct {
	ID         uuid.UUID
	FormData   F
	SubmitInfo *models.UpdateInfo // nil for drafts, which are skipped
	Edges      []Edge[C]
}

// Snapshot is the counterpart membership of a revision as of one instant.
type Snapshot[F, C any] struct {
	RevisionID   uuid.UUID
	FormData     F
	SubmitInfo   models.UpdateInfo
	Counterparts []C
}

// SubmitInfoLookup resolves a counterpart revision's submit info.
type SubmitInfoLookup func(revisionID uuid.UUID) (*models.UpdateInfo, bool)

type eventKind int

// Within one instant events are applied in this order. Adds precede removals so that an edge
// opened and closed at the same instant leaves the running set unchanged.
const (
	eventSubmitted eventKind = iota
	eventAdded
	eventRemoved
	eventDropped
)

type event[C any] struct {
	at   time.Time
	kind eventKind
	edge *Edge[C]
}

// Reconstruct replays the submitted revisions in order and returns their snapshots concatenated.
func Reconstruct[F, C any](revisions []Revision[F, C], lookup SubmitInfoLookup) ([]Snapshot[F, C], error) {
	var snapshots []Snapshot[F, C]
	for i := range revisions {
		rev := &revisions[i]
		if rev.SubmitInfo == nil {
			continue
		}
		revSnapshots, err := reconstructRevision(rev, lookup)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, revSnapshots...)
	}
	return snapshots, nil
}

func reconstructRevision[F, C any](rev *Revision[F, C], lookup SubmitInfoLookup) ([]Snapshot[F, C], error) {
	events, err := buildEvents(rev)
	if err != nil {
		return nil, err
	}

	var (
		snapshots []Snapshot[F, C]
		active    []*Edge[C]
	)

	for start := 0; start < len(events); {
		end := start + 1
		for end < len(events) && events[end].at.Equal(events[start].at) {
			end++
		}
		group := events[start:end]
		start = end

		var (
			attribution *models.UpdateInfo
			superseded  bool
		)

		for _, ev := range group {
			switch ev.kind {
			case eventSubmitted:
				attribution = rev.SubmitInfo
			case eventAdded:
				active = append(active, ev.edge)
				if attribution == nil {
					info, err := resolve(lookup, ev.edge.CounterpartRevisionID, rev.ID)
					if err != nil {
						return nil, err
					}
					attribution = info
				}
			case eventRemoved:
				active = slices.DeleteFunc(active, func(e *Edge[C]) bool {
					return e.CounterpartRevisionID == ev.edge.CounterpartRevisionID
				})
				if ev.edge.InvalidatedBySelf != nil {
					superseded = true
					continue
				}
				if attribution == nil {
					info, err := resolve(lookup, *ev.edge.InvalidatedByCounterpart, rev.ID)
					if err != nil {
						return nil, err
					}
					attribution = info
				}
			case eventDropped:
				if attribution == nil && ev.edge.InvalidatedByCounterpart != nil {
					info, err := resolve(lookup, *ev.edge.InvalidatedByCounterpart, rev.ID)
					if err != nil {
						return nil, err
					}
					attribution = info
				}
			}
		}

		if superseded {
			continue
		}
		if attribution == nil {
			attribution = rev.SubmitInfo
		}

		counterparts := make([]C, 0, len(active))
		for _, e := range active {
			counterparts = append(counterparts, e.Counterpart)
		}
		snapshots = append(snapshots, Snapshot[F, C]{
			RevisionID:   rev.ID,
			FormData:     rev.FormData,
			SubmitInfo:   *attribution,
			Counterparts: counterparts,
		})
	}

	return snapshots, nil
}

// buildEvents flattens a revision's own submission and its edges into events sorted by time.
func buildEvents[F, C any](rev *Revision[F, C]) ([]event[C], error) {
	events := make([]event[C], 0, 1+2*len(rev.Edges))
	events = append(events, event[C]{at: rev.SubmitInfo.UpdatedAt, kind: eventSubmitted})

	for i := range rev.Edges {
		edge := &rev.Edges[i]
		if err := checkEdge(rev.ID, edge); err != nil {
			return nil, err
		}
		if edge.IsRemoval {
			events = append(events, event[C]{at: *edge.ValidUntil, kind: eventDropped, edge: edge})
			continue
		}
		events = append(events, event[C]{at: edge.ValidAfter, kind: eventAdded, edge: edge})
		if edge.ValidUntil != nil {
			events = append(events, event[C]{at: *edge.ValidUntil, kind: eventRemoved, edge: edge})
		}
	}

	slices.SortStableFunc(events, func(a, b event[C]) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.kind, b.kind)
	})
	return events, nil
}

// checkEdge enforces the single-cause invariant on closed edges.
func checkEdge[C any](revisionID uuid.UUID, edge *Edge[C]) error {
	if edge.ValidUntil == nil {
		if edge.IsRemoval {
			return fmt.Errorf("%w: removal edge to %s on revision %s has no end",
				apperrors.ErrDataIntegrity, edge.CounterpartRevisionID, revisionID)
		}
		return nil
	}

	bySelf := edge.InvalidatedBySelf != nil
	byCounterpart := edge.InvalidatedByCounterpart != nil
	if bySelf == byCounterpart {
		return fmt.Errorf("%w: closed edge to %s on revision %s must have exactly one invalidation cause",
			apperrors.ErrDataIntegrity, edge.CounterpartRevisionID, revisionID)
	}
	return nil
}

func resolve(lookup SubmitInfoLookup, counterpartRevisionID, revisionID uuid.UUID) (*models.UpdateInfo, error) {
	info, ok := lookup(counterpartRevisionID)
	if !ok || info == nil {
		return nil, fmt.Errorf("%w: revision %s referenced from %s has no submit info",
			apperrors.ErrDataIntegrity, counterpartRevisionID, revisionID)
	}
	return info, nil
}
