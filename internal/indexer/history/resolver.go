// Package history resolves the workflow transitions of form responses and
// derives per-step and cumulative durations.
package history

import (
	"context"
	"sort"
	"time"

	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/models"
)

// Source is the slice of the workflow store the resolver needs.
type Source interface {
	GetHistoryByFilter(ctx context.Context, resourceIDs []int, resourceType string, workflowID int) ([]models.ResourceHistory, error)
	ListStates(ctx context.Context, workflowID int) ([]models.State, error)
	ListNonReflexiveActions(ctx context.Context, workflowID int) ([]models.Action, error)
}

// ResolvedEvent is one workflow transition enriched with the resolved state
// and action names and the derived durations in milliseconds.
type ResolvedEvent struct {
	HistoryID  int
	ActionName string
	StateName  string
	Operator   string
	Timestamp  time.Time

	// StepDuration measures from the previous event (or the response
	// creation for the first event); CumulativeDuration from the response
	// creation.
	StepDuration       int64
	CumulativeDuration int64
}

// Resolver fetches and enriches workflow history.
type Resolver struct {
	source Source
	logger logger.Logger
}

func New(source Source, log logger.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: log.WithFields(map[string]interface{}{"component": "history"}),
	}
}

// ResolveBatch fetches the history of many responses in one filtered query
// (the store chunks the id list) and partitions it per response. The result
// of a batch resolve is identical to resolving every response alone.
func (r *Resolver) ResolveBatch(ctx context.Context, workflowID int, responses []models.FormResponse) (map[int][]ResolvedEvent, error) {
	ids := make([]int, 0, len(responses))
	creations := make(map[int]time.Time, len(responses))
	for _, resp := range responses {
		ids = append(ids, resp.ID)
		creations[resp.ID] = resp.Creation
	}

	events, err := r.source.GetHistoryByFilter(ctx, ids, models.ResourceTypeFormResponse, workflowID)
	if err != nil {
		return nil, err
	}
	stateNames, actionNames, err := r.lookupNames(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	byResource := make(map[int][]models.ResourceHistory)
	for _, ev := range events {
		byResource[ev.ResourceID] = append(byResource[ev.ResourceID], ev)
	}

	out := make(map[int][]ResolvedEvent, len(byResource))
	for resourceID, evs := range byResource {
		out[resourceID] = resolve(creations[resourceID], evs, stateNames, actionNames)
	}
	return out, nil
}

// ResolveOne fetches and enriches the history of a single response.
func (r *Resolver) ResolveOne(ctx context.Context, workflowID int, response models.FormResponse) ([]ResolvedEvent, error) {
	events, err := r.source.GetHistoryByFilter(ctx, []int{response.ID}, models.ResourceTypeFormResponse, workflowID)
	if err != nil {
		return nil, err
	}
	stateNames, actionNames, err := r.lookupNames(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return resolve(response.Creation, events, stateNames, actionNames), nil
}

func (r *Resolver) lookupNames(ctx context.Context, workflowID int) (map[int]string, map[int]string, error) {
	states, err := r.source.ListStates(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	actions, err := r.source.ListNonReflexiveActions(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	stateNames := make(map[int]string, len(states))
	for _, s := range states {
		stateNames[s.ID] = s.Name
	}
	actionNames := make(map[int]string, len(actions))
	for _, a := range actions {
		actionNames[a.ID] = a.Name
	}
	return stateNames, actionNames, nil
}

// resolve orders events chronologically and computes durations. A state or
// action id that resolves to nothing leaves the name empty; the event is
// still produced.
func resolve(creation time.Time, events []models.ResourceHistory, stateNames, actionNames map[int]string) []ResolvedEvent {
	sorted := append([]models.ResourceHistory(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Creation.Equal(sorted[j].Creation) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Creation.Before(sorted[j].Creation)
	})

	out := make([]ResolvedEvent, 0, len(sorted))
	previous := creation
	for _, ev := range sorted {
		out = append(out, ResolvedEvent{
			HistoryID:          ev.ID,
			ActionName:         actionNames[ev.ActionID],
			StateName:          stateNames[ev.StateID],
			Operator:           ev.UserAccess,
			Timestamp:          ev.Creation,
			StepDuration:       ev.Creation.Sub(previous).Milliseconds(),
			CumulativeDuration: ev.Creation.Sub(creation).Milliseconds(),
		})
		previous = ev.Creation
	}
	return out
}
