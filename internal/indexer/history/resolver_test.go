package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/models"
)

type stubSource struct {
	history []models.ResourceHistory
	states  []models.State
	actions []models.Action
	err     error
}

func (s *stubSource) GetHistoryByFilter(ctx context.Context, resourceIDs []int, resourceType string, workflowID int) ([]models.ResourceHistory, error) {
	if s.err != nil {
		return nil, s.err
	}
	wanted := make(map[int]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		wanted[id] = true
	}
	var out []models.ResourceHistory
	for _, ev := range s.history {
		if wanted[ev.ResourceID] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *stubSource) ListStates(ctx context.Context, workflowID int) ([]models.State, error) {
	return s.states, s.err
}

func (s *stubSource) ListNonReflexiveActions(ctx context.Context, workflowID int) ([]models.Action, error) {
	return s.actions, s.err
}

func TestResolveOneComputesDurations(t *testing.T) {
	creation := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubSource{
		history: []models.ResourceHistory{
			{ID: 1, ResourceID: 5, ActionID: 10, StateID: 20, Creation: creation.Add(2 * time.Second), UserAccess: "agent.a"},
			{ID: 2, ResourceID: 5, ActionID: 11, StateID: 21, Creation: creation.Add(7 * time.Second), UserAccess: "agent.b"},
		},
		states: []models.State{
			{ID: 20, Name: "Submitted"},
			{ID: 21, Name: "In progress"},
		},
		actions: []models.Action{
			{ID: 10, Name: "Submit"},
			{ID: 11, Name: "Assign"},
		},
	}
	r := New(source, logger.NewNoOpLogger())

	events, err := r.ResolveOne(context.Background(), 3, models.FormResponse{ID: 5, Creation: creation})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Submit", events[0].ActionName)
	assert.Equal(t, "Submitted", events[0].StateName)
	assert.Equal(t, "agent.a", events[0].Operator)
	assert.Equal(t, int64(2000), events[0].StepDuration)
	assert.Equal(t, int64(2000), events[0].CumulativeDuration)

	assert.Equal(t, "Assign", events[1].ActionName)
	assert.Equal(t, int64(5000), events[1].StepDuration)
	assert.Equal(t, int64(7000), events[1].CumulativeDuration)
}

func TestResolveOneOrdersByCreationThenID(t *testing.T) {
	creation := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	at := creation.Add(time.Minute)
	source := &stubSource{
		history: []models.ResourceHistory{
			{ID: 8, ResourceID: 5, Creation: at.Add(time.Second)},
			{ID: 7, ResourceID: 5, Creation: at},
			{ID: 6, ResourceID: 5, Creation: at},
		},
	}
	r := New(source, logger.NewNoOpLogger())

	events, err := r.ResolveOne(context.Background(), 3, models.FormResponse{ID: 5, Creation: creation})
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Ties on creation break on the history id.
	assert.Equal(t, 6, events[0].HistoryID)
	assert.Equal(t, 7, events[1].HistoryID)
	assert.Equal(t, 8, events[2].HistoryID)
	assert.Equal(t, int64(0), events[1].StepDuration)
}

func TestResolveOneLeavesUnknownNamesEmpty(t *testing.T) {
	creation := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubSource{
		history: []models.ResourceHistory{
			{ID: 1, ResourceID: 5, ActionID: 99, StateID: 98, Creation: creation.Add(time.Second)},
		},
	}
	r := New(source, logger.NewNoOpLogger())

	events, err := r.ResolveOne(context.Background(), 3, models.FormResponse{ID: 5, Creation: creation})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].ActionName)
	assert.Empty(t, events[0].StateName)
}

func TestResolveOneNoHistory(t *testing.T) {
	r := New(&stubSource{}, logger.NewNoOpLogger())

	events, err := r.ResolveOne(context.Background(), 3, models.FormResponse{ID: 5, Creation: time.Now()})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestResolveBatchMatchesResolveOne(t *testing.T) {
	creation1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	creation2 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	source := &stubSource{
		history: []models.ResourceHistory{
			{ID: 1, ResourceID: 5, ActionID: 10, StateID: 20, Creation: creation1.Add(time.Second)},
			{ID: 2, ResourceID: 6, ActionID: 10, StateID: 20, Creation: creation2.Add(2 * time.Second)},
			{ID: 3, ResourceID: 5, ActionID: 11, StateID: 21, Creation: creation1.Add(3 * time.Second)},
		},
		states:  []models.State{{ID: 20, Name: "Submitted"}, {ID: 21, Name: "Done"}},
		actions: []models.Action{{ID: 10, Name: "Submit"}, {ID: 11, Name: "Close"}},
	}
	r := New(source, logger.NewNoOpLogger())

	responses := []models.FormResponse{
		{ID: 5, Creation: creation1},
		{ID: 6, Creation: creation2},
	}

	batch, err := r.ResolveBatch(context.Background(), 3, responses)
	require.NoError(t, err)

	for _, resp := range responses {
		single, err := r.ResolveOne(context.Background(), 3, resp)
		require.NoError(t, err)
		assert.Equal(t, single, batch[resp.ID], "batch result for response %d", resp.ID)
	}
}

func TestResolveBatchPropagatesSourceError(t *testing.T) {
	r := New(&stubSource{err: errors.New("query failed")}, logger.NewNoOpLogger())

	_, err := r.ResolveBatch(context.Background(), 3, []models.FormResponse{{ID: 5}})
	assert.Error(t, err)
}
