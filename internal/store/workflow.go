// internal/store/workflow.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"forms-indexer/internal/models"
)

// DefaultHistoryBatchSize bounds the number of resource ids per history
// query to stay under backend query-parameter limits.
const DefaultHistoryBatchSize = 80

// WorkflowStore reads workflow history, states and actions.
type WorkflowStore struct {
	db        *sql.DB
	batchSize int
}

func NewWorkflowStore(db *sql.DB, batchSize int) *WorkflowStore {
	if batchSize <= 0 {
		batchSize = DefaultHistoryBatchSize
	}
	return &WorkflowStore{db: db, batchSize: batchSize}
}

// GetHistoryByFilter returns the history rows of the given resources under
// one workflow, sorted by creation time ascending. Large id lists are split
// into bounded chunks; chunking does not change per-resource results.
func (s *WorkflowStore) GetHistoryByFilter(ctx context.Context, resourceIDs []int, resourceType string, workflowID int) ([]models.ResourceHistory, error) {
	var all []models.ResourceHistory
	for _, chunk := range chunkInts(resourceIDs, s.batchSize) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id_history, id_resource, id_workflow, id_action, id_state, creation_date, user_access_code
			   FROM workflow_resource_history
			  WHERE id_resource = ANY($1) AND resource_type = $2 AND id_workflow = $3
			  ORDER BY creation_date ASC, id_history ASC`,
			pq.Array(chunk), resourceType, workflowID)
		if err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}

		for rows.Next() {
			var h models.ResourceHistory
			if err := rows.Scan(&h.ID, &h.ResourceID, &h.WorkflowID, &h.ActionID, &h.StateID, &h.Creation, &h.UserAccess); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan history: %w", err)
			}
			all = append(all, h)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	// Re-sort across chunks so callers see one globally ordered list.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Creation.Equal(all[j].Creation) {
			return all[i].ID < all[j].ID
		}
		return all[i].Creation.Before(all[j].Creation)
	})
	return all, nil
}

// ListStates returns the state definitions of one workflow.
func (s *WorkflowStore) ListStates(ctx context.Context, workflowID int) ([]models.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_state, name FROM workflow_state WHERE id_workflow = $1 ORDER BY id_state`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var states []models.State
	for rows.Next() {
		var st models.State
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// ListNonReflexiveActions returns the workflow's actions excluding automatic
// reflexive self-transitions, which never surface in history documents.
func (s *WorkflowStore) ListNonReflexiveActions(ctx context.Context, workflowID int) ([]models.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_action, name FROM workflow_action
		  WHERE id_workflow = $1 AND is_automatic_reflexive = FALSE
		  ORDER BY id_action`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// chunkInts splits ids into slices of at most size elements.
func chunkInts(ids []int, size int) [][]int {
	if size <= 0 || len(ids) == 0 {
		if len(ids) == 0 {
			return nil
		}
		return [][]int{ids}
	}
	var chunks [][]int
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
