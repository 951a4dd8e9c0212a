// internal/models/workflow.go
package models

import "time"

// ResourceHistory is one recorded workflow transition of a form response.
// Rows are read sorted by creation time ascending.
type ResourceHistory struct {
	ID         int       `json:"id"`
	ResourceID int       `json:"resourceId"`
	WorkflowID int       `json:"workflowId"`
	ActionID   int       `json:"actionId"`
	StateID    int       `json:"stateId"`
	Creation   time.Time `json:"creation"`
	UserAccess string    `json:"userAccess"`
}

// State is one workflow state definition.
type State struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Action is one workflow action definition. Automatic reflexive actions
// (internal self-transitions) are filtered out before they reach the
// resolver.
type Action struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
