// internal/models/document.go
package models

// Document type tags written into every indexed document.
const (
	DocumentTypeFormResponse        = "formResponse"
	DocumentTypeFormResponseHistory = "formResponseHistory"
)

// FormResponseDocument is the flattened unit written to the search index.
// Two variants share the shape: the current-state document (one per form
// response) and the history document (one per workflow transition). The
// index has no cross-document join, so history documents duplicate the
// flattened answer maps of their parent.
type FormResponseDocument struct {
	ID           string `json:"id"`
	DocumentType string `json:"documentType"`
	Parent       string `json:"parent,omitempty"`
	Timestamp    int64  `json:"timestamp"`

	FormName       string `json:"formName"`
	FormID         int    `json:"formId"`
	FormResponseID int    `json:"formResponseId"`

	WorkflowState string `json:"workflowState,omitempty"`
	ActionName    string `json:"actionName,omitempty"`
	UnitName      string `json:"unitName,omitempty"`

	// Durations in milliseconds. TaskDuration is the time spent in the
	// step that the transition closed; CompleteDuration is measured from
	// the form response creation.
	TaskDuration     *int64 `json:"taskDuration,omitempty"`
	CompleteDuration *int64 `json:"completeDuration,omitempty"`

	UserResponses            map[string]string   `json:"userResponses,omitempty"`
	UserResponsesMultiValued map[string][]string `json:"userResponsesMultiValued,omitempty"`
}
