// internal/models/forms.go
package models

import "time"

// ResourceTypeFormResponse is the resource type tag carried by CRUD events
// on form responses. Events with any other tag are ignored.
const ResourceTypeFormResponse = "FORMS_FORM_RESPONSE"

// AnswerType tags a question with the semantics of its answers. The
// extractor dispatches on this tag through a single switch.
type AnswerType string

const (
	AnswerTypeText        AnswerType = "text"
	AnswerTypeNumber      AnswerType = "number"
	AnswerTypeDate        AnswerType = "date"
	AnswerTypeCheckbox    AnswerType = "checkbox"
	AnswerTypeSelectOrder AnswerType = "select_order"
	AnswerTypeGeolocation AnswerType = "geolocation"
)

// Form identifies a form definition. Immutable for the pipeline.
type Form struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	WorkflowID int    `json:"workflowId"`
}

// FormResponse is one submission instance. Draft responses (saved but not
// submitted) are never indexed.
type FormResponse struct {
	ID       int       `json:"id"`
	FormID   int       `json:"formId"`
	Creation time.Time `json:"creation"`
	Draft    bool      `json:"draft"`
}

// Question carries the metadata the extractor needs: the title used in
// flattened keys and the answer-type tag.
type Question struct {
	ID    int        `json:"id"`
	Title string     `json:"title"`
	Type  AnswerType `json:"type"`
}

// Answer is one answer row for a question within a form response. FieldID
// identifies the sub-answer for multi-part types (checkbox choices, the X/Y
// halves of a geolocation). SortOrder only matters for ordered selections.
type Answer struct {
	QuestionID int    `json:"questionId"`
	ResponseID int    `json:"responseId"`
	Value      string `json:"value"`
	FieldID    int    `json:"fieldId"`
	SortOrder  int    `json:"sortOrder"`
}

// IndexableQuestion marks a (form, question) pair whose answers are included
// in the flattened documents. Maintained by the admin UI, consumed here.
type IndexableQuestion struct {
	ID         int `json:"id"`
	FormID     int `json:"formId"`
	QuestionID int `json:"questionId"`
}

// Geolocation field codes registered for geolocation sub-answers. The raw
// numeric field id is used as the key when no code is registered.
const (
	FieldCodeX = "X"
	FieldCodeY = "Y"
)
