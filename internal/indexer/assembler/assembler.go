// Package assembler combines extractor and history-resolver output into the
// documents written to the search index: one current-state document per form
// response plus one history document per workflow transition.
package assembler

import (
	"strconv"

	"forms-indexer/internal/indexer/extractor"
	"forms-indexer/internal/indexer/history"
	"forms-indexer/internal/models"
)

const historyIDPrefix = "formResponseHistory_"

// Assembler builds deterministic documents. Ids depend only on source ids,
// so re-running on unchanged data produces byte-identical output.
type Assembler struct {
	instanceName string
}

// New creates an Assembler. instanceName, when non-empty, namespaces
// current-state document ids for multi-instance deployments.
func New(instanceName string) *Assembler {
	return &Assembler{instanceName: instanceName}
}

// CurrentDocumentID returns the id of a response's current-state document.
func (a *Assembler) CurrentDocumentID(responseID int) string {
	if a.instanceName != "" {
		return a.instanceName + "_" + strconv.Itoa(responseID)
	}
	return strconv.Itoa(responseID)
}

// HistoryDocumentID returns the id of the document derived from one history
// event.
func HistoryDocumentID(historyID int) string {
	return historyIDPrefix + strconv.Itoa(historyID)
}

// Build produces exactly 1+len(events) documents. The current-state
// document is parented on the owning form; history documents on the owning
// workflow, which is how the consuming index groups them. History documents
// keep the chronological order of the resolved events and each carries its
// own copy of the flattened answers.
func (a *Assembler) Build(form models.Form, response models.FormResponse, answers extractor.Flattened, events []history.ResolvedEvent) []models.FormResponseDocument {
	docs := make([]models.FormResponseDocument, 0, 1+len(events))

	current := models.FormResponseDocument{
		ID:             a.CurrentDocumentID(response.ID),
		DocumentType:   models.DocumentTypeFormResponse,
		Parent:         "form_" + strconv.Itoa(form.ID),
		Timestamp:      response.Creation.UnixMilli(),
		FormName:       form.Title,
		FormID:         form.ID,
		FormResponseID: response.ID,
		UserResponses:  answers.Single,
	}
	if len(answers.Multi) > 0 {
		current.UserResponsesMultiValued = answers.Multi
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		current.WorkflowState = last.StateName
		current.ActionName = last.ActionName
		complete := last.CumulativeDuration
		current.CompleteDuration = &complete
	}
	docs = append(docs, current)

	for _, ev := range events {
		copied := answers.Clone()
		step := ev.StepDuration
		cumulative := ev.CumulativeDuration
		doc := models.FormResponseDocument{
			ID:               HistoryDocumentID(ev.HistoryID),
			DocumentType:     models.DocumentTypeFormResponseHistory,
			Parent:           "workflow_" + strconv.Itoa(form.WorkflowID),
			Timestamp:        ev.Timestamp.UnixMilli(),
			FormName:         form.Title,
			FormID:           form.ID,
			FormResponseID:   response.ID,
			WorkflowState:    ev.StateName,
			ActionName:       ev.ActionName,
			UnitName:         ev.Operator,
			TaskDuration:     &step,
			CompleteDuration: &cumulative,
			UserResponses:    copied.Single,
		}
		if len(copied.Multi) > 0 {
			doc.UserResponsesMultiValued = copied.Multi
		}
		docs = append(docs, doc)
	}

	return docs
}
