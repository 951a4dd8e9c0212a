// Package store implements the relational lookups the pipeline consumes:
// forms, responses, answers, indexable-question configuration and workflow
// history.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"forms-indexer/internal/models"
)

// FormStore reads form definitions, responses and answers.
type FormStore struct {
	db *sql.DB
}

func NewFormStore(db *sql.DB) *FormStore {
	return &FormStore{db: db}
}

// ListForms returns every form definition.
func (s *FormStore) ListForms(ctx context.Context) ([]models.Form, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_form, title, id_workflow FROM forms_form ORDER BY id_form`)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var forms []models.Form
	for rows.Next() {
		var f models.Form
		if err := rows.Scan(&f.ID, &f.Title, &f.WorkflowID); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

// GetForm returns one form definition or nil when the id is unknown.
func (s *FormStore) GetForm(ctx context.Context, formID int) (*models.Form, error) {
	var f models.Form
	err := s.db.QueryRowContext(ctx,
		`SELECT id_form, title, id_workflow FROM forms_form WHERE id_form = $1`,
		formID).Scan(&f.ID, &f.Title, &f.WorkflowID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get form %d: %w", formID, err)
	}
	return &f, nil
}

// ListNonDraftResponses returns the submitted (non-draft) responses of one
// form. Drafts never reach the index.
func (s *FormStore) ListNonDraftResponses(ctx context.Context, formID int) ([]models.FormResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_response, id_form, creation_date, from_save
		   FROM forms_response
		  WHERE id_form = $1 AND from_save = FALSE
		  ORDER BY id_response`,
		formID)
	if err != nil {
		return nil, fmt.Errorf("list responses for form %d: %w", formID, err)
	}
	defer rows.Close()

	return scanResponses(rows)
}

// GetResponse returns one form response or nil when the id is unknown.
func (s *FormStore) GetResponse(ctx context.Context, responseID int) (*models.FormResponse, error) {
	var r models.FormResponse
	err := s.db.QueryRowContext(ctx,
		`SELECT id_response, id_form, creation_date, from_save
		   FROM forms_response WHERE id_response = $1`,
		responseID).Scan(&r.ID, &r.FormID, &r.Creation, &r.Draft)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response %d: %w", responseID, err)
	}
	return &r, nil
}

// GetResponsesByIDs batch-fetches responses by id.
func (s *FormStore) GetResponsesByIDs(ctx context.Context, ids []int) ([]models.FormResponse, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_response, id_form, creation_date, from_save
		   FROM forms_response
		  WHERE id_response = ANY($1)
		  ORDER BY id_response`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get responses by ids: %w", err)
	}
	defer rows.Close()

	return scanResponses(rows)
}

// GetAnswersByResponseIDs batch-fetches every answer row of the given
// responses, restricted later to the indexable questions by the extractor.
func (s *FormStore) GetAnswersByResponseIDs(ctx context.Context, ids []int) ([]models.Answer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_question, id_response, response_value, id_field, sort_order
		   FROM forms_question_response
		  WHERE id_response = ANY($1)
		  ORDER BY id_response, id_question, sort_order`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get answers by response ids: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.QuestionID, &a.ResponseID, &a.Value, &a.FieldID, &a.SortOrder); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// GetIndexableQuestionIDs returns the question ids configured for indexing
// on one form (the admin-maintained allow-list).
func (s *FormStore) GetIndexableQuestionIDs(ctx context.Context, formID int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_question FROM elasticdata_forms_optional_question
		  WHERE id_form = $1 ORDER BY id_question`,
		formID)
	if err != nil {
		return nil, fmt.Errorf("get indexable questions for form %d: %w", formID, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetQuestionMetadata batch-fetches question titles and answer-type tags.
func (s *FormStore) GetQuestionMetadata(ctx context.Context, ids []int) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_question, title, answer_type FROM forms_question
		  WHERE id_question = ANY($1) ORDER BY id_question`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get question metadata: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Title, &q.Type); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetFieldCodes returns the field-id to human-readable code table used for
// multi-part answers (geolocation X/Y, checkbox choices).
func (s *FormStore) GetFieldCodes(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id_field, code FROM genatt_field WHERE code IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("get field codes: %w", err)
	}
	defer rows.Close()

	codes := make(map[int]string)
	for rows.Next() {
		var id int
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, fmt.Errorf("scan field code: %w", err)
		}
		codes[id] = code
	}
	return codes, rows.Err()
}

func scanResponses(rows *sql.Rows) ([]models.FormResponse, error) {
	var responses []models.FormResponse
	for rows.Next() {
		var r models.FormResponse
		if err := rows.Scan(&r.ID, &r.FormID, &r.Creation, &r.Draft); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}
