package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forms-indexer/internal/models"
)

func newFormStore(t *testing.T) (*FormStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFormStore(db), mock
}

func TestListForms(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id_form, title, id_workflow FROM forms_form ORDER BY id_form`)).
		WillReturnRows(sqlmock.NewRows([]string{"id_form", "title", "id_workflow"}).
			AddRow(1, "Complaint form", 4).
			AddRow(2, "Permit request", 5))

	forms, err := store.ListForms(context.Background())
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, models.Form{ID: 1, Title: "Complaint form", WorkflowID: 4}, forms[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFormNotFound(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id_form, title, id_workflow FROM forms_form WHERE id_form = $1`)).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id_form", "title", "id_workflow"}))

	form, err := store.GetForm(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, form)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNonDraftResponsesExcludesDrafts(t *testing.T) {
	store, mock := newFormStore(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id_response, id_form, creation_date, from_save`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id_response", "id_form", "creation_date", "from_save"}).
			AddRow(17, 1, created, false))

	responses, err := store.ListNonDraftResponses(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, 17, responses[0].ID)
	assert.False(t, responses[0].Draft)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResponseNotFound(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(`SELECT id_response, id_form, creation_date, from_save`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id_response", "id_form", "creation_date", "from_save"}))

	response, err := store.GetResponse(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, response)
}

func TestGetResponsesByIDs(t *testing.T) {
	store, mock := newFormStore(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id_response, id_form, creation_date, from_save`).
		WithArgs(pq.Array([]int{17, 18})).
		WillReturnRows(sqlmock.NewRows([]string{"id_response", "id_form", "creation_date", "from_save"}).
			AddRow(17, 1, created, false).
			AddRow(18, 1, created, true))

	responses, err := store.GetResponsesByIDs(context.Background(), []int{17, 18})
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.True(t, responses[1].Draft)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnswersByResponseIDs(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(`SELECT id_question, id_response, response_value, id_field, sort_order`).
		WithArgs(pq.Array([]int{17, 18})).
		WillReturnRows(sqlmock.NewRows([]string{"id_question", "id_response", "response_value", "id_field", "sort_order"}).
			AddRow(7, 17, "Paris", 0, 0).
			AddRow(5, 18, "roads", 101, 1))

	answers, err := store.GetAnswersByResponseIDs(context.Background(), []int{17, 18})
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, models.Answer{QuestionID: 7, ResponseID: 17, Value: "Paris"}, answers[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnswersByResponseIDsEmptyInput(t *testing.T) {
	store, _ := newFormStore(t)

	answers, err := store.GetAnswersByResponseIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, answers)
}

func TestGetIndexableQuestionIDs(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id_question FROM elasticdata_forms_optional_question`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id_question"}).AddRow(3).AddRow(7))

	ids, err := store.GetIndexableQuestionIDs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, ids)
}

func TestGetQuestionMetadata(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(`SELECT id_question, title, answer_type FROM forms_question`).
		WithArgs(pq.Array([]int{3, 7})).
		WillReturnRows(sqlmock.NewRows([]string{"id_question", "title", "answer_type"}).
			AddRow(3, "Age", "number").
			AddRow(7, "City", "text"))

	questions, err := store.GetQuestionMetadata(context.Background(), []int{3, 7})
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, models.AnswerTypeNumber, questions[0].Type)
	assert.Equal(t, models.AnswerTypeText, questions[1].Type)
}

func TestGetFieldCodes(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(`SELECT id_field, code FROM genatt_field`).
		WillReturnRows(sqlmock.NewRows([]string{"id_field", "code"}).
			AddRow(101, "X").
			AddRow(102, "Y"))

	codes, err := store.GetFieldCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int]string{101: "X", 102: "Y"}, codes)
}

func TestListFormsQueryError(t *testing.T) {
	store, mock := newFormStore(t)

	mock.ExpectQuery(`SELECT id_form`).WillReturnError(errors.New("connection lost"))

	_, err := store.ListForms(context.Background())
	assert.Error(t, err)
}
