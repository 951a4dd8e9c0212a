package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forms-indexer/internal/models"
)

type stubSource struct {
	forms     []models.Form
	indexable map[int][]int
	questions map[int]models.Question
	err       error
}

func (s *stubSource) ListForms(ctx context.Context) ([]models.Form, error) {
	return s.forms, s.err
}

func (s *stubSource) GetIndexableQuestionIDs(ctx context.Context, formID int) ([]int, error) {
	return s.indexable[formID], s.err
}

func (s *stubSource) GetQuestionMetadata(ctx context.Context, ids []int) ([]models.Question, error) {
	var out []models.Question
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, s.err
}

func properties(t *testing.T, schema map[string]interface{}) map[string]interface{} {
	t.Helper()
	mappings, ok := schema["mappings"].(map[string]interface{})
	require.True(t, ok)
	props, ok := mappings["properties"].(map[string]interface{})
	require.True(t, ok)
	return props
}

func TestBuildMapsAnswerTypes(t *testing.T) {
	src := &stubSource{
		forms:     []models.Form{{ID: 1, Title: "Complaint"}},
		indexable: map[int][]int{1: {3, 4, 11}},
		questions: map[int]models.Question{
			3:  {ID: 3, Title: "Age", Type: models.AnswerTypeNumber},
			4:  {ID: 4, Title: "Visit date", Type: models.AnswerTypeDate},
			11: {ID: 11, Title: "Location", Type: models.AnswerTypeGeolocation},
		},
	}

	schema, err := Build(context.Background(), src)
	require.NoError(t, err)
	props := properties(t, schema)

	assert.Equal(t, map[string]interface{}{"type": "long"}, props["userResponses.3.Age"])
	assert.Equal(t, map[string]interface{}{
		"type":   "date",
		"format": "yyyy-MM-dd HH:mm:ss||yyyy-MM-dd||epoch_millis",
	}, props["userResponses.4.Visit date"])
	assert.Equal(t, map[string]interface{}{"type": "geo_point"}, props["userResponses.11.Location.geopoint"])
}

func TestBuildLeavesTextToDynamicMapping(t *testing.T) {
	src := &stubSource{
		forms:     []models.Form{{ID: 1}},
		indexable: map[int][]int{1: {7}},
		questions: map[int]models.Question{
			7: {ID: 7, Title: "City", Type: models.AnswerTypeText},
		},
	}

	schema, err := Build(context.Background(), src)
	require.NoError(t, err)
	props := properties(t, schema)

	assert.NotContains(t, props, "userResponses.7.City")
}

func TestBuildAlwaysMapsTimestamp(t *testing.T) {
	schema, err := Build(context.Background(), &stubSource{})
	require.NoError(t, err)
	props := properties(t, schema)

	assert.Equal(t, map[string]interface{}{
		"type":   "date",
		"format": "epoch_millis",
	}, props["timestamp"])
}

func TestBuildCoversEveryForm(t *testing.T) {
	src := &stubSource{
		forms:     []models.Form{{ID: 1}, {ID: 2}},
		indexable: map[int][]int{1: {3}, 2: {4}},
		questions: map[int]models.Question{
			3: {ID: 3, Title: "Age", Type: models.AnswerTypeNumber},
			4: {ID: 4, Title: "Count", Type: models.AnswerTypeNumber},
		},
	}

	schema, err := Build(context.Background(), src)
	require.NoError(t, err)
	props := properties(t, schema)

	assert.Contains(t, props, "userResponses.3.Age")
	assert.Contains(t, props, "userResponses.4.Count")
}

func TestBuildPropagatesSourceError(t *testing.T) {
	_, err := Build(context.Background(), &stubSource{err: errors.New("db down")})
	assert.Error(t, err)
}
