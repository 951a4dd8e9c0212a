package extractor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/models"
)

type stubFieldCodes struct {
	codes map[int]string
	err   error
	calls int
	mu    sync.Mutex
}

func (s *stubFieldCodes) GetFieldCodes(ctx context.Context) (map[int]string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.codes, s.err
}

func newTestExtractor(codes map[int]string) *Extractor {
	cache := NewFieldCodeCache(&stubFieldCodes{codes: codes})
	return New(cache, logger.NewNoOpLogger())
}

func TestFlattenTextAnswer(t *testing.T) {
	ex := newTestExtractor(nil)

	questions := map[int]models.Question{
		7: {ID: 7, Title: "City", Type: models.AnswerTypeText},
	}
	answers := []models.Answer{
		{QuestionID: 7, ResponseID: 1, Value: "Paris"},
	}

	got := ex.Flatten(context.Background(), questions, []int{7}, answers)

	assert.Equal(t, map[string]string{"7.City": "Paris"}, got.Single)
	assert.Empty(t, got.Multi)
}

func TestFlattenLastValueWinsForPlainTypes(t *testing.T) {
	ex := newTestExtractor(nil)

	questions := map[int]models.Question{
		3: {ID: 3, Title: "Age", Type: models.AnswerTypeNumber},
	}
	answers := []models.Answer{
		{QuestionID: 3, ResponseID: 1, Value: "41"},
		{QuestionID: 3, ResponseID: 1, Value: "42"},
	}

	got := ex.Flatten(context.Background(), questions, []int{3}, answers)

	assert.Equal(t, "42", got.Single["3.Age"])
}

func TestFlattenCheckboxKeepsCollectedOrder(t *testing.T) {
	ex := newTestExtractor(nil)

	questions := map[int]models.Question{
		5: {ID: 5, Title: "Topics", Type: models.AnswerTypeCheckbox},
	}
	answers := []models.Answer{
		{QuestionID: 5, ResponseID: 1, Value: "roads"},
		{QuestionID: 5, ResponseID: 1, Value: "parks"},
		{QuestionID: 5, ResponseID: 1, Value: "lighting"},
	}

	got := ex.Flatten(context.Background(), questions, []int{5}, answers)

	assert.Equal(t, []string{"roads", "parks", "lighting"}, got.Multi["5.Topics"])
	assert.Empty(t, got.Single)
}

func TestFlattenSelectOrderSortsBySortOrder(t *testing.T) {
	ex := newTestExtractor(nil)

	questions := map[int]models.Question{
		9: {ID: 9, Title: "Priorities", Type: models.AnswerTypeSelectOrder},
	}
	answers := []models.Answer{
		{QuestionID: 9, ResponseID: 1, Value: "third", SortOrder: 3},
		{QuestionID: 9, ResponseID: 1, Value: "first", SortOrder: 1},
		{QuestionID: 9, ResponseID: 1, Value: "second", SortOrder: 2},
	}

	got := ex.Flatten(context.Background(), questions, []int{9}, answers)

	assert.Equal(t, []string{"first", "second", "third"}, got.Multi["9.Priorities"])
}

func TestFlattenGeolocationDerivesGeopoint(t *testing.T) {
	ex := newTestExtractor(map[int]string{
		101: models.FieldCodeX,
		102: models.FieldCodeY,
		103: "address",
	})

	questions := map[int]models.Question{
		11: {ID: 11, Title: "Location", Type: models.AnswerTypeGeolocation},
	}
	answers := []models.Answer{
		{QuestionID: 11, ResponseID: 1, Value: "648389.8", FieldID: 101},
		{QuestionID: 11, ResponseID: 1, Value: "6862020.9", FieldID: 102},
		{QuestionID: 11, ResponseID: 1, Value: "1 rue de Rivoli", FieldID: 103},
	}

	got := ex.Flatten(context.Background(), questions, []int{11}, answers)

	assert.Equal(t, "648389.8", got.Single["11.Location.X"])
	assert.Equal(t, "6862020.9", got.Single["11.Location.Y"])
	assert.Equal(t, "1 rue de Rivoli", got.Single["11.Location.address"])

	geopoint, ok := got.Single["11.Location.geopoint"]
	require.True(t, ok, "geopoint should be derived when both coordinates are numeric")

	parts := strings.Split(geopoint, ", ")
	require.Len(t, parts, 2)
	lat, err := strconv.ParseFloat(parts[0], 64)
	require.NoError(t, err)
	lon, err := strconv.ParseFloat(parts[1], 64)
	require.NoError(t, err)
	assert.InDelta(t, 48.85, lat, 0.1)
	assert.InDelta(t, 2.30, lon, 0.1)
}

func TestFlattenGeolocationSkipsNonNumericCoordinates(t *testing.T) {
	ex := newTestExtractor(map[int]string{
		101: models.FieldCodeX,
		102: models.FieldCodeY,
	})

	questions := map[int]models.Question{
		11: {ID: 11, Title: "Location", Type: models.AnswerTypeGeolocation},
	}
	answers := []models.Answer{
		{QuestionID: 11, ResponseID: 1, Value: "not-a-number", FieldID: 101},
		{QuestionID: 11, ResponseID: 1, Value: "6862020.9", FieldID: 102},
	}

	got := ex.Flatten(context.Background(), questions, []int{11}, answers)

	// Raw values survive, the derived point does not.
	assert.Equal(t, "not-a-number", got.Single["11.Location.X"])
	assert.NotContains(t, got.Single, "11.Location.geopoint")
}

func TestFlattenGeolocationMissingCoordinate(t *testing.T) {
	ex := newTestExtractor(map[int]string{101: models.FieldCodeX})

	questions := map[int]models.Question{
		11: {ID: 11, Title: "Location", Type: models.AnswerTypeGeolocation},
	}
	answers := []models.Answer{
		{QuestionID: 11, ResponseID: 1, Value: "648389.8", FieldID: 101},
	}

	got := ex.Flatten(context.Background(), questions, []int{11}, answers)

	assert.NotContains(t, got.Single, "11.Location.geopoint")
}

func TestFlattenSkipsQuestionsWithoutAnswers(t *testing.T) {
	ex := newTestExtractor(nil)

	questions := map[int]models.Question{
		7: {ID: 7, Title: "City", Type: models.AnswerTypeText},
		8: {ID: 8, Title: "Street", Type: models.AnswerTypeText},
	}
	answers := []models.Answer{
		{QuestionID: 7, ResponseID: 1, Value: "Paris"},
	}

	got := ex.Flatten(context.Background(), questions, []int{7, 8}, answers)

	assert.Len(t, got.Single, 1)
	assert.NotContains(t, got.Single, "8.Street")
}

func TestFlattenSkipsDeletedQuestions(t *testing.T) {
	ex := newTestExtractor(nil)

	// Selector 99 points at a question that no longer exists.
	got := ex.Flatten(context.Background(), map[int]models.Question{}, []int{99}, []models.Answer{
		{QuestionID: 99, ResponseID: 1, Value: "orphan"},
	})

	assert.Empty(t, got.Single)
	assert.Empty(t, got.Multi)
}

func TestFlattenIgnoresNonIndexableQuestions(t *testing.T) {
	ex := newTestExtractor(nil)

	questions := map[int]models.Question{
		7: {ID: 7, Title: "City", Type: models.AnswerTypeText},
	}
	answers := []models.Answer{
		{QuestionID: 7, ResponseID: 1, Value: "Paris"},
		{QuestionID: 12, ResponseID: 1, Value: "secret"},
	}

	got := ex.Flatten(context.Background(), questions, []int{7}, answers)

	assert.Len(t, got.Single, 1)
}

func TestKeyTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("x", 300)
	key := Key(models.Question{ID: 4, Title: long})

	assert.Equal(t, "4."+strings.Repeat("x", 100), key)
}

func TestCloneIsDeep(t *testing.T) {
	original := Flattened{
		Single: map[string]string{"a": "1"},
		Multi:  map[string][]string{"b": {"x", "y"}},
	}

	copied := original.Clone()
	copied.Single["a"] = "changed"
	copied.Multi["b"][0] = "changed"

	assert.Equal(t, "1", original.Single["a"])
	assert.Equal(t, "x", original.Multi["b"][0])
}

func TestFieldCodeCacheLoadsOnce(t *testing.T) {
	source := &stubFieldCodes{codes: map[int]string{1: "X"}}
	cache := NewFieldCodeCache(source)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Lookup(context.Background(), 1)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent lookups did not finish")
	}

	for _, r := range results {
		assert.Equal(t, "X", r)
	}
	assert.Equal(t, 1, source.calls)
}

func TestFieldCodeCacheFallsBackOnError(t *testing.T) {
	cache := NewFieldCodeCache(&stubFieldCodes{err: errors.New("db down")})

	assert.Equal(t, "42", cache.Lookup(context.Background(), 42))
}

func TestFieldCodeCacheFallsBackOnUnknownID(t *testing.T) {
	cache := NewFieldCodeCache(&stubFieldCodes{codes: map[int]string{1: "X"}})

	assert.Equal(t, "7", cache.Lookup(context.Background(), 7))
}
