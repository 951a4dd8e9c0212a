// Package extractor flattens the answers of one form response into the
// key-value maps stored in the search documents.
package extractor

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/indexer/lambert"
	"forms-indexer/internal/models"
)

// maxTitleLength bounds flattened key size.
const maxTitleLength = 100

// Flattened holds the extracted answers of one form response: scalar values
// keyed "{questionId}.{title}" and multi-valued lists for checkbox/ordered
// selections.
type Flattened struct {
	Single map[string]string
	Multi  map[string][]string
}

// Clone deep-copies both maps. History documents carry their own copy so
// later mutation of one document never leaks into another.
func (f Flattened) Clone() Flattened {
	out := Flattened{
		Single: make(map[string]string, len(f.Single)),
		Multi:  make(map[string][]string, len(f.Multi)),
	}
	for k, v := range f.Single {
		out.Single[k] = v
	}
	for k, vs := range f.Multi {
		out.Multi[k] = append([]string(nil), vs...)
	}
	return out
}

// Extractor turns answer rows into a Flattened map, dispatching on the
// question's answer-type tag.
type Extractor struct {
	fieldCodes *FieldCodeCache
	logger     logger.Logger
}

func New(fieldCodes *FieldCodeCache, log logger.Logger) *Extractor {
	return &Extractor{
		fieldCodes: fieldCodes,
		logger:     log.WithFields(map[string]interface{}{"component": "extractor"}),
	}
}

// Flatten extracts the answers of one form response restricted to the
// configured indexable questions. A question with zero answers contributes
// no key.
func (e *Extractor) Flatten(ctx context.Context, questions map[int]models.Question, indexable []int, answers []models.Answer) Flattened {
	out := Flattened{
		Single: make(map[string]string),
		Multi:  make(map[string][]string),
	}

	byQuestion := make(map[int][]models.Answer)
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
	}

	for _, questionID := range indexable {
		question, ok := questions[questionID]
		if !ok {
			// Selector points at a deleted question; skip the field.
			continue
		}
		rows := byQuestion[questionID]
		if len(rows) == 0 {
			continue
		}

		key := Key(question)

		switch question.Type {
		case models.AnswerTypeCheckbox:
			// Collected order.
			values := make([]string, 0, len(rows))
			for _, a := range rows {
				values = append(values, a.Value)
			}
			out.Multi[key] = values

		case models.AnswerTypeSelectOrder:
			sorted := append([]models.Answer(nil), rows...)
			sort.SliceStable(sorted, func(i, j int) bool {
				return sorted[i].SortOrder < sorted[j].SortOrder
			})
			values := make([]string, 0, len(sorted))
			for _, a := range sorted {
				values = append(values, a.Value)
			}
			out.Multi[key] = values

		case models.AnswerTypeGeolocation:
			e.flattenGeolocation(ctx, key, rows, &out)

		default:
			// Plain types: a question normally has exactly one answer;
			// when it has more, the last value wins.
			for _, a := range rows {
				out.Single[key] = a.Value
			}
		}
	}

	return out
}

// flattenGeolocation stores the raw sub-answers keyed by field code and
// derives the "lat, lon" geopoint when both coordinates parse as numbers.
func (e *Extractor) flattenGeolocation(ctx context.Context, key string, rows []models.Answer, out *Flattened) {
	var xRaw, yRaw string
	var haveX, haveY bool

	for _, a := range rows {
		code := e.fieldCodes.Lookup(ctx, a.FieldID)
		out.Single[key+"."+code] = a.Value
		switch code {
		case models.FieldCodeX:
			xRaw, haveX = a.Value, true
		case models.FieldCodeY:
			yRaw, haveY = a.Value, true
		}
	}

	if !haveX || !haveY {
		return
	}
	x, errX := strconv.ParseFloat(xRaw, 64)
	y, errY := strconv.ParseFloat(yRaw, 64)
	if errX != nil || errY != nil {
		// Non-numeric coordinates degrade the document, never fail it.
		e.logger.Debug("skipping geopoint, non-numeric coordinates", map[string]interface{}{
			"key": key,
		})
		return
	}

	geopoint, err := lambert.ToLatLonString(x, y)
	if err != nil {
		e.logger.Warn("coordinate conversion failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	out.Single[key+".geopoint"] = geopoint
}

// Key builds the "{questionId}.{title}" key of a question, title truncated
// to bound key size. The mapping builder uses the same scheme.
func Key(q models.Question) string {
	title := q.Title
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return fmt.Sprintf("%d.%s", q.ID, title)
}
