// Package mapping builds the index mapping schema from the configured
// indexable questions of every form.
package mapping

import (
	"context"
	"fmt"

	"forms-indexer/internal/indexer/extractor"
	"forms-indexer/internal/models"
)

// Source is the slice of the form store the builder needs.
type Source interface {
	ListForms(ctx context.Context) ([]models.Form, error)
	GetIndexableQuestionIDs(ctx context.Context, formID int) ([]int, error)
	GetQuestionMetadata(ctx context.Context, ids []int) ([]models.Question, error)
}

// answerDateFormat accepts the formats form answers are stored in.
const answerDateFormat = "yyyy-MM-dd HH:mm:ss||yyyy-MM-dd||epoch_millis"

// userResponsesPrefix nests question fields under the flattened answer map.
const userResponsesPrefix = "userResponses."

// Build iterates every form's indexable questions and maps their answer
// types to index field types. Text answers rely on dynamic mapping; only
// types needing an explicit field type (date, numeric, geopoint) are
// emitted, plus the fixed timestamp field.
func Build(ctx context.Context, src Source) (map[string]interface{}, error) {
	properties := map[string]interface{}{
		"timestamp": map[string]interface{}{
			"type":   "date",
			"format": "epoch_millis",
		},
	}

	forms, err := src.ListForms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}

	for _, form := range forms {
		questionIDs, err := src.GetIndexableQuestionIDs(ctx, form.ID)
		if err != nil {
			return nil, fmt.Errorf("indexable questions of form %d: %w", form.ID, err)
		}
		questions, err := src.GetQuestionMetadata(ctx, questionIDs)
		if err != nil {
			return nil, fmt.Errorf("question metadata of form %d: %w", form.ID, err)
		}

		for _, q := range questions {
			key := userResponsesPrefix + extractor.Key(q)
			switch q.Type {
			case models.AnswerTypeDate:
				properties[key] = map[string]interface{}{
					"type":   "date",
					"format": answerDateFormat,
				}
			case models.AnswerTypeNumber:
				properties[key] = map[string]interface{}{
					"type": "long",
				}
			case models.AnswerTypeGeolocation:
				properties[key+".geopoint"] = map[string]interface{}{
					"type": "geo_point",
				}
			}
		}
	}

	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": properties,
		},
	}, nil
}
