// Package driver runs the extraction pipeline: full re-index runs over
// every form and incremental re-index of single responses.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "forms-indexer/internal/common/errors"
	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/common/metrics"
	"forms-indexer/internal/common/observability"
	"forms-indexer/internal/indexer/assembler"
	"forms-indexer/internal/indexer/extractor"
	"forms-indexer/internal/indexer/history"
	"forms-indexer/internal/models"
)

// FormSource is the slice of the form store the driver needs.
type FormSource interface {
	ListForms(ctx context.Context) ([]models.Form, error)
	GetForm(ctx context.Context, formID int) (*models.Form, error)
	ListNonDraftResponses(ctx context.Context, formID int) ([]models.FormResponse, error)
	GetResponse(ctx context.Context, responseID int) (*models.FormResponse, error)
	GetAnswersByResponseIDs(ctx context.Context, ids []int) ([]models.Answer, error)
	GetIndexableQuestionIDs(ctx context.Context, formID int) ([]int, error)
	GetQuestionMetadata(ctx context.Context, ids []int) ([]models.Question, error)
}

// HistoryResolver resolves and enriches workflow history.
type HistoryResolver interface {
	ResolveBatch(ctx context.Context, workflowID int, responses []models.FormResponse) (map[int][]history.ResolvedEvent, error)
	ResolveOne(ctx context.Context, workflowID int, response models.FormResponse) ([]history.ResolvedEvent, error)
}

// IndexClient writes documents to the search index.
type IndexClient interface {
	BulkSubmit(ctx context.Context, docs []models.FormResponseDocument) error
	DeleteResponse(ctx context.Context, currentDocID string, responseID int) error
}

// Driver wires the extractor, the history resolver and the assembler over
// the stores and the index client.
type Driver struct {
	forms     FormSource
	resolver  HistoryResolver
	extractor *extractor.Extractor
	assembler *assembler.Assembler
	index     IndexClient
	obs       *observability.Observability
	workers   int
	logger    logger.Logger
}

func New(forms FormSource, resolver HistoryResolver, ex *extractor.Extractor, as *assembler.Assembler, index IndexClient, obs *observability.Observability, workers int, log logger.Logger) *Driver {
	if workers <= 0 {
		workers = 1
	}
	return &Driver{
		forms:     forms,
		resolver:  resolver,
		extractor: ex,
		assembler: as,
		index:     index,
		obs:       obs,
		workers:   workers,
		logger:    log.WithFields(map[string]interface{}{"component": "driver"}),
	}
}

// FullReindex walks every form and re-submits the full document set of all
// non-draft responses. A form that fails is logged and skipped; siblings
// are unaffected.
func (d *Driver) FullReindex(ctx context.Context) error {
	runID := uuid.NewString()
	log := d.logger.WithFields(map[string]interface{}{"runId": runID})

	ctx, span := d.obs.StartSpan(ctx, "full-reindex")
	defer span.End()

	start := time.Now()
	log.Info("full re-index started", map[string]interface{}{})

	forms, err := d.forms.ListForms(ctx)
	if err != nil {
		metrics.ReindexDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("list forms: %w", err)
	}

	var failed int
	for _, form := range forms {
		if err := d.reindexForm(ctx, form, log); err != nil {
			failed++
			log.WithError(err).Error("form re-index failed", map[string]interface{}{
				"formId": form.ID,
			})
		}
	}

	status := "success"
	if failed > 0 {
		status = "partial"
	}
	metrics.ReindexDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	log.Info("full re-index finished", map[string]interface{}{
		"forms":       len(forms),
		"failedForms": failed,
		"duration":    time.Since(start).String(),
	})

	if failed > 0 {
		return fmt.Errorf("%d of %d forms failed to re-index", failed, len(forms))
	}
	return nil
}

// reindexForm extracts and submits the documents of every non-draft
// response of one form, fanning out per response over the worker pool.
func (d *Driver) reindexForm(ctx context.Context, form models.Form, log logger.Logger) error {
	responses, err := d.forms.ListNonDraftResponses(ctx, form.ID)
	if err != nil {
		return fmt.Errorf("list responses: %w", err)
	}
	if len(responses) == 0 {
		return nil
	}

	questions, indexable, err := d.questionMetadata(ctx, form.ID)
	if err != nil {
		return err
	}

	ids := make([]int, 0, len(responses))
	for _, r := range responses {
		ids = append(ids, r.ID)
	}
	answers, err := d.forms.GetAnswersByResponseIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch answers: %w", err)
	}
	answersByResponse := make(map[int][]models.Answer)
	for _, a := range answers {
		answersByResponse[a.ResponseID] = append(answersByResponse[a.ResponseID], a)
	}

	events, err := d.resolver.ResolveBatch(ctx, form.WorkflowID, responses)
	if err != nil {
		return fmt.Errorf("resolve history: %w", err)
	}

	var (
		mu   sync.Mutex
		docs []models.FormResponseDocument
	)
	jobs := make(chan models.FormResponse)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for response := range jobs {
				if response.Draft {
					continue
				}
				flattened := d.extractor.Flatten(ctx, questions, indexable, answersByResponse[response.ID])
				built := d.assembler.Build(form, response, flattened, events[response.ID])
				mu.Lock()
				docs = append(docs, built...)
				mu.Unlock()
			}
		}()
	}
	for _, response := range responses {
		jobs <- response
	}
	close(jobs)
	wg.Wait()

	if err := d.index.BulkSubmit(ctx, docs); err != nil {
		return fmt.Errorf("submit documents of form %d: %w", form.ID, err)
	}
	log.Info("form re-indexed", map[string]interface{}{
		"formId":    form.ID,
		"responses": len(responses),
		"documents": len(docs),
	})
	return nil
}

// IndexResponse re-extracts one form response's full document set and
// resubmits it. Unknown resource ids are reported as non-retryable
// not-found errors; draft responses produce nothing.
func (d *Driver) IndexResponse(ctx context.Context, responseID int) error {
	response, err := d.forms.GetResponse(ctx, responseID)
	if err != nil {
		return fmt.Errorf("fetch response %d: %w", responseID, err)
	}
	if response == nil {
		return apperrors.NewResourceNotFoundError(fmt.Sprint(responseID))
	}
	if response.Draft {
		return nil
	}

	form, err := d.forms.GetForm(ctx, response.FormID)
	if err != nil {
		return fmt.Errorf("fetch form %d: %w", response.FormID, err)
	}
	if form == nil {
		return apperrors.NewResourceNotFoundError(fmt.Sprintf("form %d", response.FormID))
	}

	questions, indexable, err := d.questionMetadata(ctx, form.ID)
	if err != nil {
		return err
	}
	answers, err := d.forms.GetAnswersByResponseIDs(ctx, []int{responseID})
	if err != nil {
		return fmt.Errorf("fetch answers: %w", err)
	}
	events, err := d.resolver.ResolveOne(ctx, form.WorkflowID, *response)
	if err != nil {
		return fmt.Errorf("resolve history: %w", err)
	}

	flattened := d.extractor.Flatten(ctx, questions, indexable, answers)
	docs := d.assembler.Build(*form, *response, flattened, events)
	if err := d.index.BulkSubmit(ctx, docs); err != nil {
		return fmt.Errorf("submit documents of response %d: %w", responseID, err)
	}
	return nil
}

// DeleteResponseDocuments removes the full document set of one response.
func (d *Driver) DeleteResponseDocuments(ctx context.Context, responseID int) error {
	return d.index.DeleteResponse(ctx, d.assembler.CurrentDocumentID(responseID), responseID)
}

// IsNotFound reports whether err is the non-retryable resource-not-found
// case, which drops the task instead of logging it as a failure.
func IsNotFound(err error) bool {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == apperrors.ErrCodeResourceNotFound
	}
	return false
}

func (d *Driver) questionMetadata(ctx context.Context, formID int) (map[int]models.Question, []int, error) {
	indexable, err := d.forms.GetIndexableQuestionIDs(ctx, formID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch indexable questions: %w", err)
	}
	list, err := d.forms.GetQuestionMetadata(ctx, indexable)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch question metadata: %w", err)
	}
	questions := make(map[int]models.Question, len(list))
	for _, q := range list {
		questions[q.ID] = q
	}
	return questions, indexable, nil
}
