// Package elastic wraps the search index: mapping setup, bulk document
// submission and per-response deletion.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"forms-indexer/internal/common/config"
	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/common/metrics"
	"forms-indexer/internal/models"
)

var (
	ErrIndexWriteFailed  = errors.New("INDEX_WRITE_FAILED")
	ErrIndexSetupFailed  = errors.New("INDEX_SETUP_FAILED")
	ErrIndexDeleteFailed = errors.New("INDEX_DELETE_FAILED")
)

// Client submits documents to one index. Writes retry with bounded
// exponential backoff; a write that keeps failing surfaces as
// ErrIndexWriteFailed and is handled at the per-resource boundary.
type Client struct {
	es           *elasticsearch.Client
	index        string
	maxAttempts  int
	initialDelay time.Duration
	logger       logger.Logger
}

func New(es *elasticsearch.Client, index string, retry config.RetryConfig, log logger.Logger) *Client {
	maxAttempts := retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := config.GetDuration(retry.InitialDelay)
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Client{
		es:           es,
		index:        index,
		maxAttempts:  maxAttempts,
		initialDelay: delay,
		logger:       log.WithFields(map[string]interface{}{"component": "elastic", "index": index}),
	}
}

// EnsureIndex creates the index with the given mapping schema when it does
// not exist yet.
func (c *Client) EnsureIndex(ctx context.Context, schema map[string]interface{}) error {
	res, err := c.es.Indices.Exists(
		[]string{c.index},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: exists check: %v", ErrIndexSetupFailed, err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	body, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("%w: marshal mapping: %v", ErrIndexSetupFailed, err)
	}

	createRes, err := c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("%w: create: %v", ErrIndexSetupFailed, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("%w: create: %s", ErrIndexSetupFailed, createRes.Status())
	}

	c.logger.Info("index created", map[string]interface{}{})
	return nil
}

// BulkSubmit writes the documents in one bulk request.
func (c *Client) BulkSubmit(ctx context.Context, docs []models.FormResponseDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": c.index,
				"_id":    doc.ID,
			},
		}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("%w: marshal bulk meta: %v", ErrIndexWriteFailed, err)
		}
		docLine, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: marshal document %s: %v", ErrIndexWriteFailed, doc.ID, err)
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	err := c.withRetry(ctx, "bulk", func() error {
		res, err := c.es.Bulk(
			bytes.NewReader(buf.Bytes()),
			c.es.Bulk.WithContext(ctx),
		)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("bulk request failed: %s", res.Status())
		}

		var parsed bulkResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode bulk response: %v", err)
		}
		if parsed.Errors {
			return fmt.Errorf("bulk had item failures: %s", parsed.firstFailure())
		}
		return nil
	})
	if err != nil {
		for _, doc := range docs {
			metrics.DocumentsFailed.WithLabelValues(doc.DocumentType, "INDEX_WRITE_FAILED").Inc()
		}
		return fmt.Errorf("%w: %v", ErrIndexWriteFailed, err)
	}

	for _, doc := range docs {
		metrics.DocumentsIndexed.WithLabelValues(doc.DocumentType).Inc()
	}
	return nil
}

// DeleteResponse removes a response's current-state document by id and its
// history documents by query.
func (c *Client) DeleteResponse(ctx context.Context, currentDocID string, responseID int) error {
	err := c.withRetry(ctx, "delete", func() error {
		res, err := c.es.Delete(
			c.index,
			currentDocID,
			c.es.Delete.WithContext(ctx),
		)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		// 404 means the document was never indexed; nothing to do.
		if res.IsError() && res.StatusCode != 404 {
			return fmt.Errorf("delete %s: %s", currentDocID, res.Status())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexDeleteFailed, err)
	}

	query := fmt.Sprintf(`{
		"query": {
			"bool": {
				"filter": [
					{ "term": { "formResponseId": %d } },
					{ "term": { "documentType": "%s" } }
				]
			}
		}
	}`, responseID, models.DocumentTypeFormResponseHistory)

	err = c.withRetry(ctx, "delete_by_query", func() error {
		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			strings.NewReader(query),
			c.es.DeleteByQuery.WithContext(ctx),
		)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("delete history of response %d: %s", responseID, res.Status())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexDeleteFailed, err)
	}
	return nil
}

// withRetry runs op with bounded exponential backoff.
func (c *Client) withRetry(ctx context.Context, name string, op func() error) error {
	var err error
	delay := c.initialDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt < c.maxAttempts {
			c.logger.Warn("index operation failed, retrying", map[string]interface{}{
				"operation": name,
				"attempt":   attempt,
				"error":     err.Error(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, c.maxAttempts, err)
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// firstFailure reports the first failed item for the error message.
func (b *bulkResponse) firstFailure() string {
	for _, item := range b.Items {
		for op, detail := range item {
			if detail.Error != nil {
				return fmt.Sprintf("%s status=%d type=%s reason=%s", op, detail.Status, detail.Error.Type, detail.Error.Reason)
			}
		}
	}
	return "unknown item failure"
}
