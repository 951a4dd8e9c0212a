// Package listener consumes form-response CRUD events from a Redis pub/sub
// channel and feeds them to the incremental indexing queue.
package listener

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/xeipuuv/gojsonschema"

	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/indexer/driver"
	"forms-indexer/internal/models"
)

// eventSchema validates the wire shape of resource events before any field
// is trusted.
const eventSchema = `{
	"type": "object",
	"required": ["idResource", "resourceType", "eventType"],
	"properties": {
		"idResource":   { "type": "string", "pattern": "^[0-9]+$" },
		"resourceType": { "type": "string" },
		"eventType":    { "type": "string", "enum": ["create", "modify", "delete"] }
	}
}`

// Event is one resource CRUD notification.
type Event struct {
	IDResource   string `json:"idResource"`
	ResourceType string `json:"resourceType"`
	EventType    string `json:"eventType"`
}

// TaskSink receives the tasks derived from accepted events.
type TaskSink interface {
	Enqueue(task driver.Task)
}

// Listener subscribes to the events channel and enqueues matching events.
// Events for other resource types are ignored; malformed payloads are
// logged and dropped.
type Listener struct {
	rdb     *redis.Client
	channel string
	queue   TaskSink
	schema  *gojsonschema.Schema
	logger  logger.Logger
}

func New(rdb *redis.Client, channel string, queue TaskSink, log logger.Logger) (*Listener, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
	if err != nil {
		return nil, err
	}
	return &Listener{
		rdb:     rdb,
		channel: channel,
		queue:   queue,
		schema:  schema,
		logger:  log.WithFields(map[string]interface{}{"component": "listener", "channel": channel}),
	}, nil
}

// Run consumes events until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	pubsub := l.rdb.Subscribe(ctx, l.channel)
	defer pubsub.Close()

	l.logger.Info("listening for resource events", map[string]interface{}{})

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(msg.Payload)
		}
	}
}

func (l *Listener) handle(payload string) {
	result, err := l.schema.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil || !result.Valid() {
		l.logger.Warn("dropping malformed resource event", map[string]interface{}{
			"payload": payload,
		})
		return
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		l.logger.WithError(err).Warn("dropping undecodable resource event", map[string]interface{}{})
		return
	}

	if event.ResourceType != models.ResourceTypeFormResponse {
		return
	}

	id, err := strconv.Atoi(event.IDResource)
	if err != nil {
		l.logger.Warn("dropping event with non-numeric resource id", map[string]interface{}{
			"idResource": event.IDResource,
		})
		return
	}

	var kind driver.TaskKind
	switch event.EventType {
	case "create":
		kind = driver.TaskCreate
	case "modify":
		kind = driver.TaskModify
	case "delete":
		kind = driver.TaskDelete
	}

	l.queue.Enqueue(driver.Task{ResourceID: id, Kind: kind})
}
