package processor

//go:generate go run go.uber.org/mock/mockgen@latest -source=processor.go -destination=mocks_test.go -package=processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"message-bridge/internal/messages"
	"message-bridge/internal/metrics"
	"message-bridge/internal/observability"
	"message-bridge/internal/store"
)

// MessageStore defines the database operations required by MessageProcessor
type MessageStore interface {
	CreateMessage(ctx context.Context, params store.CreateMessageParams) (int64, error)
	UpdateMessage(ctx context.Context, params store.UpdateMessageParams) (int64, error)
	DeleteMessage(ctx context.Context, messageID int32) (int64, error)
}

var (
	ErrPersistence    = errors.New("persistence failure")
	ErrMissingPayload = errors.New("envelope has no payload")
	ErrUnknownAction  = errors.New("unknown action")
)

// Result is the outcome of applying one envelope to the store. A failed Result is
// reported to the caller but never stops the consumer from acknowledging the record.
type Result struct {
	Action       messages.Action
	MessageID    int32
	RowsAffected int64
	Err          error
}

// OK reports whether the statement ran.
func (r Result) OK() bool {
	return r.Err == nil
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s message_id=%d failed: %v", r.Action, r.MessageID, r.Err)
	}
	return fmt.Sprintf("%s message_id=%d rows_affected=%d", r.Action, r.MessageID, r.RowsAffected)
}

type MessageProcessor struct {
	store   MessageStore
	logger  *observability.Logger
	metrics *metrics.Metrics
}

func New(store MessageStore, logger *observability.Logger, m *metrics.Metrics) MessageProcessor {
	return MessageProcessor{
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// Apply dispatches the envelope to the statement for its action.
func (p *MessageProcessor) Apply(ctx context.Context, envelope messages.Envelope) Result {
	switch envelope.Action {
	case messages.ActionCreate:
		return p.ApplyCreate(ctx, envelope.MessageID, envelope.Data)
	case messages.ActionUpdate:
		return p.ApplyUpdate(ctx, envelope.MessageID, envelope.Data)
	case messages.ActionDelete:
		return p.ApplyDelete(ctx, envelope.MessageID)
	default:
		return p.finish(ctx, time.Now(), Result{
			Action:    envelope.Action,
			MessageID: envelope.MessageID,
			Err:       fmt.Errorf("%w: %w: %q", ErrPersistence, ErrUnknownAction, envelope.Action),
		})
	}
}

// ApplyCreate inserts a new row. A row that already exists is left as is.
func (p *MessageProcessor) ApplyCreate(ctx context.Context, messageID int32, payload *messages.Payload) Result {
	start := time.Now()
	result := Result{Action: messages.ActionCreate, MessageID: messageID}
	if payload == nil {
		result.Err = fmt.Errorf("%w: %w", ErrPersistence, ErrMissingPayload)
		return p.finish(ctx, start, result)
	}

	rows, err := p.store.CreateMessage(ctx, store.CreateMessageParams{
		MessageID: messageID,
		Name:      payload.Name,
		Message:   payload.Message,
	})
	result.RowsAffected = rows
	if err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return p.finish(ctx, start, result)
}

// ApplyUpdate overwrites name and message of an existing row. No row matching is not a failure.
func (p *MessageProcessor) ApplyUpdate(ctx context.Context, messageID int32, payload *messages.Payload) Result {
	start := time.Now()
	result := Result{Action: messages.ActionUpdate, MessageID: messageID}
	if payload == nil {
		result.Err = fmt.Errorf("%w: %w", ErrPersistence, ErrMissingPayload)
		return p.finish(ctx, start, result)
	}

	rows, err := p.store.UpdateMessage(ctx, store.UpdateMessageParams{
		MessageID: messageID,
		Name:      payload.Name,
		Message:   payload.Message,
	})
	result.RowsAffected = rows
	if err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return p.finish(ctx, start, result)
}

// ApplyDelete removes the row if present.
func (p *MessageProcessor) ApplyDelete(ctx context.Context, messageID int32) Result {
	start := time.Now()
	result := Result{Action: messages.ActionDelete, MessageID: messageID}

	rows, err := p.store.DeleteMessage(ctx, messageID)
	result.RowsAffected = rows
	if err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return p.finish(ctx, start, result)
}

func (p *MessageProcessor) finish(ctx context.Context, start time.Time, result Result) Result {
	action := string(result.Action)
	p.metrics.ApplyDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "action", Value: action},
		observability.Field{Key: "message_id", Value: result.MessageID},
		observability.Field{Key: "rows_affected", Value: result.RowsAffected},
	)

	switch {
	case result.Err != nil:
		p.metrics.PersistenceResults.WithLabelValues(action, metrics.ResultError).Inc()
		p.logger.Error(ctx, "failed to apply message", result.Err)
	case result.RowsAffected == 0:
		p.metrics.PersistenceResults.WithLabelValues(action, metrics.ResultNoop).Inc()
		p.logger.Info(ctx, "message applied without changes")
	default:
		p.metrics.PersistenceResults.WithLabelValues(action, metrics.ResultOK).Inc()
		p.logger.Info(ctx, "message applied")
	}
	return result
}
