package handler

//go:generate go run go.uber.org/mock/mockgen@latest -source=handler.go -destination=mocks_test.go -package=handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"message-bridge/internal/apierrors"
	"message-bridge/internal/messages"
	"message-bridge/internal/messages/producer"
	"message-bridge/internal/observability"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes bounds the size of a POST /send body.
const MaxBodyBytes = 1 << 20

// Sender publishes an envelope to the broker
type Sender interface {
	Send(ctx context.Context, envelope messages.Envelope) (producer.Ack, error)
}

type Handler struct {
	sender Sender
	logger *observability.Logger
}

func New(sender Sender, logger *observability.Logger) Handler {
	return Handler{
		sender: sender,
		logger: logger,
	}
}

// HandleHealthCheck answers the liveness probe at GET /
func (h *Handler) HandleHealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// HandleSendMessage publishes the envelope in the request body and answers once the
// broker has acknowledged it.
func (h *Handler) HandleSendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.PayloadTooLarge(c, fmt.Sprintf("Request body must not exceed %d bytes", maxBytesErr.Limit))
			return
		}
		apierrors.BadRequest(c, apierrors.CodeMalformedEnvelope, "Failed to read request body")
		return
	}

	envelope, err := messages.Decode(body)
	if err != nil {
		apierrors.MalformedEnvelope(c, err)
		return
	}

	ack, err := h.sender.Send(ctx, envelope)
	if err != nil {
		h.handleError(c, err)
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "record_id", Value: ack.RecordID},
		observability.Field{Key: "partition_key", Value: ack.Key},
	)
	h.logger.Info(ctx, fmt.Sprintf("message sent: %s", envelope))

	c.String(http.StatusOK, "Message sent!")
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messages.ErrMalformedEnvelope):
		apierrors.MalformedEnvelope(c, err)
	case errors.Is(err, messages.ErrEncodingFailure):
		apierrors.ServerError(c, apierrors.CodeEncodingFailed, "Failed to encode message", err)
	case errors.Is(err, producer.ErrPublishTimeout):
		apierrors.GatewayTimeout(c, apierrors.CodePublishTimeout, "Timed out waiting for the broker", err)
	case errors.Is(err, producer.ErrPublishCancelled):
		apierrors.ServiceUnavailable(c, apierrors.CodePublishCancelled, "Request was cancelled before the message was sent", err)
	case errors.Is(err, producer.ErrPublish):
		apierrors.ServerError(c, apierrors.CodePublishFailed, "Failed to send message", err)
	default:
		apierrors.InternalError(c, err)
	}
}
