package ingestion

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	httperr "github.com/offlinekit/eventcore/internal/core/errors"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPublishFailed  = "Failed to publish event"
)

// PublishHandler handles HTTP POST requests for event publication.
// The response carries the dedup verdict: 202 for an accepted append,
// 200 with the suppression reason for a duplicate.
func (s *Service) PublishHandler(c *gin.Context) {
	evt, payloadSize, ok := s.parseEvent(c)
	if !ok {
		return
	}

	if err := evt.Validate(); err != nil {
		slog.Warn("Envelope validation failed", "error", err, "event_id", evt.ID)
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpBadRequestError,
			Message:   err.Error(),
		})
		return
	}

	slog.Info("Received Event",
		"event_id", evt.ID,
		"pattern", evt.Pattern,
		"source", evt.Source,
		"payload_size", payloadSize)

	result, err := s.log.Publish(c.Request.Context(), evt)
	if err != nil {
		slog.Error("Failed to publish event", "error", err, "event_id", evt.ID)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgPublishFailed,
		})
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{
			"status": "duplicate",
			"reason": result.Reason,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// parseEvent reads the raw request body and binds it into an Event.
// Writes the error response itself and returns ok=false on failure.
func (s *Service) parseEvent(c *gin.Context) (*v1.Event, int, bool) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgReadBodyFailed,
		})
		return nil, 0, false
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		c.JSON(http.StatusRequestEntityTooLarge, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Request body exceeds maximum allowed size",
			Details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		})
		return nil, len(bodyBytes), false
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var evt v1.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   msgInvalidJSON,
		})
		return nil, len(bodyBytes), false
	}

	return &evt, len(bodyBytes), true
}
