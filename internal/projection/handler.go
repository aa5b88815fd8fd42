package projection

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/offlinekit/eventcore/internal/core/errors"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

// HandleGetEvents handles GET /v1/events
// Query parameters: pattern, from, to, limit (RFC 3339 times).
func (s *Service) HandleGetEvents(c *gin.Context) {
	var query struct {
		Pattern string    `form:"pattern"`
		From    time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
		To      time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
		Limit   int       `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, "Invalid query parameters", err.Error())
		return
	}

	events, err := s.log.GetEvents(c.Request.Context(), query.Pattern, query.From, query.To, query.Limit)
	if err != nil {
		writeInternal(c, "Failed to read events", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// HandleQuery handles POST /v1/events/query with a storage.QueryOptions body.
func (s *Service) HandleQuery(c *gin.Context) {
	var opts storage.QueryOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		writeBadRequest(c, "Invalid query body", err.Error())
		return
	}

	events, err := s.log.Query(c.Request.Context(), opts)
	if err != nil {
		writeInternal(c, "Failed to query events", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// HandleMarkProcessed handles POST /v1/events/:id/processed.
// A missing id still answers 200: the entry may have rotated out.
func (s *Service) HandleMarkProcessed(c *gin.Context) {
	if err := s.log.MarkProcessed(c.Request.Context(), c.Param("id")); err != nil {
		writeInternal(c, "Failed to mark event processed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleMarkSynced handles POST /v1/events/:id/synced.
func (s *Service) HandleMarkSynced(c *gin.Context) {
	if err := s.log.MarkSynced(c.Request.Context(), c.Param("id")); err != nil {
		writeInternal(c, "Failed to mark event synced", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleMarkFailed handles POST /v1/events/:id/failed with {"error": "..."}.
func (s *Service) HandleMarkFailed(c *gin.Context) {
	var body struct {
		Error string `json:"error"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, "Invalid body", err.Error())
		return
	}

	if err := s.log.MarkFailed(c.Request.Context(), c.Param("id"), body.Error); err != nil {
		writeInternal(c, "Failed to record event failure", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleCreateSnapshot handles POST /v1/snapshots.
func (s *Service) HandleCreateSnapshot(c *gin.Context) {
	var body struct {
		Pattern string                 `json:"pattern" binding:"required"`
		Data    map[string]interface{} `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, "Invalid snapshot body", err.Error())
		return
	}

	snap, err := s.log.CreateSnapshot(c.Request.Context(), body.Pattern, body.Data)
	if err != nil {
		writeInternal(c, "Failed to create snapshot", err)
		return
	}

	c.JSON(http.StatusCreated, snap)
}

// HandleReplay handles GET /v1/replay/:pattern?from=...
// Returns the newest snapshot for the pattern plus the events since.
func (s *Service) HandleReplay(c *gin.Context) {
	var query struct {
		From time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, "Invalid query parameters", err.Error())
		return
	}

	result, err := s.log.Replay(c.Request.Context(), c.Param("pattern"), query.From)
	if err != nil {
		writeInternal(c, "Failed to replay events", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleCleanup handles POST /v1/maintenance/cleanup with {"before": t}.
// Only fully-settled events older than the bound are removed.
func (s *Service) HandleCleanup(c *gin.Context) {
	var body struct {
		Before time.Time `json:"before" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, "Invalid cleanup body", err.Error())
		return
	}

	removed, err := s.log.Cleanup(c.Request.Context(), body.Before)
	if err != nil {
		writeInternal(c, "Failed to clean up events", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// HandleStats handles GET /v1/stats.
func (s *Service) HandleStats(c *gin.Context) {
	stats, err := s.log.Stats(c.Request.Context())
	if err != nil {
		writeInternal(c, "Failed to aggregate stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func writeBadRequest(c *gin.Context, message string, details interface{}) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpBadRequestError,
		Message:   message,
		Details:   details,
	})
}

func writeInternal(c *gin.Context, message string, err error) {
	slog.Error(message, "error", err)
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   message,
	})
}
