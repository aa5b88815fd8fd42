package ingestion

import (
	"github.com/gin-gonic/gin"

	"github.com/offlinekit/eventcore/internal/eventlog"
)

// Service is the HTTP publish surface of the bus: the dispatch core
// (and diagnostics tooling) submits events here and gets the dedup
// verdict back.
type Service struct {
	log              *eventlog.Service
	maxBodySizeBytes int
}

func NewService(log *eventlog.Service, maxBodySizeMB int) *Service {
	if log == nil {
		panic("ingestion: event log service must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		log:              log,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.PublishHandler)
}
