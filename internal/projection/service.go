// Package projection is the read and maintenance surface of the bus:
// filtered queries, snapshot + replay reconstruction, settlement
// marking, settled-history cleanup, and diagnostics.
package projection

import (
	"github.com/gin-gonic/gin"

	"github.com/offlinekit/eventcore/internal/eventlog"
)

type Service struct {
	log *eventlog.Service
}

func NewService(log *eventlog.Service) *Service {
	if log == nil {
		panic("projection: event log service must not be nil")
	}
	return &Service{log: log}
}

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/events", s.HandleGetEvents)
	r.POST("/v1/events/query", s.HandleQuery)
	r.POST("/v1/events/:id/processed", s.HandleMarkProcessed)
	r.POST("/v1/events/:id/synced", s.HandleMarkSynced)
	r.POST("/v1/events/:id/failed", s.HandleMarkFailed)

	r.POST("/v1/snapshots", s.HandleCreateSnapshot)
	r.GET("/v1/replay/:pattern", s.HandleReplay)

	r.POST("/v1/maintenance/cleanup", s.HandleCleanup)
	r.GET("/v1/stats", s.HandleStats)
}
