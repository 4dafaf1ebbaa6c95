package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/bookgraph/internal/queue"
	"github.com/OFFIS-RIT/bookgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// RebuildGraphHandler queues a graph rebuild. The worker picks it up; the
// response only confirms the job was queued.
func RebuildGraphHandler(c echo.Context) error {
	type rebuildBody struct {
		Force     bool `json:"force"`
		Summarize bool `json:"summarize"`
	}

	type rebuildResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(rebuildBody)
	if c.Request().ContentLength != 0 {
		if err := c.Bind(data); err != nil {
			return c.JSON(http.StatusBadRequest, rebuildResponse{
				Message: "Invalid request body",
			})
		}
	}

	app := c.(*middleware.AppContext).App
	if app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, rebuildResponse{
			Message: "Rebuild queue is not configured",
		})
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}

	user := c.(*middleware.AppContext).User
	msg := queue.RebuildMsg{
		Message:       "Rebuild requested by " + user.UserID,
		CorrelationID: correlationID,
		Force:         data.Force,
		Summarize:     data.Summarize,
		RequestedAt:   time.Now(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}

	if err := queue.PublishFIFO(c.Request().Context(), app.Queue, queue.RebuildQueue, body); err != nil {
		logger.Error("[Server] Failed to queue rebuild", "err", err)
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Failed to queue rebuild",
		})
	}

	logger.Info("[Server] Rebuild queued", "correlation_id", correlationID, "user", user.UserID)
	return c.JSON(http.StatusAccepted, rebuildResponse{
		Message:       "Rebuild queued",
		CorrelationID: correlationID,
	})
}
