package server

import (
	"net/http"

	"github.com/OFFIS-RIT/bookgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/bookgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Chat routes
	apiRoutes.POST("/chat", routes.ChatHandler, middleware.RequirePermission(middleware.PermissionChat))
	apiRoutes.GET("/messages", routes.GetMessagesHandler, middleware.RequirePermission(middleware.PermissionChat))
	apiRoutes.POST("/messages", routes.PostMessageHandler, middleware.RequirePermission(middleware.PermissionChat))

	// Graph routes
	apiRoutes.POST("/graph/rebuild", routes.RebuildGraphHandler, middleware.RequirePermission(middleware.PermissionGraphRebuild))
}
