package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/bookgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/bookgraph/pkg/ai"

	"github.com/labstack/echo/v4"
)

// ChatHandler answers one question about the book. The caller keeps the
// conversation and sends it as history.
func ChatHandler(c echo.Context) error {
	type chatBody struct {
		Message string           `json:"message" validate:"required"`
		History []ai.ChatMessage `json:"history" validate:"dive"`
	}

	type errorResponse struct {
		Message string `json:"message"`
	}

	data := new(chatBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	res := app.Asker.Run(c.Request().Context(), data.Message, data.History)

	return c.JSON(http.StatusOK, res)
}
