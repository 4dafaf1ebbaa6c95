package routes

import (
	"io"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/bookgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/bookgraph/internal/server/util"

	"github.com/labstack/echo/v4"
)

// GetMessagesHandler returns the server-side conversation.
func GetMessagesHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	return c.JSON(http.StatusOK, app.Messages.List())
}

// PostMessageHandler takes the question as the plain request body, answers
// it with the stored conversation as history and returns the assistant
// message. A JSON string body is accepted as well.
func PostMessageHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	text := strings.TrimSpace(string(body))
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	if text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message must not be empty"})
	}

	app := c.(*middleware.AppContext).App
	history := app.Messages.History()
	app.Messages.Append(util.RoleUser, text)

	res := app.Asker.Run(c.Request().Context(), text, history)
	reply := app.Messages.Append(util.RoleAssistant, res.Answer)

	return c.JSON(http.StatusOK, reply)
}
