package middleware

import (
	"github.com/OFFIS-RIT/bookgraph/internal/queue"
	"github.com/OFFIS-RIT/bookgraph/internal/server/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/query"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// App carries the collaborators every handler needs. Queue is nil when the
// server runs without a broker; Key is nil when AUTH_URL is unset.
type App struct {
	Asker        query.Asker
	Queue        queue.Publisher
	Key          jwt.Keyfunc
	Messages     *util.MessageStore
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
