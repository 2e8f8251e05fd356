package server

import (
	"github.com/labstack/echo/v4"

	"patchsage/pkg/ai"
	"patchsage/pkg/query"
	"patchsage/pkg/store"
)

// App bundles the request-scoped collaborators.
type App struct {
	Store     store.GraphStore
	Router    *query.Router
	Generator ai.Generator
}

// AppContext makes the App reachable from route handlers.
type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
