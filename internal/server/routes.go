package server

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")
	apiRoutes.POST("/ask", AskHandler)
	apiRoutes.GET("/patch/current", CurrentPatchHandler)
	apiRoutes.GET("/agents", ListAgentsHandler)
}
