package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewServer builds the echo instance with every route registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e, h)
	return e
}

func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/healthz", Health)

	g := e.Group("/webhooks")
	g.POST("/chat", h.Chat)
	g.POST("/payments", h.Payment)
}
