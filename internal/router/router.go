package router // package router defines how HTTP routes are registered for the admin API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/claim-bot/internal/handler"
	"github.com/iliyamo/claim-bot/internal/middleware"
)

// Handlers bundles the handler set the admin API registers.
type Handlers struct {
	Auth   *handler.AuthHandler
	Events *handler.EventHandler
	Claims *handler.ClaimHandler
	Admins *handler.AdminHandler
}

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers or monitoring systems to verify that the
	// service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAdmin registers the admin API.  Login lives under /v1/auth and
// needs no token; everything else lives under /v1 behind JWT auth and
// the ADMIN role.
func RegisterAdmin(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/login", h.Auth.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ADMIN"))

	auth.POST("/events", h.Events.Create)
	auth.GET("/events", h.Events.List)
	auth.GET("/events/:id", h.Events.Get)
	auth.PUT("/events/:id", h.Events.Update)

	auth.POST("/events/:id/claims", h.Claims.Upload)
	auth.GET("/events/:id/claims", h.Claims.List)
	auth.POST("/events/:id/claims/reserve", h.Claims.Reserve)
	auth.POST("/claims/:id/clear", h.Claims.Clear)
	auth.DELETE("/claims/:id", h.Claims.Delete)

	auth.POST("/admins", h.Admins.Create)
}
