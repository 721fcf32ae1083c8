// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/lumoflow/auth-server/internal/handler"
	"github.com/lumoflow/auth-server/internal/middleware"
)

// Register sets up the full route table. Credential endpoints live under
// /api/auth and carry the rate limiter when one is configured; protected
// endpoints live under /api behind the Bearer token guard.
func Register(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	g := e.Group("/api/auth")
	if limiter != nil {
		g.Use(limiter)
	}
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/ngo-login", a.NgoLogin)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)

	api := e.Group("/api")
	api.Use(middleware.JWTAuth(jwtSecret))
	api.GET("/me", a.Me)

	// NGO tooling lives under /api/ngo: same guard, plus the role gate, so
	// a token minted for any other role cannot reach it.
	ngo := e.Group("/api/ngo")
	ngo.Use(middleware.JWTAuth(jwtSecret))
	ngo.Use(middleware.RequireRole("NGO"))
	ngo.GET("/me", a.Me)
}
