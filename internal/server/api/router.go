package api

import (
	"folio/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.AllowedOrigin},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on the upload endpoint only
	uploadLimiter := NewUploadLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// EPUB intake (rate-limited) and static serving. Stored files are
	// public: anyone who knows a token id can fetch its file.
	e.POST("/upload-epub/:tokenId", handler.HandleUploadEpub, uploadLimiter.Middleware())
	e.Static("/epubs", cfg.StoragePath)

	// Item records
	e.POST("/api/items", handler.HandleCreateItem)
	e.DELETE("/api/items/:tokenId", handler.HandleDeleteItem)
	e.GET("/api/items/:recipient", handler.HandleListItems)

	return e
}
