package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"folio/internal/server/database"
	"folio/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the Folio API.
type Handler struct {
	svc *service.ItemService
	db  *database.DB
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.ItemService, db *database.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

// HandleCreateItem handles POST /api/items.
// The client calls this after its on-chain mint succeeds; the backend
// records the reported row without validating it against chain state.
func (h *Handler) HandleCreateItem(c echo.Context) error {
	req := new(service.CreateItemRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid input data",
		})
	}

	item, err := h.svc.CreateItem(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, item)
}

// HandleDeleteItem handles DELETE /api/items/:tokenId.
// Returns the deleted row for confirmation.
func (h *Handler) HandleDeleteItem(c echo.Context) error {
	tokenID, err := strconv.ParseInt(c.Param("tokenId"), 10, 64)
	if err != nil {
		// A non-numeric token id can never name a row.
		return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
	}

	item, err := h.svc.DeleteItem(c.Request().Context(), tokenID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "item deleted successfully",
		"item":    item,
	})
}

// HandleListItems handles GET /api/items/:recipient.
// Matches the recipient address case-insensitively. Zero matches is a
// 404 with a message, not an empty list.
func (h *Handler) HandleListItems(c echo.Context) error {
	recipient := c.Param("recipient")

	items, err := h.svc.ListItems(c.Request().Context(), recipient)
	if err != nil {
		if errors.Is(err, service.ErrNoItems) {
			return c.JSON(http.StatusNotFound, echo.Map{
				"message": "no items found for the given recipient",
			})
		}
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, items)
}

// HandleUploadEpub handles POST /upload-epub/:tokenId.
// Accepts a multipart form with an "epub" field and stores the file as
// <tokenId>.<ext>, overwriting any previous upload for the same id.
func (h *Handler) HandleUploadEpub(c echo.Context) error {
	fileHeader, err := c.FormFile("epub")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "no file uploaded (use form field 'epub')",
		})
	}

	if fileHeader.Size > h.svc.MaxFileSize() {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	filePath, err := h.svc.SaveEpub(c.Param("tokenId"), fileHeader.Filename, src)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":  "file uploaded successfully",
		"filePath": filePath,
	})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregate marketplace statistics.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_items":        stats.TotalItems,
		"unique_recipients":  stats.UniqueRecipients,
		"gross_volume_wei":   stats.GrossVolumeWei,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": vErr.Msg})
	case errors.Is(err, service.ErrItemNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
