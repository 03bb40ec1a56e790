// Package v1 provides HTTP handlers for the chat service.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Collection API
	e.POST("/collections", h.CreateCollection)
	e.GET("/collections", h.ListCollections)
	e.GET("/collections/:name", h.GetCollection)
	e.DELETE("/collections/:name", h.DeleteCollection)
	e.POST("/collections/:name/documents", h.AddDocuments)
	e.DELETE("/collections/:name/documents", h.DeleteDocuments)

	// Chat API
	e.POST("/chat/sessions", h.StartSession)
	e.POST("/chat/sessions/:session_id/messages", h.SendMessage)
	e.GET("/chat/sessions/:session_id/messages", h.GetSessionHistory)
	e.DELETE("/chat/sessions/:session_id", h.DeleteSession)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorResponse maps a service error to an HTTP response.
func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrCollectionExists):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrPolicyBlocked):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
