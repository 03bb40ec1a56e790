package v1

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/doctalk/doctalk/internal/domain"
)

var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// CreateCollection creates a new document collection.
// POST /collections
func (h *Handler) CreateCollection(c echo.Context) error {
	var req struct {
		Name     string            `json:"name"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !collectionNamePattern.MatchString(req.Name) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name must contain only letters, digits, _ or -"})
	}

	if err := h.service.CreateCollection(c.Request().Context(), req.Name, req.Metadata); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"name": req.Name})
}

// ListCollections lists all collections.
// GET /collections
func (h *Handler) ListCollections(c echo.Context) error {
	names, err := h.service.ListCollections(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"collections": names})
}

// GetCollection returns collection details.
// GET /collections/:name
func (h *Handler) GetCollection(c echo.Context) error {
	info, err := h.service.GetCollection(c.Request().Context(), c.Param("name"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// DeleteCollection deletes a collection and all of its documents.
// DELETE /collections/:name
func (h *Handler) DeleteCollection(c echo.Context) error {
	if err := h.service.DeleteCollection(c.Request().Context(), c.Param("name")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "collection deleted"})
}

// AddDocuments chunks, embeds and stores documents in a collection.
// POST /collections/:name/documents
func (h *Handler) AddDocuments(c echo.Context) error {
	var req struct {
		Documents    []domain.DocumentInput `json:"documents"`
		ChunkSize    int                    `json:"chunkSize"`
		ChunkOverlap int                    `json:"chunkOverlap"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Documents) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "documents is required"})
	}
	for _, d := range req.Documents {
		if d.Content == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "document content must not be empty"})
		}
	}

	ids, err := h.service.AddDocuments(c.Request().Context(), c.Param("name"), req.Documents, req.ChunkSize, req.ChunkOverlap)
	if err != nil {
		return errorResponse(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"ids":   ids,
		"count": len(ids),
	})
}

// DeleteDocuments removes chunks by id from a collection.
// DELETE /collections/:name/documents
func (h *Handler) DeleteDocuments(c echo.Context) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "ids is required"})
	}

	if err := h.service.DeleteDocuments(c.Request().Context(), c.Param("name"), req.IDs); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "documents deleted"})
}
