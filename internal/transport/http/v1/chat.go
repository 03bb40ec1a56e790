package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// StartSession starts a new chat session bound to a document collection.
// POST /chat/sessions
func (h *Handler) StartSession(c echo.Context) error {
	var req struct {
		CollectionName string `json:"collectionName"`
		SystemPrompt   string `json:"systemPrompt"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.CollectionName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "collectionName is required"})
	}

	session, err := h.service.StartSession(c.Request().Context(), req.CollectionName, req.SystemPrompt)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"sessionId":      session.SessionID,
		"collectionName": session.CollectionName,
	})
}

// SendMessage sends a message to a session and returns the assistant's answer.
// POST /chat/sessions/:session_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	sessionID := c.Param("session_id")
	var req struct {
		Message string `json:"message"`
		K       int    `json:"k"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}

	result, err := h.service.SendMessage(c.Request().Context(), sessionID, req.Message, req.K)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetSessionHistory returns the full ordered turn list for a session.
// GET /chat/sessions/:session_id/messages
func (h *Handler) GetSessionHistory(c echo.Context) error {
	sessionID := c.Param("session_id")

	turns, err := h.service.GetSessionHistory(c.Request().Context(), sessionID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"messages":  turns,
	})
}

// DeleteSession deletes a session and its history.
// DELETE /chat/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	if err := h.service.DeleteSession(c.Request().Context(), sessionID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "session deleted"})
}
