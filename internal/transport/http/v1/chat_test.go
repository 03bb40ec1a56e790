package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/doctalk/doctalk/internal/domain"
	"github.com/doctalk/doctalk/policy"
)

func TestStartSessionUnknownCollection(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := jsonRequest(http.MethodPost, "/chat/sessions", `{"collectionName":"missing"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.StartSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartSessionRequiresCollectionName(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := jsonRequest(http.MethodPost, "/chat/sessions", `{}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.StartSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := jsonRequest(http.MethodPost, "/chat/sessions/nope/messages", `{"message":"hello"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("nope")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessageRequiresMessage(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := jsonRequest(http.MethodPost, "/chat/sessions/s1/messages", `{"k":2}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("s1")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendMessageBlockedByPolicy(t *testing.T) {
	e := echo.New()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("policy engine: %v", err)
	}
	h := newTestHandlerWithPolicy(t, engine)

	req := jsonRequest(http.MethodPost, "/collections", `{"name":"docs"}`)
	rec := httptest.NewRecorder()
	if err := h.CreateCollection(e.NewContext(req, rec)); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	req = jsonRequest(http.MethodPost, "/chat/sessions", `{"collectionName":"docs"}`)
	rec = httptest.NewRecorder()
	if err := h.StartSession(e.NewContext(req, rec)); err != nil {
		t.Fatalf("start session: %v", err)
	}
	var started struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	req = jsonRequest(http.MethodPost, "/chat/sessions/"+started.SessionID+"/messages",
		`{"message":"hello","k":51}`)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues(started.SessionID)
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatFlow(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := jsonRequest(http.MethodPost, "/collections", `{"name":"docs"}`)
	rec := httptest.NewRecorder()
	if err := h.CreateCollection(e.NewContext(req, rec)); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	req = jsonRequest(http.MethodPost, "/collections/docs/documents",
		`{"documents":[{"content":"Paris is the capital of France.","metadata":{"source":"geo.txt"}}]}`)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("docs")
	if err := h.AddDocuments(c); err != nil {
		t.Fatalf("add documents: %v", err)
	}

	req = jsonRequest(http.MethodPost, "/chat/sessions", `{"collectionName":"docs"}`)
	rec = httptest.NewRecorder()
	if err := h.StartSession(e.NewContext(req, rec)); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		SessionID      string `json:"sessionId"`
		CollectionName string `json:"collectionName"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if started.SessionID == "" || started.CollectionName != "docs" {
		t.Fatalf("unexpected session: %+v", started)
	}

	req = jsonRequest(http.MethodPost, "/chat/sessions/"+started.SessionID+"/messages",
		`{"message":"What is the capital of France?","k":1}`)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues(started.SessionID)
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.ChatResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Answer == "" {
		t.Fatalf("expected non-empty answer")
	}
	if len(result.Sources) != 1 || result.Sources[0] != "geo.txt" {
		t.Fatalf("unexpected sources: %v", result.Sources)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/sessions/"+started.SessionID+"/messages", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues(started.SessionID)
	if err := h.GetSessionHistory(c); err != nil {
		t.Fatalf("get history: %v", err)
	}
	var history struct {
		SessionID string        `json:"sessionId"`
		Messages  []domain.Turn `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history.Messages))
	}
	if history.Messages[0].Role != domain.RoleUser || history.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected turn order: %+v", history.Messages)
	}

	req = httptest.NewRequest(http.MethodDelete, "/chat/sessions/"+started.SessionID, nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues(started.SessionID)
	if err := h.DeleteSession(c); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
