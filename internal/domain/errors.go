package domain

import "errors"

// Sentinel errors for the chat service. Transport maps the not-found pair to
// 404 and ErrPolicyBlocked to 403; provider and store failures surface as
// internal errors and are never retried.
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrPolicyBlocked      = errors.New("request blocked by policy")

	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrGenerationProvider = errors.New("generation provider error")
	ErrStore              = errors.New("vector store error")
)
