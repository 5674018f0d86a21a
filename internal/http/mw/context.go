// Package mw contains the HTTP middleware stack: request ids, security
// headers, authentication, rate limiting, and idempotent replay.
package mw

import (
	"context"

	"github.com/7and1/robotscraping/internal/models"
)

type contextKey string

const (
	apiKeyContextKey    contextKey = "api_key"
	requestIDContextKey contextKey = "request_id"
)

// WithAPIKey stores the authenticated key on the context.
func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// APIKeyFromContext returns the authenticated key, or nil for anonymous
// requests.
func APIKeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}

// APIKeyID returns the authenticated key id, or "" for anonymous requests.
func APIKeyID(ctx context.Context) string {
	if key := APIKeyFromContext(ctx); key != nil {
		return key.ID
	}
	return ""
}

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
