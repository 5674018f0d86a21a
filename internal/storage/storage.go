// Package storage persists extraction artifacts: screenshots, distilled
// content, job results and cached results.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no object behind it.
var ErrNotFound = errors.New("object not found")

// Store is the blob store behind artifact paths. The tabular store only ever
// holds the key; the blob is the source of truth.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Artifact key layout. Everything an extraction produces lives under one of
// these prefixes.
func ScreenshotKey(id, imageType string) string {
	switch imageType {
	case "webp", "png", "jpg":
	default:
		imageType = "png"
	}
	return fmt.Sprintf("logs/%s.%s", id, imageType)
}

func ContentKey(id string) string {
	return fmt.Sprintf("logs/%s.txt", id)
}

func ResultKey(id string) string {
	return fmt.Sprintf("results/%s.json", id)
}

func CacheKey(fingerprint string) string {
	return fmt.Sprintf("cache/%s.json", fingerprint)
}

// ContentTypeForImage maps a screenshot type to its MIME type.
func ContentTypeForImage(imageType string) string {
	switch imageType {
	case "webp":
		return "image/webp"
	case "jpg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
