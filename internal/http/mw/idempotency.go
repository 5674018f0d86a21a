package mw

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
)

const (
	// IdempotencyKeyHeader marks a request as safely retryable.
	IdempotencyKeyHeader = "x-idempotency-key"

	// IdempotencyReplayHeader is set on responses served from a stored
	// entry instead of a fresh execution.
	IdempotencyReplayHeader = "X-Idempotency-Replay"

	idempotencyTTL        = 48 * time.Hour
	maxIdempotencyKeyLen  = 255
	maxRecordableBodySize = 1 << 20
)

// Idempotency replays the stored response for a repeated key and body, so
// clients can retry mutating requests without double submission. Mounted
// only on the job-creating endpoints.
func Idempotency(idemRepo repository.IdempotencyRepository, logRepo repository.LogRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				WriteError(w, r, apperr.New(apperr.CodeBadRequest, "idempotency key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				WriteError(w, r, apperr.New(apperr.CodeBadRequest, "failed to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			// Scope by caller so one tenant's key cannot replay another's
			// response.
			caller, _ := identifierFor(r)
			scopedKey := caller + ":" + key
			bodyHash := crypto.SHA256Hex(body)
			now := time.Now().UTC()

			entry, err := idemRepo.Get(r.Context(), scopedKey, now)
			if err != nil {
				logger.Error("idempotency lookup failed", "error", err)
			}
			// A key reused with a different body is a distinct request, not a
			// retry: execute it fresh and let the new response take over the
			// key.
			if entry != nil && entry.BodyHash == bodyHash {
				recordReplayEvent(r, logRepo, logger, key)
				w.Header().Set(IdempotencyReplayHeader, "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(entry.StatusCode)
				_, _ = w.Write([]byte(entry.Response))
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server errors stay retryable; everything else is replayed.
			if rec.status >= 500 || rec.body.Len() > maxRecordableBodySize {
				return
			}
			store := &models.IdempotencyEntry{
				Key:        scopedKey,
				BodyHash:   bodyHash,
				StatusCode: rec.status,
				Response:   rec.body.String(),
				CreatedAt:  now,
				ExpiresAt:  now.Add(idempotencyTTL),
			}
			if err := idemRepo.Put(r.Context(), store); err != nil {
				logger.Error("failed to store idempotency entry", "error", err)
			}
		})
	}
}

func recordReplayEvent(r *http.Request, logRepo repository.LogRepository, logger *slog.Logger, key string) {
	meta, _ := json.Marshal(map[string]string{"key": key})
	row := &models.EventLog{
		ID:        uuid.NewString(),
		APIKeyID:  APIKeyID(r.Context()),
		Event:     models.EventIdempotencyHit,
		MetaJSON:  string(meta),
		CreatedAt: time.Now().UTC(),
	}
	if err := logRepo.CreateEvent(r.Context(), row); err != nil {
		logger.Warn("failed to record idempotency event", "error", err)
	}
}

// recordingWriter captures the response for later replay while streaming it
// to the client.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.body.Len() <= maxRecordableBodySize {
		w.body.Write(p)
	}
	return w.ResponseWriter.Write(p)
}
