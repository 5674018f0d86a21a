package mw

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/repository"
)

// RateLimitConfig holds configuration for request rate limiting.
type RateLimitConfig struct {
	Enabled            bool
	KeyedPerWindow     int // authenticated tier
	AnonymousPerWindow int
	Window             time.Duration
}

// identifierFor derives the limiter bucket from the request. Keys are
// bucketed by their display prefix so the limiter never handles the full
// secret; everything else falls back to the client IP. The prefix must
// extend past the fixed "rk_live_" marker or every key would share one
// bucket.
func identifierFor(r *http.Request) (string, bool) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			key = auth[7:]
		}
	}
	if len(key) >= 16 {
		return "key:" + key[:16], true
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host, false
}

// RateLimit returns the rate limiting middleware. With a repository the
// window counters live in the database and are shared across instances;
// without one each instance counts in memory via httprate.
func RateLimit(cfg RateLimitConfig, repo repository.RateLimitRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	if repo != nil {
		return storeRateLimit(cfg, repo, logger)
	}
	return memoryRateLimit(cfg)
}

func memoryRateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limitHandler := httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
		// httprate counts in fixed epoch-aligned windows, so the current
		// window ends at the next boundary.
		windowEnd := time.Now().UTC().Truncate(cfg.Window).Add(cfg.Window)
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(windowEnd).Seconds())+1))
		WriteError(w, r, apperr.New(apperr.CodeRateLimitExceeded, "rate limit exceeded").
			WithRetryAfter(windowEnd.Format(time.RFC3339)))
	})
	keyFunc := httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		id, _ := identifierFor(r)
		return id, nil
	})

	keyed := httprate.NewRateLimiter(cfg.KeyedPerWindow, cfg.Window, keyFunc, limitHandler)
	anonymous := httprate.NewRateLimiter(cfg.AnonymousPerWindow, cfg.Window, keyFunc, limitHandler)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, hasKey := identifierFor(r); hasKey {
				keyed.Handler(next).ServeHTTP(w, r)
				return
			}
			anonymous.Handler(next).ServeHTTP(w, r)
		})
	}
}

func storeRateLimit(cfg RateLimitConfig, repo repository.RateLimitRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, hasKey := identifierFor(r)
			limit := cfg.AnonymousPerWindow
			if hasKey {
				limit = cfg.KeyedPerWindow
			}

			count, windowEnd, err := repo.Increment(r.Context(), id, cfg.Window, time.Now().UTC())
			if err != nil {
				// Fail open: a broken limiter must not take the API down.
				logger.Error("rate limit store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := limit - count
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(windowEnd.Unix(), 10))

			if count > limit {
				retryAfter := int(time.Until(windowEnd).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				WriteError(w, r, apperr.New(apperr.CodeRateLimitExceeded, "rate limit exceeded").
					WithRetryAfter(windowEnd.UTC().Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
