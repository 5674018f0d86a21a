package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
)

// AuthService resolves presented API keys to accounts and charges credits.
type AuthService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(repos *repository.Repositories, logger *slog.Logger) *AuthService {
	return &AuthService{repos: repos, logger: logger}
}

// Authenticate looks up the key by the SHA-256 hash of the presented string.
// Unknown and inactive keys both yield ErrUnauthorized so callers cannot
// probe which keys exist.
func (s *AuthService) Authenticate(ctx context.Context, presented string) (*models.APIKey, error) {
	if presented == "" {
		return nil, ErrUnauthorized
	}

	key, err := s.repos.APIKeys.GetByKeyHash(ctx, crypto.SHA256Hex([]byte(presented)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if !key.IsActive {
		return nil, ErrUnauthorized
	}

	// Best effort; a stale last_used_at is not worth failing the request.
	if err := s.repos.APIKeys.UpdateLastUsed(ctx, key.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last_used_at", "api_key_id", key.ID, "error", err)
	}

	return key, nil
}

// Charge deducts credits from the key and returns the remaining balance.
// repository.ErrInsufficientCredits passes through untouched.
func (s *AuthService) Charge(ctx context.Context, apiKeyID string, amount int) (int, error) {
	return s.repos.APIKeys.Consume(ctx, apiKeyID, amount)
}
