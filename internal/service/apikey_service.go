package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
)

// keyPrefixLen covers the fixed "rk_live_" marker plus the first eight
// random characters, so stored prefixes are distinct per key.
const keyPrefixLen = 16

// APIKeyService issues and manages API keys. The plaintext key is returned
// exactly once at creation and never stored.
type APIKeyService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewAPIKeyService creates a new API key service.
func NewAPIKeyService(repos *repository.Repositories, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{repos: repos, logger: logger}
}

// IssueKey mints a new key for the owner and returns the plaintext alongside
// the stored record.
func (s *APIKeyService) IssueKey(ctx context.Context, owner, tier string, credits int) (string, *models.APIKey, error) {
	token, err := crypto.RandomToken(24)
	if err != nil {
		return "", nil, err
	}
	plaintext := "rk_live_" + token

	key := &models.APIKey{
		ID:               uuid.NewString(),
		Owner:            owner,
		KeyHash:          crypto.SHA256Hex([]byte(plaintext)),
		KeyPrefix:        plaintext[:keyPrefixLen],
		Tier:             tier,
		RemainingCredits: credits,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.repos.APIKeys.Create(ctx, key); err != nil {
		return "", nil, fmt.Errorf("failed to store api key: %w", err)
	}

	s.logger.Info("api key issued", "api_key_id", key.ID, "owner", owner, "tier", tier)
	return plaintext, key, nil
}

// TopUp adds credits to an existing key.
func (s *APIKeyService) TopUp(ctx context.Context, apiKeyID string, credits int) error {
	if credits <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}
	return s.repos.APIKeys.AddCredits(ctx, apiKeyID, credits)
}
