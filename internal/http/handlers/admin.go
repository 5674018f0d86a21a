package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/crypto"
)

const (
	defaultKeyTier    = "standard"
	defaultKeyCredits = 100
)

// checkAdmin gates the admin surface on the master secret. With no secret
// configured the endpoints do not exist as far as callers can tell.
func (h *Handlers) checkAdmin(presented string) error {
	if h.cfg.MasterSecret == "" {
		return apperr.New(apperr.CodeNotFound, "resource not found")
	}
	if !crypto.ConstantTimeEqual(presented, h.cfg.MasterSecret) {
		return apperr.New(apperr.CodeUnauthorized, "invalid admin secret")
	}
	return nil
}

// CreateKeyInput is the input for issuing an API key.
type CreateKeyInput struct {
	AdminSecret string `header:"x-admin-secret"`
	Body        struct {
		Owner   string `json:"owner" doc:"Human-readable owner label"`
		Tier    string `json:"tier,omitempty"`
		Credits int    `json:"credits,omitempty"`
	}
}

// CreateKeyOutput carries the plaintext key; it is shown exactly once.
type CreateKeyOutput struct {
	Status int
	Body   struct {
		Success   bool      `json:"success"`
		Key       string    `json:"key"`
		ID        string    `json:"id"`
		KeyPrefix string    `json:"keyPrefix"`
		Tier      string    `json:"tier"`
		Credits   int       `json:"credits"`
		CreatedAt time.Time `json:"createdAt"`
	}
}

// CreateKey issues a new API key.
func (h *Handlers) CreateKey(ctx context.Context, input *CreateKeyInput) (*CreateKeyOutput, error) {
	if err := h.checkAdmin(input.AdminSecret); err != nil {
		return nil, err
	}
	if input.Body.Owner == "" {
		return nil, badRequest(fmt.Errorf("owner is required"))
	}
	tier := input.Body.Tier
	if tier == "" {
		tier = defaultKeyTier
	}
	credits := input.Body.Credits
	if credits <= 0 {
		credits = defaultKeyCredits
	}

	plaintext, key, err := h.services.APIKey.IssueKey(ctx, input.Body.Owner, tier, credits)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &CreateKeyOutput{Status: http.StatusCreated}
	out.Body.Success = true
	out.Body.Key = plaintext
	out.Body.ID = key.ID
	out.Body.KeyPrefix = key.KeyPrefix
	out.Body.Tier = key.Tier
	out.Body.Credits = key.RemainingCredits
	out.Body.CreatedAt = key.CreatedAt
	return out, nil
}

// TopUpKeyInput is the input for adding credits to a key.
type TopUpKeyInput struct {
	ID          string `path:"id"`
	AdminSecret string `header:"x-admin-secret"`
	Body        struct {
		Credits int `json:"credits"`
	}
}

// TopUpKeyOutput is the output for a credit top-up.
type TopUpKeyOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// TopUpKey adds credits to an existing key.
func (h *Handlers) TopUpKey(ctx context.Context, input *TopUpKeyInput) (*TopUpKeyOutput, error) {
	if err := h.checkAdmin(input.AdminSecret); err != nil {
		return nil, err
	}
	if input.Body.Credits <= 0 {
		return nil, badRequest(fmt.Errorf("credits must be positive"))
	}
	if err := h.services.APIKey.TopUp(ctx, input.ID, input.Body.Credits); err != nil {
		return nil, h.mapErr(err)
	}

	out := &TopUpKeyOutput{}
	out.Body.Success = true
	return out, nil
}
