// Package auth implements the interactive login flow for stored API keys.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/signifo/designgen/internal/auth/openrouter"
	"github.com/signifo/designgen/internal/config"
	"github.com/signifo/designgen/internal/runtime/executor"
	log "github.com/sirupsen/logrus"
)

// ModelLister verifies a credential by listing the models it can access.
type ModelLister interface {
	ListModels(ctx context.Context, credential string) ([]executor.Model, error)
}

// LoginOptions controls a login.
type LoginOptions struct {
	// APIKey skips the prompt when set.
	APIKey string
	// Prompt asks the user for input when APIKey is empty.
	Prompt func(label string) (string, error)
}

// LoginResult describes a stored key.
type LoginResult struct {
	Storage *openrouter.KeyStorage
	Path    string
	Models  []executor.Model
}

// OpenRouterAuthenticator verifies an API key and persists it under auth-dir.
type OpenRouterAuthenticator struct {
	lister ModelLister
	now    func() time.Time
}

// NewOpenRouterAuthenticator constructs an authenticator backed by lister.
func NewOpenRouterAuthenticator(lister ModelLister) *OpenRouterAuthenticator {
	return &OpenRouterAuthenticator{lister: lister, now: time.Now}
}

// Provider returns the provider identifier.
func (a *OpenRouterAuthenticator) Provider() string {
	return "openrouter"
}

// Login obtains a key (from opts or the prompt), verifies it against the
// model catalog and saves it. Nothing is written when verification fails.
func (a *OpenRouterAuthenticator) Login(ctx context.Context, cfg *config.Config, opts *LoginOptions) (*LoginResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("designgen auth: configuration is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &LoginOptions{}
	}

	key := strings.TrimSpace(opts.APIKey)
	if key == "" && opts.Prompt != nil {
		input, err := opts.Prompt("Enter your OpenRouter API key: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read api key: %w", err)
		}
		key = strings.TrimSpace(input)
	}
	if key == "" {
		return nil, fmt.Errorf("an API key is required")
	}

	models, err := a.lister.ListModels(ctx, key)
	if err != nil {
		return nil, err
	}

	authDir, err := cfg.ResolvedAuthDir()
	if err != nil {
		return nil, err
	}
	path := openrouter.KeyFilePath(authDir)
	storage := &openrouter.KeyStorage{
		APIKey:     key,
		VerifiedAt: a.now().UTC(),
		ModelCount: len(models),
	}
	if err = storage.SaveKeyToFile(path); err != nil {
		return nil, err
	}

	log.Infof("OpenRouter authentication successful for key %s (%d models)", storage.Masked(), len(models))
	return &LoginResult{Storage: storage, Path: path, Models: models}, nil
}
