package ai

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// pinger is implemented by generators that can check connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// ConfigValidator validates AI provider configurations by pinging them.
type ConfigValidator struct{}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding checks the embedding key and endpoint.
func (v *ConfigValidator) ValidateEmbedding(ctx context.Context, settings domain.EmbeddingSettings) error {
	p, err := CreateEmbeddingProvider(settings)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// ValidateChat checks the chat key and endpoint.
func (v *ConfigValidator) ValidateChat(ctx context.Context, settings domain.ChatSettings, fallbackKey string) error {
	g, err := CreateGenerator(settings, fallbackKey, nil)
	if err != nil {
		return err
	}
	defer g.Close()

	p, ok := g.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}
