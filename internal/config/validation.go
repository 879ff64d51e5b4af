package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the PostgreSQL SSL modes accepted by pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration and returns the first violation.
// Errors wrap package sentinels so callers can use errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	case "":
		return fmt.Errorf("%w: no AI provider configured", ErrInvalidProvider)
	default:
		return fmt.Errorf("%w: %q (expected gemini, ollama or openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}

	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %d (expected 1-%d)", ErrInvalidChunkSize, c.ChunkSize, MaxChunkSize)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("%w: %.2f (expected [0, 1))", ErrInvalidOverlapRatio, c.OverlapRatio)
	}

	if c.MatchLimit < 1 || c.MatchLimit > 100 {
		return fmt.Errorf("%w: %d (expected 1-100)", ErrInvalidMatchLimit, c.MatchLimit)
	}
	switch c.MergeStrategy {
	case MergeUnion, MergeLexicalFirst:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidMergeStrategy, c.MergeStrategy, MergeUnion, MergeLexicalFirst)
	}

	if c.IngestParallelism < 1 || c.IngestParallelism > 32 {
		return fmt.Errorf("%w: %d (expected 1-32)", ErrInvalidParallelism, c.IngestParallelism)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
