// Package embedding wraps the configured embedding provider and coerces
// its output to the datastore's fixed vector width.
//
// Heterogeneous providers share one index: vectors narrower than the
// schema are zero-padded, wider vectors are truncated to the leading
// components. Cosine similarity is dominated by the populated leading
// dimensions, which is what makes the shim workable.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// SchemaDimensions is the fixed width of the embedding columns.
// Must match vector(N) in db/migrations.
const SchemaDimensions = 1536

// ErrUnavailable indicates the embedding provider could not serve the
// request within the retry budget. Retryable by a later ingestion run;
// the current document must not be partially indexed.
var ErrUnavailable = errors.New("embedding provider unavailable")

const (
	// maxAttempts bounds provider retries (initial call + 2 retries).
	maxAttempts = 3

	// initialBackoff is the first retry delay.
	initialBackoff = 500 * time.Millisecond

	// callTimeout bounds a single provider call.
	callTimeout = 30 * time.Second
)

// Normalizer generates schema-width embeddings through a pluggable
// provider. Safe for concurrent use.
type Normalizer struct {
	embedder ai.Embedder
	opts     any // provider-specific embed options (e.g. Gemini output dimensionality)
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithEmbedOptions attaches provider-specific options to every embed
// request (e.g. *genai.EmbedContentConfig for Gemini).
func WithEmbedOptions(opts any) Option {
	return func(n *Normalizer) { n.opts = opts }
}

// WithRateLimit caps provider calls per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(n *Normalizer) { n.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewNormalizer creates a Normalizer around the given embedder.
func NewNormalizer(embedder ai.Embedder, logger *slog.Logger, opts ...Option) (*Normalizer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Embed returns a vector of exactly SchemaDimensions components for the
// given text. Provider failures are retried with exponential backoff;
// after the budget is exhausted the error wraps ErrUnavailable.
func (n *Normalizer) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var native []float32
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		resp, err := n.embedder.Embed(callCtx, &ai.EmbedRequest{
			Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
			Options: n.opts,
		})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
			return errors.New("empty embedding response")
		}
		native = resp.Embeddings[0].Embedding
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(initialBackoff),
		), maxAttempts-1),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return n.normalize(native), nil
}

// normalize coerces a native vector to SchemaDimensions: zero-pad when
// narrower, truncate when wider. Never an error; the dimension pair is
// logged for observability.
func (n *Normalizer) normalize(native []float32) []float32 {
	if len(native) == SchemaDimensions {
		return native
	}

	n.logger.Info("normalizing embedding dimensions",
		"native", len(native),
		"target", SchemaDimensions,
	)

	out := make([]float32, SchemaDimensions)
	copy(out, native) // truncates when native is wider
	return out
}
