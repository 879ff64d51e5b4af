package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/aaronlee0321/gddsearch/db"
	"github.com/aaronlee0321/gddsearch/internal/alias"
	"github.com/aaronlee0321/gddsearch/internal/config"
	"github.com/aaronlee0321/gddsearch/internal/deepsearch"
	"github.com/aaronlee0321/gddsearch/internal/embedding"
	"github.com/aaronlee0321/gddsearch/internal/index"
	"github.com/aaronlee0321/gddsearch/internal/ingest"
	"github.com/aaronlee0321/gddsearch/internal/log"
	"github.com/aaronlee0321/gddsearch/internal/retrieval"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	normalizer, err := provideNormalizer(embedder, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Normalizer = normalizer

	store, err := index.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	resolver, err := provideAliases(ctx, pool, logger)
	if err != nil {
		return nil, err
	}
	a.Aliases = resolver

	generator := &llmGenerator{g: g, model: cfg.FullModelName()}

	var hydeGen retrieval.Generator
	if cfg.HydeEnabled {
		hydeGen = generator
	}
	retriever, err := retrieval.NewRetriever(store, normalizer, hydeGen, resolver, logger)
	if err != nil {
		return nil, err
	}
	a.Retriever = retriever

	expander, err := deepsearch.NewExpander(store, generator, resolver, logger)
	if err != nil {
		return nil, err
	}
	a.Expander = expander

	pipeline, err := ingest.NewPipeline(store, normalizer, nil, ingest.Options{
		ChunkSize:    cfg.ChunkSize,
		OverlapRatio: cfg.OverlapRatio,
		Parallelism:  cfg.IngestParallelism,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline

	return a, nil
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.ConnString()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit", "provider", cfg.Provider,
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit", "provider", config.ProviderGemini, "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider
// plugin. Each provider registers embedders differently.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Keyed by server address, registered in provideGenkit.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideNormalizer wraps the embedder. Gemini embedders can emit the
// schema width natively via output dimensionality; other providers rely
// on pad/truncate.
func provideNormalizer(embedder ai.Embedder, cfg *config.Config, logger log.Logger) (*embedding.Normalizer, error) {
	var opts []embedding.Option
	if cfg.Provider == config.ProviderGemini || cfg.Provider == "" {
		dim := int32(embedding.SchemaDimensions)
		opts = append(opts, embedding.WithEmbedOptions(
			&genai.EmbedContentConfig{OutputDimensionality: &dim}))
	}
	return embedding.NewNormalizer(embedder, logger, opts...)
}

func provideAliases(ctx context.Context, pool *pgxpool.Pool, logger log.Logger) (*alias.Resolver, error) {
	persister, err := alias.NewPGPersister(pool)
	if err != nil {
		return nil, err
	}
	resolver, err := alias.NewResolver(persister, logger)
	if err != nil {
		return nil, err
	}
	if err := resolver.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading aliases: %w", err)
	}
	return resolver, nil
}

// llmGenerator adapts genkit.Generate to the Generator interfaces
// consumed by retrieval and deepsearch.
type llmGenerator struct {
	g     *genkit.Genkit
	model string
}

func (l *llmGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, l.g,
		ai.WithModelName(l.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating text: %w", err)
	}
	return resp.Text(), nil
}
