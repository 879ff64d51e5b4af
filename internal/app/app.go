// Package app provides application initialization and dependency
// injection: configuration, database pool, migrations, the Genkit
// provider, and the retrieval components wired together.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaronlee0321/gddsearch/internal/alias"
	"github.com/aaronlee0321/gddsearch/internal/config"
	"github.com/aaronlee0321/gddsearch/internal/deepsearch"
	"github.com/aaronlee0321/gddsearch/internal/embedding"
	"github.com/aaronlee0321/gddsearch/internal/index"
	"github.com/aaronlee0321/gddsearch/internal/ingest"
	"github.com/aaronlee0321/gddsearch/internal/retrieval"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Normalizer *embedding.Normalizer
	Store      *index.Store
	Aliases    *alias.Resolver
	Retriever  *retrieval.Retriever
	Expander   *deepsearch.Expander
	Pipeline   *ingest.Pipeline

	dbCleanup func()
}

// Close releases all resources acquired during Setup. Safe to call on
// a partially initialized App.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	return nil
}
