// Package retrieval orchestrates query-time chunk selection: marker
// parsing, alias rewriting, hybrid lexical+vector search with optional
// hypothetical-answer expansion, and configurable result merging.
//
// The retriever is read-only over index state. Each Retrieve call is
// self-contained; no state is shared across concurrent queries.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aaronlee0321/gddsearch/internal/index"
)

// Merge strategies for combining lexical and vector candidate sets.
type MergeStrategy string

const (
	// MergeUnion takes both candidate sets, re-normalizes lexical
	// scores against the set maximum, and keeps the best score per
	// chunk.
	MergeUnion MergeStrategy = "union"

	// MergeLexicalFirst returns lexical hits alone, falling back to
	// vector search only when the lexical set is empty.
	MergeLexicalFirst MergeStrategy = "lexical-first"
)

// Searcher is the read side of the hybrid index consumed by the
// retriever.
type Searcher interface {
	LexicalSearch(ctx context.Context, query string, limit int, f index.Filter) ([]index.SearchResult, error)
	VectorSearch(ctx context.Context, queryVec []float32, limit int, f index.Filter) ([]index.VectorResult, error)
}

// Embedder produces a schema-width vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces free text from a prompt. Used for hypothetical
// answers when HYDE is enabled.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AliasResolver maps a query term to the indexed keywords it stands for.
type AliasResolver interface {
	Resolve(term string) []string
}

// Result is one ranked chunk.
type Result struct {
	ChunkID        string
	DocID          string
	DocName        string
	Content        string
	SectionHeading string
	ChunkIndex     int
	Score          float32
	// Source records which search path produced the hit: "lexical",
	// "vector", or "both".
	Source string
}

// Options configure a single Retrieve call.
type Options struct {
	Limit    int
	Strategy MergeStrategy
	// Hyde expands the query with a generated hypothetical passage
	// before vector search. Ignored when no Generator is wired.
	Hyde bool
}

// Retriever merges lexical and semantic candidates into one ranked list.
type Retriever struct {
	searcher  Searcher
	embedder  Embedder
	generator Generator
	aliases   AliasResolver
	logger    *slog.Logger
}

// NewRetriever creates a Retriever. generator and aliases are optional:
// a nil generator disables HYDE, a nil resolver disables alias
// rewriting.
func NewRetriever(s Searcher, e Embedder, g Generator, a AliasResolver, logger *slog.Logger) (*Retriever, error) {
	if s == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if e == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		searcher:  s,
		embedder:  e,
		generator: g,
		aliases:   a,
		logger:    logger.With("component", "retriever"),
	}, nil
}

// Retrieve runs the full query path: parse @document/@section markers,
// rewrite through aliases, search both rank paths, and merge.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Strategy == "" {
		opts.Strategy = MergeUnion
	}

	cleaned, filter := ParseQuery(query)
	if strings.TrimSpace(cleaned) == "" {
		return nil, nil
	}

	terms := r.expandTerms(cleaned)

	lexical, err := r.lexicalCandidates(ctx, terms, opts.Limit, filter)
	if err != nil {
		return nil, err
	}

	if opts.Strategy == MergeLexicalFirst && len(lexical) > 0 {
		return rank(lexical, opts.Limit), nil
	}

	vector, err := r.vectorCandidates(ctx, cleaned, opts, filter)
	if err != nil {
		// Query-time degradation: lexical results are still valid
		// when the semantic path fails.
		r.logger.Warn("vector search failed, returning lexical results only", "error", err)
		return rank(lexical, opts.Limit), nil
	}

	return rank(merge(lexical, vector), opts.Limit), nil
}

// expandTerms returns the cleaned query plus any alias-resolved
// keywords, originals first.
func (r *Retriever) expandTerms(query string) []string {
	terms := []string{query}
	if r.aliases == nil {
		return terms
	}
	for _, kw := range r.aliases.Resolve(query) {
		if !strings.EqualFold(kw, query) {
			terms = append(terms, kw)
		}
	}
	if len(terms) > 1 {
		r.logger.Debug("alias rewrite", "query", query, "terms", terms)
	}
	return terms
}

func (r *Retriever) lexicalCandidates(ctx context.Context, terms []string, limit int, f index.Filter) ([]Result, error) {
	seen := make(map[string]bool)
	var out []Result
	for _, term := range terms {
		hits, err := r.searcher.LexicalSearch(ctx, term, limit, f)
		if err != nil {
			return nil, fmt.Errorf("lexical search for %q: %w", term, err)
		}
		for _, h := range hits {
			if seen[h.ChunkID] {
				continue
			}
			seen[h.ChunkID] = true
			out = append(out, Result{
				ChunkID:        h.ChunkID,
				DocID:          h.DocID,
				DocName:        h.DocName,
				Content:        h.Content,
				SectionHeading: h.SectionHeading,
				ChunkIndex:     h.ChunkIndex,
				Score:          h.Score,
				Source:         "lexical",
			})
		}
	}
	normalizeScores(out)
	return out, nil
}

// vectorCandidates embeds the raw query, and with HYDE also a generated
// hypothetical passage, then unions the vector hits of both embeddings.
func (r *Retriever) vectorCandidates(ctx context.Context, query string, opts Options, f index.Filter) ([]Result, error) {
	texts := []string{query}
	if opts.Hyde && r.generator != nil {
		passage, err := r.generator.Generate(ctx, hydePrompt(query))
		if err != nil {
			r.logger.Warn("hypothetical passage generation failed, embedding raw query only", "error", err)
		} else if passage = strings.TrimSpace(passage); passage != "" {
			texts = append(texts, passage)
		}
	}

	seen := make(map[string]bool)
	var out []Result
	for _, text := range texts {
		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		hits, err := r.searcher.VectorSearch(ctx, vec, opts.Limit, f)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for _, h := range hits {
			if seen[h.ChunkID] {
				continue
			}
			seen[h.ChunkID] = true
			out = append(out, Result{
				ChunkID:        h.ChunkID,
				DocID:          h.DocID,
				Content:        h.Content,
				SectionHeading: h.SectionHeading,
				ChunkIndex:     h.ChunkIndex,
				Score:          h.Similarity,
				Source:         "vector",
			})
		}
	}
	return out, nil
}

// merge unions two candidate sets keyed by chunk ID, keeping the best
// score per chunk.
func merge(lexical, vector []Result) []Result {
	pos := make(map[string]int, len(lexical))
	out := make([]Result, len(lexical))
	copy(out, lexical)
	for i, res := range out {
		pos[res.ChunkID] = i
	}
	for _, v := range vector {
		if i, ok := pos[v.ChunkID]; ok {
			if v.Score > out[i].Score {
				out[i].Score = v.Score
			}
			out[i].Source = "both"
			continue
		}
		pos[v.ChunkID] = len(out)
		out = append(out, v)
	}
	return out
}

// normalizeScores scales scores into [0, 1] against the set maximum so
// lexical ranks and cosine similarities are comparable.
func normalizeScores(results []Result) {
	var max float32
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}

// rank sorts by score descending, breaking ties by chunk_index then
// chunk ID so equal-score results keep insertion order.
func rank(results []Result, limit int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func hydePrompt(query string) string {
	var b strings.Builder
	b.WriteString("Write a short, factual passage that would answer the following question about a game design document. ")
	b.WriteString("Answer in the question's language. Do not mention that the passage is hypothetical.\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
