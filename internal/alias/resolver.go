// Package alias maintains the bidirectional keyword↔alias mapping used
// to redirect query terms to indexed terms.
//
// The relation is a pure key-value mapping with no state machine: every
// stored (keyword, alias) pair is reachable from both directions in O(1)
// via two in-memory indexes, persisted through a Persister.
package alias

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Language tags for the closed bilingual set.
const (
	LangVietnamese = "vi"
	LangEnglish    = "en"
)

// Mapping is one (keyword, alias, language) triple. The pair
// (keyword, alias) is unique; language tags the alias's locale.
type Mapping struct {
	Keyword  string
	Alias    string
	Language string
}

// Persister stores alias mappings durably. Insert must be idempotent for
// an existing (keyword, alias) pair.
type Persister interface {
	Insert(ctx context.Context, m Mapping) error
	Delete(ctx context.Context, keyword, alias string) error
	List(ctx context.Context) ([]Mapping, error)
}

// Resolver answers alias lookups in both directions.
//
// Resolver is safe for concurrent use by multiple goroutines.
type Resolver struct {
	persister Persister
	logger    *slog.Logger

	mu        sync.RWMutex
	byAlias   map[string]map[string]string // alias -> keyword -> language
	byKeyword map[string]map[string]string // keyword -> alias -> language
}

// NewResolver creates a Resolver. Call Load before first use to hydrate
// the in-memory indexes from persistence.
func NewResolver(p Persister, logger *slog.Logger) (*Resolver, error) {
	if p == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		persister: p,
		logger:    logger,
		byAlias:   make(map[string]map[string]string),
		byKeyword: make(map[string]map[string]string),
	}, nil
}

// Load replaces the in-memory indexes with the persisted mappings.
func (r *Resolver) Load(ctx context.Context) error {
	mappings, err := r.persister.List(ctx)
	if err != nil {
		return fmt.Errorf("loading alias mappings: %w", err)
	}

	byAlias := make(map[string]map[string]string)
	byKeyword := make(map[string]map[string]string)
	for _, m := range mappings {
		put(byAlias, normalize(m.Alias), normalize(m.Keyword), m.Language)
		put(byKeyword, normalize(m.Keyword), normalize(m.Alias), m.Language)
	}

	r.mu.Lock()
	r.byAlias = byAlias
	r.byKeyword = byKeyword
	r.mu.Unlock()

	r.logger.Debug("loaded alias mappings", "count", len(mappings))
	return nil
}

// Resolve returns the keywords mapped from the given alias, sorted for
// determinism. Empty slice when no mapping exists.
func (r *Resolver) Resolve(term string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byAlias[normalize(term)])
}

// AliasesOf returns the aliases of a keyword, sorted. Empty slice when
// none exist.
func (r *Resolver) AliasesOf(keyword string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byKeyword[normalize(keyword)])
}

// All returns every stored mapping, sorted by keyword then alias.
func (r *Resolver) All() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Mapping
	for keyword, aliases := range r.byKeyword {
		for a, lang := range aliases {
			out = append(out, Mapping{Keyword: keyword, Alias: a, Language: lang})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Keyword != out[j].Keyword {
			return out[i].Keyword < out[j].Keyword
		}
		return out[i].Alias < out[j].Alias
	})
	return out
}

// Add stores a (keyword, alias, language) mapping. Re-adding an existing
// pair is a no-op, not an error.
func (r *Resolver) Add(ctx context.Context, keyword, alias, language string) error {
	keyword, alias = normalize(keyword), normalize(alias)
	if keyword == "" || alias == "" {
		return fmt.Errorf("keyword and alias are required")
	}
	if language != LangVietnamese && language != LangEnglish {
		return fmt.Errorf("unsupported language %q (expected %q or %q)", language, LangVietnamese, LangEnglish)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKeyword[keyword][alias]; exists {
		return nil
	}

	if err := r.persister.Insert(ctx, Mapping{Keyword: keyword, Alias: alias, Language: language}); err != nil {
		return fmt.Errorf("persisting alias mapping: %w", err)
	}

	put(r.byAlias, alias, keyword, language)
	put(r.byKeyword, keyword, alias, language)

	r.logger.Debug("added alias mapping", "keyword", keyword, "alias", alias, "language", language)
	return nil
}

// Remove deletes a (keyword, alias) mapping. Removing a non-existent
// pair is a no-op.
func (r *Resolver) Remove(ctx context.Context, keyword, alias string) error {
	keyword, alias = normalize(keyword), normalize(alias)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKeyword[keyword][alias]; !exists {
		return nil
	}

	if err := r.persister.Delete(ctx, keyword, alias); err != nil {
		return fmt.Errorf("deleting alias mapping: %w", err)
	}

	drop(r.byAlias, alias, keyword)
	drop(r.byKeyword, keyword, alias)
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func put(m map[string]map[string]string, outer, inner, lang string) {
	if m[outer] == nil {
		m[outer] = make(map[string]string)
	}
	m[outer][inner] = lang
}

func drop(m map[string]map[string]string, outer, inner string) {
	delete(m[outer], inner)
	if len(m[outer]) == 0 {
		delete(m, outer)
	}
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
