// Package deepsearch expands zero-hit queries through an LLM: it
// requests a translation and synonyms for the failed term, verifies
// each candidate against the index, and lets the caller promote one
// verified candidate into a persistent alias.
//
// A Session walks a fixed state machine:
//
//	IDLE → SEARCHED → EXPANDING → SUGGESTED → SELECTED → PERSISTED
//	                                                   → DISCARDED
//
// Any call out of order returns ErrInvalidState.
package deepsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aaronlee0321/gddsearch/internal/index"
)

// Sentinel errors.
var (
	// ErrNoSuggestions reports that expansion produced no verified
	// candidate, including when the generation capability is down.
	// The original zero-hit response stays valid.
	ErrNoSuggestions = errors.New("no suggestions available")

	// ErrInvalidState reports a session method called out of order.
	ErrInvalidState = errors.New("invalid session state")
)

// State is a session's position in the expansion flow.
type State string

const (
	StateIdle      State = "idle"
	StateSearched  State = "searched"
	StateExpanding State = "expanding"
	StateSuggested State = "suggested"
	StateSelected  State = "selected"
	StatePersisted State = "persisted"
	StateDiscarded State = "discarded"
)

const (
	synonymsPerLanguage = 3
	// verifyLimit bounds the lexical probe per candidate; one hit is
	// enough to surface it.
	verifyLimit = 3
)

// Searcher is the lexical probe used both for the initial zero-hit
// check and for candidate verification.
type Searcher interface {
	LexicalSearch(ctx context.Context, query string, limit int, f index.Filter) ([]index.SearchResult, error)
}

// Generator produces the expansion response from a structured prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AliasWriter persists a confirmed (keyword, alias) pair.
type AliasWriter interface {
	Add(ctx context.Context, keyword, alias, language string) error
}

// Suggestion is a verified candidate term.
type Suggestion struct {
	Term     string
	Language string
	Hits     int
}

// Expander creates deep-search sessions.
type Expander struct {
	searcher  Searcher
	generator Generator
	aliases   AliasWriter
	logger    *slog.Logger
}

// NewExpander creates an Expander. aliases may be nil, in which case
// Persist is unavailable and sessions end at DISCARDED.
func NewExpander(s Searcher, g Generator, aliases AliasWriter, logger *slog.Logger) (*Expander, error) {
	if s == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if g == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{
		searcher:  s,
		generator: g,
		aliases:   aliases,
		logger:    logger.With("component", "deepsearch"),
	}, nil
}

// Session is one expansion attempt for one original term. Sessions are
// single-goroutine; concurrent queries get independent sessions.
type Session struct {
	exp *Expander

	state       State
	original    string
	language    string
	suggestions []Suggestion
	selected    *Suggestion
}

// Begin checks the original term against the index. A term with lexical
// hits needs no expansion: Begin returns (nil, nil) and the caller uses
// the normal search path. A zero-hit term yields a SEARCHED session.
func (e *Expander) Begin(ctx context.Context, term string) (*Session, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("term is required")
	}

	hits, err := e.searcher.LexicalSearch(ctx, term, 1, index.Filter{})
	if err != nil {
		return nil, fmt.Errorf("probing term %q: %w", term, err)
	}
	if len(hits) > 0 {
		return nil, nil
	}

	return &Session{exp: e, state: StateSearched, original: term}, nil
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Original returns the zero-hit term the session was opened for.
func (s *Session) Original() string { return s.original }

// Language returns the detected language of the original term. Empty
// before Expand.
func (s *Session) Language() string { return s.language }

// Suggestions returns the verified candidates. Empty before Expand.
func (s *Session) Suggestions() []Suggestion { return s.suggestions }

// Expand detects the term's language, asks the generator for a
// translation plus synonyms in both languages, and keeps only
// candidates with at least one lexical hit. On generator failure the
// session stays SEARCHED and ErrNoSuggestions is returned.
func (s *Session) Expand(ctx context.Context) ([]Suggestion, error) {
	if s.state != StateSearched {
		return nil, fmt.Errorf("%w: expand from %s", ErrInvalidState, s.state)
	}
	s.state = StateExpanding

	s.language = DetectLanguage(s.original)

	raw, err := s.exp.generator.Generate(ctx, expansionPrompt(s.original, s.language))
	if err != nil {
		s.exp.logger.Warn("expansion generation failed", "term", s.original, "error", err)
		s.state = StateSearched
		return nil, fmt.Errorf("%w: %v", ErrNoSuggestions, err)
	}

	candidates, err := parseExpansion(raw, s.original)
	if err != nil {
		s.exp.logger.Warn("unparseable expansion response", "term", s.original, "error", err)
		s.state = StateSearched
		return nil, fmt.Errorf("%w: %v", ErrNoSuggestions, err)
	}

	verified, err := s.verify(ctx, candidates)
	if err != nil {
		s.state = StateSearched
		return nil, err
	}
	if len(verified) == 0 {
		s.state = StateSearched
		return nil, ErrNoSuggestions
	}

	s.suggestions = verified
	s.state = StateSuggested
	s.exp.logger.Info("deep search suggestions ready",
		"term", s.original, "language", s.language, "count", len(verified))
	return verified, nil
}

// verify probes each candidate lexically; only hit-bearing candidates
// survive so the caller is never offered a term absent from the corpus.
func (s *Session) verify(ctx context.Context, candidates []candidate) ([]Suggestion, error) {
	var out []Suggestion
	for _, c := range candidates {
		hits, err := s.exp.searcher.LexicalSearch(ctx, c.term, verifyLimit, index.Filter{})
		if err != nil {
			return nil, fmt.Errorf("verifying candidate %q: %w", c.term, err)
		}
		if len(hits) == 0 {
			continue
		}
		out = append(out, Suggestion{Term: c.term, Language: c.language, Hits: len(hits)})
	}
	return out, nil
}

// Select picks exactly one suggested term. The term must be one of the
// session's suggestions.
func (s *Session) Select(term string) error {
	if s.state != StateSuggested {
		return fmt.Errorf("%w: select from %s", ErrInvalidState, s.state)
	}
	term = strings.TrimSpace(term)
	for i := range s.suggestions {
		if strings.EqualFold(s.suggestions[i].Term, term) {
			s.selected = &s.suggestions[i]
			s.state = StateSelected
			return nil
		}
	}
	return fmt.Errorf("term %q is not among the suggestions", term)
}

// Selected returns the chosen suggestion, or nil before Select.
func (s *Session) Selected() *Suggestion {
	return s.selected
}

// Persist stores the selection as an alias so future searches for the
// original term resolve without expansion.
func (s *Session) Persist(ctx context.Context) error {
	if s.state != StateSelected {
		return fmt.Errorf("%w: persist from %s", ErrInvalidState, s.state)
	}
	if s.exp.aliases == nil {
		return fmt.Errorf("alias persistence is not configured")
	}
	if err := s.exp.aliases.Add(ctx, s.selected.Term, s.original, s.language); err != nil {
		return fmt.Errorf("persisting alias %q -> %q: %w", s.original, s.selected.Term, err)
	}
	s.state = StatePersisted
	s.exp.logger.Info("deep search alias persisted",
		"keyword", s.selected.Term, "alias", s.original, "language", s.language)
	return nil
}

// Discard ends the session without persisting; the resolution was used
// once and is forgotten.
func (s *Session) Discard() error {
	if s.state != StateSelected {
		return fmt.Errorf("%w: discard from %s", ErrInvalidState, s.state)
	}
	s.state = StateDiscarded
	return nil
}
