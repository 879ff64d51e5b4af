package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
)

// SimilarityThreshold is the minimum cosine similarity for a vector hit.
const SimilarityThreshold = 0.2

// ilikeFloorScore is assigned to substring-only matches that the
// full-text parser scored zero (diacritic-heavy Vietnamese terms fall
// through plainto_tsquery's 'simple' tokenization for some inputs).
const ilikeFloorScore = 0.01

// SearchResult is a ranked lexical hit. Ephemeral: produced per query,
// never persisted.
type SearchResult struct {
	DocID          string
	DocName        string
	ChunkID        string
	Content        string
	SectionHeading string
	ChunkIndex     int
	Score          float32
}

// VectorResult is a ranked semantic hit.
type VectorResult struct {
	ChunkID        string
	DocID          string
	Content        string
	SectionHeading string
	ChunkIndex     int
	Similarity     float32
}

// Filter restricts a search to a single document and/or section.
// Zero value means unfiltered.
type Filter struct {
	DocID   string
	Section string
}

// LexicalSearch runs term-frequency ranked full-text search over chunk
// content, descending by relevance. Equal scores keep chunk_index order
// for determinism. An ILIKE fallback catches terms the 'simple'
// text-search configuration tokenizes away.
func (s *Store) LexicalSearch(ctx context.Context, query string, limit int, f Filter) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.chunk_id, c.doc_id, d.name, c.content, c.section_heading, c.chunk_index,
		        GREATEST(
		          ts_rank_cd(c.search_text, plainto_tsquery('simple', $1), 1),
		          CASE WHEN c.content ILIKE '%' || $1 || '%' THEN $5::float4 ELSE 0 END
		        ) AS score
		 FROM chunks c
		 JOIN documents d ON d.doc_id = c.doc_id
		 WHERE d.status = 'indexed'
		   AND ($2 = '' OR c.doc_id = $2 OR d.name = $2)
		   AND ($3 = '' OR c.section_heading = $3)
		   AND (c.search_text @@ plainto_tsquery('simple', $1)
		        OR c.content ILIKE '%' || $1 || '%')
		 ORDER BY score DESC, c.chunk_index ASC
		 LIMIT $4`,
		query, f.DocID, f.Section, limit, float32(ilikeFloorScore),
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.DocName, &r.Content, &r.SectionHeading, &r.ChunkIndex, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning lexical result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lexical results: %w", err)
	}
	return results, nil
}

// VectorSearch runs nearest-neighbor cosine search over chunk
// embeddings. Results below SimilarityThreshold are dropped.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, limit int, f Filter) ([]VectorResult, error) {
	if len(queryVec) == 0 {
		return []VectorResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(queryVec)

	rows, err := s.pool.Query(ctx,
		`SELECT c.chunk_id, c.doc_id, c.content, c.section_heading, c.chunk_index,
		        1 - (c.embedding <=> $1) AS similarity
		 FROM chunks c
		 JOIN documents d ON d.doc_id = c.doc_id
		 WHERE d.status = 'indexed'
		   AND c.embedding IS NOT NULL
		   AND ($2 = '' OR c.doc_id = $2 OR d.name = $2)
		   AND ($3 = '' OR c.section_heading = $3)
		   AND 1 - (c.embedding <=> $1) >= $4
		 ORDER BY c.embedding <=> $1, c.chunk_index ASC
		 LIMIT $5`,
		vec, f.DocID, f.Section, SimilarityThreshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []VectorResult
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.Content, &r.SectionHeading, &r.ChunkIndex, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning vector result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector results: %w", err)
	}
	return results, nil
}
