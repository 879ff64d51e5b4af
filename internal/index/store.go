// Package index implements the hybrid index store: documents, chunks,
// code files and code chunks persisted in PostgreSQL, with lexical
// (full-text rank) and vector (pgvector cosine) read paths.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrIndexConflict indicates another writer is re-indexing the same
	// document. The caller should retry after the in-flight operation
	// completes; no partial merge ever happens.
	ErrIndexConflict = errors.New("concurrent indexing of the same document")
)

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusIndexed DocumentStatus = "indexed"
	StatusFailed  DocumentStatus = "failed"
)

// Document is a persisted source document.
type Document struct {
	DocID         string
	Name          string
	FullText      string
	Status        DocumentStatus
	FailureReason string
	PDFPath       string
	CreatedAt     time.Time
}

// ChunkRecord is a chunk row as written by the ingestion pipeline.
// Embedding must be either nil or exactly the schema width; width is
// enforced upstream by the embedding normalizer, never here.
type ChunkRecord struct {
	ChunkID        string
	DocID          string
	Content        string
	SectionHeading string
	ChunkIndex     int
	Embedding      []float32
}

// documentCols is the standard SELECT column list for document scans.
const documentCols = `doc_id, name, full_text, status,
	COALESCE(failure_reason, ''), COALESCE(pdf_path, ''), created_at`

// Store persists the hybrid index in PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates an index Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// UpsertDocument inserts or updates a document row. Chunks are untouched;
// use ReplaceChunks to swap the chunk set.
//
// Status and failure reason apply to the initial insert only: an
// existing document keeps both, so an indexed document stays visible to
// searches while it is being re-indexed. Lifecycle transitions go
// through SetDocumentStatus.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.DocID == "" {
		return fmt.Errorf("doc_id is required")
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (doc_id, name, full_text, status, failure_reason, pdf_path)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		 ON CONFLICT (doc_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     full_text = EXCLUDED.full_text,
		     pdf_path = COALESCE(EXCLUDED.pdf_path, documents.pdf_path)`,
		doc.DocID, doc.Name, doc.FullText, doc.Status, doc.FailureReason, doc.PDFPath,
	)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.DocID, err)
	}
	return nil
}

// SetDocumentStatus records a lifecycle transition. The failure reason is
// cleared on any non-failed status.
func (s *Store) SetDocumentStatus(ctx context.Context, docID string, status DocumentStatus, reason string) error {
	if status != StatusFailed {
		reason = ""
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $2, failure_reason = NULLIF($3, '') WHERE doc_id = $1`,
		docID, status, reason,
	)
	if err != nil {
		return fmt.Errorf("updating status for %q: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, docID)
	}
	return nil
}

// GetDocument fetches a single document by ID.
func (s *Store) GetDocument(ctx context.Context, docID string) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE doc_id = $1`, docID)

	var d Document
	err := row.Scan(&d.DocID, &d.Name, &d.FullText, &d.Status, &d.FailureReason, &d.PDFPath, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching document %q: %w", docID, err)
	}
	return &d, nil
}

// ListDocuments returns documents ordered by creation time, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentCols+` FROM documents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.DocID, &d.Name, &d.FullText, &d.Status, &d.FailureReason, &d.PDFPath, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document; its chunks go with it via
// ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, docID)
	}
	s.logger.Debug("deleted document", "doc_id", docID)
	return nil
}

// ReplaceChunks atomically swaps the chunk set of a document:
// delete-old-then-insert-new inside one transaction, so concurrent
// readers never observe a mixed old/new set.
//
// Concurrent replacement of the same document is rejected with
// ErrIndexConflict via a per-document advisory lock; distinct documents
// replace concurrently. The lock releases at commit/rollback.
func (s *Store) ReplaceChunks(ctx context.Context, docID string, chunks []ChunkRecord) error {
	if docID == "" {
		return fmt.Errorf("doc_id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var locked bool
	if err := tx.QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock(hashtext($1))`, docID,
	).Scan(&locked); err != nil {
		return fmt.Errorf("acquiring advisory lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %q", ErrIndexConflict, docID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("deleting old chunks for %q: %w", docID, err)
	}

	for _, c := range chunks {
		var vec *pgvector.Vector
		if c.Embedding != nil {
			v := pgvector.NewVector(c.Embedding)
			vec = &v
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO chunks (chunk_id, doc_id, content, section_heading, chunk_index, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ChunkID, docID, c.Content, c.SectionHeading, c.ChunkIndex, vec,
		); err != nil {
			return fmt.Errorf("inserting chunk %q: %w", c.ChunkID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk replacement: %w", err)
	}

	s.logger.Debug("replaced chunks", "doc_id", docID, "count", len(chunks))
	return nil
}

// ChunksOf returns all chunks of a document in chunk_index order,
// without embeddings. Used for deterministic re-assembly.
func (s *Store) ChunksOf(ctx context.Context, docID string) ([]ChunkRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chunk_id, doc_id, content, section_heading, chunk_index
		 FROM chunks WHERE doc_id = $1 ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chunks for %q: %w", docID, err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Content, &c.SectionHeading, &c.ChunkIndex); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
