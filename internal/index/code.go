package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// CodeFile is an indexed source file.
type CodeFile struct {
	FilePath  string
	FileName  string
	Language  string
	CreatedAt time.Time
}

// CodeChunkRecord is a code chunk row as written by the ingestion
// pipeline.
type CodeChunkRecord struct {
	FilePath   string
	ChunkType  string // "class", "method" or "fields"
	ClassName  string
	MethodName string
	SourceCode string
	ChunkIndex int
	Embedding  []float32
}

// CodeResult is a ranked code search hit.
type CodeResult struct {
	FilePath   string
	ChunkType  string
	ClassName  string
	MethodName string
	SourceCode string
	Similarity float32
}

// UpsertCodeFile inserts or updates a code file row.
func (s *Store) UpsertCodeFile(ctx context.Context, f CodeFile) error {
	if f.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO code_files (file_path, file_name, language)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (file_path) DO UPDATE
		 SET file_name = EXCLUDED.file_name, language = EXCLUDED.language`,
		f.FilePath, f.FileName, f.Language,
	)
	if err != nil {
		return fmt.Errorf("upserting code file %q: %w", f.FilePath, err)
	}
	return nil
}

// ReplaceCodeChunks atomically swaps the chunk set of a source file,
// with the same advisory-lock discipline as ReplaceChunks.
func (s *Store) ReplaceCodeChunks(ctx context.Context, filePath string, chunks []CodeChunkRecord) error {
	if filePath == "" {
		return fmt.Errorf("file_path is required")
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
		`SELECT pg_try_advisory_xact_lock(hashtext($1))`, filePath,
	).Scan(&locked); err != nil {
		return fmt.Errorf("acquiring advisory lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %q", ErrIndexConflict, filePath)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM code_chunks WHERE file_path = $1`, filePath); err != nil {
		return fmt.Errorf("deleting old code chunks for %q: %w", filePath, err)
	}

	for _, c := range chunks {
		var vec *pgvector.Vector
		if c.Embedding != nil {
			v := pgvector.NewVector(c.Embedding)
			vec = &v
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO code_chunks (file_path, chunk_type, class_name, method_name, source_code, chunk_index, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			filePath, c.ChunkType, c.ClassName, c.MethodName, c.SourceCode, c.ChunkIndex, vec,
		); err != nil {
			return fmt.Errorf("inserting code chunk %d of %q: %w", c.ChunkIndex, filePath, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing code chunk replacement: %w", err)
	}

	s.logger.Debug("replaced code chunks", "file_path", filePath, "count", len(chunks))
	return nil
}

// DeleteCodeFile removes a code file and, via cascade, its chunks.
func (s *Store) DeleteCodeFile(ctx context.Context, filePath string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM code_files WHERE file_path = $1`, filePath)
	if err != nil {
		return fmt.Errorf("deleting code file %q: %w", filePath, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, filePath)
	}
	return nil
}

// ListCodeFiles returns indexed code files, newest first.
func (s *Store) ListCodeFiles(ctx context.Context, limit int) ([]CodeFile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT file_path, file_name, language, created_at
		 FROM code_files ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing code files: %w", err)
	}
	defer rows.Close()

	var files []CodeFile
	for rows.Next() {
		var f CodeFile
		if err := rows.Scan(&f.FilePath, &f.FileName, &f.Language, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning code file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating code files: %w", err)
	}
	return files, nil
}

// CodeVectorSearch runs cosine nearest-neighbor search over code chunks.
// fileName filters by path suffix match (the UI sends bare filenames);
// chunkType restricts to one construct kind when non-empty.
func (s *Store) CodeVectorSearch(ctx context.Context, queryVec []float32, limit int, fileName, chunkType string) ([]CodeResult, error) {
	if len(queryVec) == 0 {
		return []CodeResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	vec := pgvector.NewVector(queryVec)

	rows, err := s.pool.Query(ctx,
		`SELECT file_path, chunk_type, class_name, method_name, source_code,
		        1 - (embedding <=> $1) AS similarity
		 FROM code_chunks
		 WHERE embedding IS NOT NULL
		   AND ($2 = '' OR file_path ILIKE '%' || $2)
		   AND ($3 = '' OR chunk_type = $3)
		   AND 1 - (embedding <=> $1) >= $4
		 ORDER BY embedding <=> $1
		 LIMIT $5`,
		vec, fileName, chunkType, SimilarityThreshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("code vector search: %w", err)
	}
	defer rows.Close()

	var results []CodeResult
	for rows.Next() {
		var r CodeResult
		if err := rows.Scan(&r.FilePath, &r.ChunkType, &r.ClassName, &r.MethodName, &r.SourceCode, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning code result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating code results: %w", err)
	}
	return results, nil
}
