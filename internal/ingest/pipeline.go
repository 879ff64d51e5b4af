// Package ingest drives the indexing path: source → chunker → embedding
// normalizer → hybrid index store, with per-document status tracking.
//
// A document is never partially indexed. Embedding is all-or-nothing:
// one failed chunk after the retry budget fails the whole document and
// the document row is marked failed with a reason. Re-indexing an
// already indexed document keeps its previous chunk set visible to
// searches until the new set commits; a failed re-index leaves the
// document in the failed state until a successful re-run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aaronlee0321/gddsearch/internal/chunk"
	"github.com/aaronlee0321/gddsearch/internal/index"
)

// ErrIngestionFailed wraps any failure that left a document in the
// failed state. The document's failure_reason column carries the
// detail.
var ErrIngestionFailed = errors.New("ingestion failed")

// Store is the write side of the hybrid index consumed by the pipeline.
type Store interface {
	UpsertDocument(ctx context.Context, doc index.Document) error
	SetDocumentStatus(ctx context.Context, docID string, status index.DocumentStatus, reason string) error
	ReplaceChunks(ctx context.Context, docID string, chunks []index.ChunkRecord) error
	UpsertCodeFile(ctx context.Context, f index.CodeFile) error
	ReplaceCodeChunks(ctx context.Context, filePath string, chunks []index.CodeChunkRecord) error
}

// Embedder produces a schema-width vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Converter turns a non-markdown source file into markdown. Wired for
// PDF sources; the conversion itself lives outside this module.
type Converter interface {
	ToMarkdown(ctx context.Context, path string) (string, error)
}

// Options configure a Pipeline.
type Options struct {
	ChunkSize    int
	OverlapRatio float64
	// Parallelism bounds concurrent documents during directory
	// ingestion. Same-document serialization comes from the store's
	// advisory lock, not from here.
	Parallelism int
}

// Pipeline indexes markdown documents and source files.
type Pipeline struct {
	store     Store
	embedder  Embedder
	converter Converter
	opts      Options
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline. converter may be nil; PDF sources are
// then skipped during directory walks and rejected by IndexFile.
func NewPipeline(store Store, embedder Embedder, converter Converter, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		embedder:  embedder,
		converter: converter,
		opts:      opts,
		logger:    logger.With("component", "ingest"),
	}, nil
}

// IndexMarkdown chunks, embeds and stores one markdown document under
// the doc ID derived from name. Returns the doc ID.
func (p *Pipeline) IndexMarkdown(ctx context.Context, name, markdown string) (string, error) {
	docID := DocIDFor(name)
	jobID := uuid.NewString()
	logger := p.logger.With("doc_id", docID, "job_id", jobID)

	doc := index.Document{
		DocID:    docID,
		Name:     name,
		FullText: markdown,
		Status:   index.StatusPending,
		PDFPath:  PDFNameFor(name),
	}
	if err := p.store.UpsertDocument(ctx, doc); err != nil {
		return docID, fmt.Errorf("upserting document %s: %w", docID, err)
	}

	chunks := chunk.Markdown(docID, markdown, chunk.Options{
		ChunkSize:    p.opts.ChunkSize,
		OverlapRatio: p.opts.OverlapRatio,
	})

	records, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return docID, p.fail(ctx, logger, docID, fmt.Errorf("embedding chunks: %w", err))
	}

	if err := p.store.ReplaceChunks(ctx, docID, records); err != nil {
		if errors.Is(err, index.ErrIndexConflict) {
			// Another writer owns this document right now; its
			// outcome decides the final status.
			return docID, err
		}
		return docID, p.fail(ctx, logger, docID, fmt.Errorf("replacing chunks: %w", err))
	}

	if err := p.store.SetDocumentStatus(ctx, docID, index.StatusIndexed, ""); err != nil {
		return docID, fmt.Errorf("marking document indexed: %w", err)
	}

	logger.Info("document indexed", "name", name, "chunks", len(records))
	return docID, nil
}

// IndexCodeFile chunks a source file along declaration boundaries,
// embeds each unit and stores it on the code side of the index.
func (p *Pipeline) IndexCodeFile(ctx context.Context, path, source string) error {
	fileName := filepath.Base(path)
	logger := p.logger.With("file", path)

	if err := p.store.UpsertCodeFile(ctx, index.CodeFile{
		FilePath: path,
		FileName: fileName,
		Language: languageOf(path),
	}); err != nil {
		return fmt.Errorf("upserting code file %s: %w", path, err)
	}

	chunks := chunk.Code(path, source, chunk.Options{
		ChunkSize:    p.opts.ChunkSize,
		OverlapRatio: p.opts.OverlapRatio,
	})

	records := make([]index.CodeChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		vec, err := p.embedder.Embed(ctx, c.Content)
		if err != nil {
			return fmt.Errorf("%w: embedding %s: %v", ErrIngestionFailed, path, err)
		}
		records = append(records, index.CodeChunkRecord{
			FilePath:   path,
			ChunkType:  string(c.Type),
			ClassName:  c.ClassName,
			MethodName: c.MethodName,
			SourceCode: c.Content,
			ChunkIndex: c.Index,
			Embedding:  vec,
		})
	}

	if err := p.store.ReplaceCodeChunks(ctx, path, records); err != nil {
		return fmt.Errorf("replacing code chunks for %s: %w", path, err)
	}

	logger.Info("code file indexed", "chunks", len(records))
	return nil
}

// IndexFile routes a single file by extension: markdown directly, PDF
// through the converter, anything else to the code path.
func (p *Pipeline) IndexFile(ctx context.Context, path string, code bool) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case code && codeExtensions[ext]:
		source, err := readFile(path)
		if err != nil {
			return err
		}
		return p.IndexCodeFile(ctx, path, source)
	case ext == ".md" || ext == ".markdown" || ext == ".txt":
		text, err := readFile(path)
		if err != nil {
			return err
		}
		_, err = p.IndexMarkdown(ctx, nameOf(path), text)
		return err
	case ext == ".pdf":
		if p.converter == nil {
			return fmt.Errorf("no converter configured for %s", path)
		}
		markdown, err := p.converter.ToMarkdown(ctx, path)
		if err != nil {
			return fmt.Errorf("converting %s: %w", path, err)
		}
		_, err = p.IndexMarkdown(ctx, nameOf(path), markdown)
		return err
	default:
		return fmt.Errorf("unsupported file type %q", ext)
	}
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([]index.ChunkRecord, error) {
	records := make([]index.ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		vec, err := p.embedder.Embed(ctx, c.Content)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		records = append(records, index.ChunkRecord{
			ChunkID:        c.ID,
			DocID:          c.DocID,
			Content:        c.Content,
			SectionHeading: c.SectionHeading,
			ChunkIndex:     c.Index,
			Embedding:      vec,
		})
	}
	return records, nil
}

// fail records the failure on the document row and wraps the cause in
// ErrIngestionFailed.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, docID string, cause error) error {
	if err := p.store.SetDocumentStatus(ctx, docID, index.StatusFailed, cause.Error()); err != nil {
		logger.Error("recording ingestion failure", "cause", cause, "error", err)
	}
	logger.Warn("document ingestion failed", "cause", cause)
	return fmt.Errorf("%w: %v", ErrIngestionFailed, cause)
}
