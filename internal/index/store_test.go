package index_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlee0321/gddsearch/internal/index"
	"github.com/aaronlee0321/gddsearch/internal/testutil"
)

func newTestStore(t *testing.T) *index.Store {
	t.Helper()
	pool := testutil.Pool(t)
	testutil.Truncate(t, pool, "documents", "code_files")
	store, err := index.NewStore(pool, testutil.DiscardLogger())
	require.NoError(t, err)
	return store
}

func seedDocument(t *testing.T, store *index.Store, docID, name string, chunks []index.ChunkRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertDocument(ctx, index.Document{
		DocID: docID,
		Name:  name,
	}))
	require.NoError(t, store.ReplaceChunks(ctx, docID, chunks))
	require.NoError(t, store.SetDocumentStatus(ctx, docID, index.StatusIndexed, ""))
}

func chunkOf(docID, content, section string, i int) index.ChunkRecord {
	return index.ChunkRecord{
		ChunkID:        fmt.Sprintf("%s_chunk_%03d", docID, i),
		DocID:          docID,
		Content:        content,
		SectionHeading: section,
		ChunkIndex:     i,
		Embedding:      testutil.Vector(content, 1536),
	}
}

func TestStore_DocumentLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDocument(ctx, index.Document{
		DocID:    "weapons",
		Name:     "Weapons.md",
		FullText: "# Weapons\n\ncannon",
		PDFPath:  "Weapons.pdf",
	}))

	doc, err := store.GetDocument(ctx, "weapons")
	require.NoError(t, err)
	assert.Equal(t, index.StatusPending, doc.Status)
	assert.Equal(t, "Weapons.pdf", doc.PDFPath)
	assert.False(t, doc.CreatedAt.IsZero())

	require.NoError(t, store.SetDocumentStatus(ctx, "weapons", index.StatusFailed, "embedding provider down"))
	doc, err = store.GetDocument(ctx, "weapons")
	require.NoError(t, err)
	assert.Equal(t, index.StatusFailed, doc.Status)
	assert.Equal(t, "embedding provider down", doc.FailureReason)

	// The reason clears on any non-failed transition.
	require.NoError(t, store.SetDocumentStatus(ctx, "weapons", index.StatusIndexed, "stale"))
	doc, err = store.GetDocument(ctx, "weapons")
	require.NoError(t, err)
	assert.Empty(t, doc.FailureReason)

	docs, err := store.ListDocuments(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, store.DeleteDocument(ctx, "weapons"))
	_, err = store.GetDocument(ctx, "weapons")
	assert.ErrorIs(t, err, index.ErrNotFound)
	assert.ErrorIs(t, store.DeleteDocument(ctx, "weapons"), index.ErrNotFound)
	assert.ErrorIs(t, store.SetDocumentStatus(ctx, "weapons", index.StatusIndexed, ""), index.ErrNotFound)
}

func TestStore_UpsertPreservesStatusOfExistingDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store, "weapons", "Weapons.md", []index.ChunkRecord{
		chunkOf("weapons", "the cannon deals heavy damage to armor", "Cannon", 0),
	})

	// A re-index starts by upserting the document again; the status must
	// stay indexed so searches keep serving the current chunk set.
	require.NoError(t, store.UpsertDocument(ctx, index.Document{
		DocID:    "weapons",
		Name:     "Weapons.md",
		FullText: "# Weapons\n\nrevised",
		Status:   index.StatusPending,
	}))

	doc, err := store.GetDocument(ctx, "weapons")
	require.NoError(t, err)
	assert.Equal(t, index.StatusIndexed, doc.Status)
	assert.Equal(t, "# Weapons\n\nrevised", doc.FullText)

	results, err := store.LexicalSearch(ctx, "armor", 10, index.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, results, "existing chunks stay searchable during re-index")
}

func TestStore_ReplaceChunksSwapsAtomically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store, "tanks", "Tanks.md", []index.ChunkRecord{
		chunkOf("tanks", "old cannon text", "Cannon", 0),
		chunkOf("tanks", "old armor text", "Armor", 1),
	})

	require.NoError(t, store.ReplaceChunks(ctx, "tanks", []index.ChunkRecord{
		chunkOf("tanks", "new cannon text", "Cannon", 0),
	}))

	chunks, err := store.ChunksOf(ctx, "tanks")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new cannon text", chunks[0].Content)
}

func TestStore_ReplaceChunksConflict(t *testing.T) {
	pool := testutil.Pool(t)
	testutil.Truncate(t, pool, "documents")
	store, err := index.NewStore(pool, testutil.DiscardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertDocument(ctx, index.Document{DocID: "tanks", Name: "Tanks.md"}))

	// Hold the document's advisory lock from a second transaction.
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	var locked bool
	require.NoError(t, tx.QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock(hashtext($1))`, "tanks").Scan(&locked))
	require.True(t, locked)

	err = store.ReplaceChunks(ctx, "tanks", []index.ChunkRecord{
		chunkOf("tanks", "contested", "Armor", 0),
	})
	assert.ErrorIs(t, err, index.ErrIndexConflict)

	// A different document is unaffected by the held lock.
	require.NoError(t, store.UpsertDocument(ctx, index.Document{DocID: "infantry", Name: "Infantry.md"}))
	assert.NoError(t, store.ReplaceChunks(ctx, "infantry", []index.ChunkRecord{
		chunkOf("infantry", "rifle squad", "Units", 0),
	}))
}

func TestStore_LexicalSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store, "weapons", "Weapons.md", []index.ChunkRecord{
		chunkOf("weapons", "the cannon deals heavy damage to armor", "Cannon", 0),
		chunkOf("weapons", "frontal armor absorbs most damage", "Armor", 1),
		chunkOf("weapons", "xe tăng di chuyển chậm", "Movement", 2),
	})

	t.Run("ranked match", func(t *testing.T) {
		results, err := store.LexicalSearch(ctx, "armor", 10, index.Filter{})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Weapons.md", results[0].DocName)
		assert.Greater(t, results[0].Score, float32(0))
	})

	t.Run("section filter", func(t *testing.T) {
		results, err := store.LexicalSearch(ctx, "armor", 10, index.Filter{Section: "Armor"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "weapons_chunk_001", results[0].ChunkID)
	})

	t.Run("document filter by name", func(t *testing.T) {
		results, err := store.LexicalSearch(ctx, "armor", 10, index.Filter{DocID: "Weapons.md"})
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = store.LexicalSearch(ctx, "armor", 10, index.Filter{DocID: "other"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("vietnamese diacritics", func(t *testing.T) {
		results, err := store.LexicalSearch(ctx, "xe tăng", 10, index.Filter{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "weapons_chunk_002", results[0].ChunkID)
	})

	t.Run("empty query", func(t *testing.T) {
		results, err := store.LexicalSearch(ctx, "   ", 10, index.Filter{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("non-indexed documents stay invisible", func(t *testing.T) {
		require.NoError(t, store.SetDocumentStatus(ctx, "weapons", index.StatusPending, ""))
		defer func() {
			require.NoError(t, store.SetDocumentStatus(ctx, "weapons", index.StatusIndexed, ""))
		}()

		results, err := store.LexicalSearch(ctx, "armor", 10, index.Filter{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestStore_VectorSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store, "weapons", "Weapons.md", []index.ChunkRecord{
		chunkOf("weapons", "the cannon deals heavy damage", "Cannon", 0),
		chunkOf("weapons", "frontal armor absorbs most damage", "Armor", 1),
	})

	query := testutil.Vector("frontal armor absorbs most damage", 1536)

	results, err := store.VectorSearch(ctx, query, 10, index.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "weapons_chunk_001", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001)

	results, err = store.VectorSearch(ctx, query, 10, index.Filter{Section: "Cannon"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "Cannon", r.SectionHeading)
	}

	results, err = store.VectorSearch(ctx, nil, 10, index.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_CodeSide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	path := "Assets/Scripts/Tank.cs"
	require.NoError(t, store.UpsertCodeFile(ctx, index.CodeFile{
		FilePath: path,
		FileName: "Tank.cs",
		Language: "csharp",
	}))

	fire := "public void Fire() { }"
	require.NoError(t, store.ReplaceCodeChunks(ctx, path, []index.CodeChunkRecord{
		{
			FilePath:   path,
			ChunkType:  "method",
			ClassName:  "Tank",
			MethodName: "Fire",
			SourceCode: fire,
			ChunkIndex: 0,
			Embedding:  testutil.Vector(fire, 1536),
		},
	}))

	files, err := store.ListCodeFiles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "csharp", files[0].Language)

	results, err := store.CodeVectorSearch(ctx, testutil.Vector(fire, 1536), 10, "Tank.cs", "method")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Fire", results[0].MethodName)

	results, err = store.CodeVectorSearch(ctx, testutil.Vector(fire, 1536), 10, "", "class")
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, store.DeleteCodeFile(ctx, path))
	assert.ErrorIs(t, store.DeleteCodeFile(ctx, path), index.ErrNotFound)
}
