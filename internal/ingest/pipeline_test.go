package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlee0321/gddsearch/internal/index"
	"github.com/aaronlee0321/gddsearch/internal/testutil"
)

type memStore struct {
	docs       map[string]index.Document
	chunks     map[string][]index.ChunkRecord
	codeFiles  map[string]index.CodeFile
	codeChunks map[string][]index.CodeChunkRecord

	replaceErr      error
	statusAtReplace index.DocumentStatus
}

func newMemStore() *memStore {
	return &memStore{
		docs:       map[string]index.Document{},
		chunks:     map[string][]index.ChunkRecord{},
		codeFiles:  map[string]index.CodeFile{},
		codeChunks: map[string][]index.CodeChunkRecord{},
	}
}

func (m *memStore) UpsertDocument(_ context.Context, doc index.Document) error {
	// Like the real store, an existing document keeps its status and
	// failure reason; only content fields are refreshed.
	if prev, ok := m.docs[doc.DocID]; ok {
		doc.Status = prev.Status
		doc.FailureReason = prev.FailureReason
	}
	m.docs[doc.DocID] = doc
	return nil
}

func (m *memStore) SetDocumentStatus(_ context.Context, docID string, status index.DocumentStatus, reason string) error {
	doc, ok := m.docs[docID]
	if !ok {
		return fmt.Errorf("unknown doc %q", docID)
	}
	doc.Status = status
	doc.FailureReason = reason
	m.docs[docID] = doc
	return nil
}

func (m *memStore) ReplaceChunks(_ context.Context, docID string, chunks []index.ChunkRecord) error {
	m.statusAtReplace = m.docs[docID].Status
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.chunks[docID] = chunks
	return nil
}

func (m *memStore) UpsertCodeFile(_ context.Context, f index.CodeFile) error {
	m.codeFiles[f.FilePath] = f
	return nil
}

func (m *memStore) ReplaceCodeChunks(_ context.Context, filePath string, chunks []index.CodeChunkRecord) error {
	m.codeChunks[filePath] = chunks
	return nil
}

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return testutil.Vector(text, 1536), nil
}

func newTestPipeline(t *testing.T, store Store, emb Embedder) *Pipeline {
	t.Helper()
	p, err := NewPipeline(store, emb, nil, Options{ChunkSize: 512, OverlapRatio: 0.2}, testutil.DiscardLogger())
	require.NoError(t, err)
	return p
}

const tankDoc = `# Weapons

## Cannon

The main cannon deals 120 damage per shot.

## Armor

Frontal armor absorbs 80 percent of incoming damage.
`

func TestIndexMarkdown_HappyPath(t *testing.T) {
	store := newMemStore()
	emb := &stubEmbedder{}
	p := newTestPipeline(t, store, emb)

	docID, err := p.IndexMarkdown(context.Background(), "Tank Weapons.md", tankDoc)
	require.NoError(t, err)
	assert.Equal(t, "tank_weapons", docID)

	doc := store.docs[docID]
	assert.Equal(t, index.StatusIndexed, doc.Status)
	assert.Empty(t, doc.FailureReason)
	assert.Equal(t, "Tank Weapons.pdf", doc.PDFPath)
	assert.Equal(t, tankDoc, doc.FullText)

	chunks := store.chunks[docID]
	require.NotEmpty(t, chunks)
	assert.Equal(t, "tank_weapons_chunk_000", chunks[0].ChunkID)
	for i, c := range chunks {
		assert.Equal(t, docID, c.DocID)
		assert.Equal(t, i, c.ChunkIndex)
		assert.Len(t, c.Embedding, 1536)
	}
	assert.Equal(t, len(chunks), emb.calls)
}

func TestIndexMarkdown_ReindexKeepsIndexedVisible(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(t, store, &stubEmbedder{})
	ctx := context.Background()

	docID, err := p.IndexMarkdown(ctx, "Tank Weapons.md", tankDoc)
	require.NoError(t, err)
	require.Equal(t, index.StatusIndexed, store.docs[docID].Status)

	_, err = p.IndexMarkdown(ctx, "Tank Weapons.md", tankDoc+"\n## Engine\n\nrear-mounted\n")
	require.NoError(t, err)

	// The document must still be serving its previous chunk set during
	// the chunk+embed window, which means status stays indexed until
	// the new set lands.
	assert.Equal(t, index.StatusIndexed, store.statusAtReplace)
	assert.Equal(t, index.StatusIndexed, store.docs[docID].Status)
}

func TestIndexMarkdown_EmbedFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(t, store, &stubEmbedder{err: errors.New("provider down")})

	docID, err := p.IndexMarkdown(context.Background(), "Tank Weapons.md", tankDoc)
	require.ErrorIs(t, err, ErrIngestionFailed)

	doc := store.docs[docID]
	assert.Equal(t, index.StatusFailed, doc.Status)
	assert.Contains(t, doc.FailureReason, "provider down")
	assert.Empty(t, store.chunks[docID], "no chunk may land after a failed embed")
}

func TestIndexMarkdown_ConflictPassesThrough(t *testing.T) {
	store := newMemStore()
	store.replaceErr = index.ErrIndexConflict
	p := newTestPipeline(t, store, &stubEmbedder{})

	docID, err := p.IndexMarkdown(context.Background(), "Tank Weapons.md", tankDoc)
	require.ErrorIs(t, err, index.ErrIndexConflict)

	// The concurrent writer owns the status; this writer must not
	// stamp the document failed.
	assert.NotEqual(t, index.StatusFailed, store.docs[docID].Status)
}

func TestIndexMarkdown_StorageFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	store.replaceErr = errors.New("connection reset")
	p := newTestPipeline(t, store, &stubEmbedder{})

	docID, err := p.IndexMarkdown(context.Background(), "Tank Weapons.md", tankDoc)
	require.ErrorIs(t, err, ErrIngestionFailed)
	assert.Equal(t, index.StatusFailed, store.docs[docID].Status)
}

const tankSource = `public class Tank
{
    private float armor = 80f;

    public void Fire()
    {
        // fire the cannon
    }
}
`

func TestIndexCodeFile(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(t, store, &stubEmbedder{})

	path := "Assets/Scripts/Tank.cs"
	require.NoError(t, p.IndexCodeFile(context.Background(), path, tankSource))

	assert.Equal(t, "csharp", store.codeFiles[path].Language)
	assert.Equal(t, "Tank.cs", store.codeFiles[path].FileName)

	chunks := store.codeChunks[path]
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, path, c.FilePath)
		assert.Len(t, c.Embedding, 1536)
	}
}

func TestIndexFile_Routing(t *testing.T) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "Armor Guide.md")
	require.NoError(t, os.WriteFile(mdPath, []byte(tankDoc), 0o644))
	csPath := filepath.Join(dir, "Tank.cs")
	require.NoError(t, os.WriteFile(csPath, []byte(tankSource), 0o644))

	store := newMemStore()
	p := newTestPipeline(t, store, &stubEmbedder{})
	ctx := context.Background()

	require.NoError(t, p.IndexFile(ctx, mdPath, false))
	assert.Contains(t, store.docs, "armor_guide")

	require.NoError(t, p.IndexFile(ctx, csPath, true))
	assert.Contains(t, store.codeFiles, csPath)

	// PDF without a converter is an explicit error, not a silent skip.
	assert.Error(t, p.IndexFile(ctx, filepath.Join(dir, "manual.pdf"), false))
	assert.Error(t, p.IndexFile(ctx, filepath.Join(dir, "data.bin"), false))
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("weapons.md", tankDoc)
	write("notes.txt", "turret rotation speed is 30 degrees per second")
	write("sprites.xyz", "binary-ish")
	write("drafts/old.md", "# Old\n\ndraft")
	write(".gitignore", "drafts/\n")

	store := newMemStore()
	p := newTestPipeline(t, store, &stubEmbedder{})

	report, err := p.IndexDirectory(context.Background(), dir, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 0, report.Failed)
	// sprites.xyz and .gitignore itself are unsupported types.
	assert.Equal(t, 2, report.Skipped)

	assert.Contains(t, store.docs, "weapons")
	assert.Contains(t, store.docs, "notes")
	assert.NotContains(t, store.docs, "old", "gitignored directories stay out of the index")
}

func TestIndexDirectory_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A\n\nalpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# B\n\nbravo"), 0o644))

	store := newMemStore()
	p := newTestPipeline(t, store, &stubEmbedder{err: errors.New("provider down")})

	report, err := p.IndexDirectory(context.Background(), dir, false)
	require.NoError(t, err, "per-file failures must not fail the walk")
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 2, report.Failed)
}

func TestDocIDFor(t *testing.T) {
	assert.Equal(t, "tank_armor_v2", DocIDFor("Tank Armor v2.md"))
	assert.Equal(t, "tank_armor_v2", DocIDFor("tank armor v2"))
	assert.Equal(t, "vu_khi", DocIDFor("Vu Khi.markdown"))
	assert.Equal(t, "a_b", DocIDFor("--A__B--.txt"))
}

func TestPDFNameFor(t *testing.T) {
	assert.Equal(t, "Tank Armor v2.pdf", PDFNameFor("Tank Armor v2.md"))
	assert.Equal(t, "notes.pdf", PDFNameFor("notes"))
}

func TestLanguageOf(t *testing.T) {
	assert.Equal(t, "csharp", languageOf("Tank.cs"))
	assert.Equal(t, "go", languageOf("main.go"))
	assert.Equal(t, "typescript", languageOf("src/hud.ts"))
	assert.Equal(t, "unknown", languageOf("README"))
}
