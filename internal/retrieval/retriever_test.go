package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlee0321/gddsearch/internal/index"
	"github.com/aaronlee0321/gddsearch/internal/testutil"
)

// fakeSearcher scripts both rank paths.
type fakeSearcher struct {
	lexical        map[string][]index.SearchResult
	vector         []index.VectorResult
	vectorErr      error
	lexicalQueries []string
	vectorCalls    int
	lastFilter     index.Filter
}

func (f *fakeSearcher) LexicalSearch(ctx context.Context, query string, limit int, filt index.Filter) ([]index.SearchResult, error) {
	f.lexicalQueries = append(f.lexicalQueries, query)
	f.lastFilter = filt
	return f.lexical[query], nil
}

func (f *fakeSearcher) VectorSearch(ctx context.Context, vec []float32, limit int, filt index.Filter) ([]index.VectorResult, error) {
	f.vectorCalls++
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vector, nil
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return testutil.Vector(text, 8), nil
}

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type fakeAliases map[string][]string

func (f fakeAliases) Resolve(term string) []string { return f[term] }

func lex(chunkID string, chunkIndex int, score float32) index.SearchResult {
	return index.SearchResult{DocID: "d", ChunkID: chunkID, ChunkIndex: chunkIndex, Score: score}
}

func TestRetrieve_UnionMergesAndRenormalizes(t *testing.T) {
	s := &fakeSearcher{
		lexical: map[string][]index.SearchResult{
			"armor": {lex("c1", 0, 0.4), lex("c2", 1, 0.2)},
		},
		vector: []index.VectorResult{
			{ChunkID: "c2", ChunkIndex: 1, Similarity: 0.9},
			{ChunkID: "c3", ChunkIndex: 2, Similarity: 0.6},
		},
	}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "armor", Options{Strategy: MergeUnion})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Lexical scores are normalized by the set maximum; c1 leads with
	// 1.0, c2 keeps its better vector score.
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "lexical", results[0].Source)

	assert.Equal(t, "c2", results[1].ChunkID)
	assert.InDelta(t, 0.9, results[1].Score, 1e-6)
	assert.Equal(t, "both", results[1].Source)

	assert.Equal(t, "c3", results[2].ChunkID)
	assert.Equal(t, "vector", results[2].Source)
}

func TestRetrieve_LexicalFirstSkipsVectorWhenLexicalHits(t *testing.T) {
	s := &fakeSearcher{
		lexical: map[string][]index.SearchResult{
			"armor": {lex("c1", 0, 0.4)},
		},
	}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "armor", Options{Strategy: MergeLexicalFirst})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Zero(t, s.vectorCalls)
}

func TestRetrieve_LexicalFirstFallsBackToVector(t *testing.T) {
	s := &fakeSearcher{
		vector: []index.VectorResult{{ChunkID: "c9", Similarity: 0.7}},
	}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "armor", Options{Strategy: MergeLexicalFirst})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c9", results[0].ChunkID)
	assert.Equal(t, 1, s.vectorCalls)
}

func TestRetrieve_EqualScoresKeepChunkIndexOrder(t *testing.T) {
	s := &fakeSearcher{
		lexical: map[string][]index.SearchResult{
			"armor": {lex("c5", 5, 0.3), lex("c2", 2, 0.3), lex("c8", 8, 0.3)},
		},
	}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "armor", Options{Strategy: MergeLexicalFirst})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{2, 5, 8}, []int{results[0].ChunkIndex, results[1].ChunkIndex, results[2].ChunkIndex})
}

func TestRetrieve_AliasRewriteSearchesResolvedKeywords(t *testing.T) {
	s := &fakeSearcher{
		lexical: map[string][]index.SearchResult{
			"armor": {lex("c1", 0, 0.4)},
		},
	}
	aliases := fakeAliases{"giáp": {"armor"}}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, aliases, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "giáp", Options{Strategy: MergeLexicalFirst})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"giáp", "armor"}, s.lexicalQueries)
}

func TestRetrieve_HydeEmbedsGeneratedPassageToo(t *testing.T) {
	s := &fakeSearcher{
		vector: []index.VectorResult{{ChunkID: "c1", Similarity: 0.5}},
	}
	e := &fakeEmbedder{}
	g := &fakeGenerator{response: "Armor absorbs incoming shell damage."}
	r, err := NewRetriever(s, e, g, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "how does armor work", Options{Strategy: MergeUnion, Hyde: true})
	require.NoError(t, err)

	require.Len(t, g.prompts, 1)
	assert.Contains(t, g.prompts[0], "how does armor work")
	assert.Equal(t, 2, e.calls)
	assert.Equal(t, 2, s.vectorCalls)
}

func TestRetrieve_GeneratorFailureDegradesToRawQuery(t *testing.T) {
	s := &fakeSearcher{
		vector: []index.VectorResult{{ChunkID: "c1", Similarity: 0.5}},
	}
	e := &fakeEmbedder{}
	g := &fakeGenerator{err: errors.New("model down")}
	r, err := NewRetriever(s, e, g, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "armor", Options{Strategy: MergeUnion, Hyde: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, e.calls)
}

func TestRetrieve_VectorFailureKeepsLexicalResults(t *testing.T) {
	s := &fakeSearcher{
		lexical: map[string][]index.SearchResult{
			"armor": {lex("c1", 0, 0.4)},
		},
		vectorErr: errors.New("index offline"),
	}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "armor", Options{Strategy: MergeUnion})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestRetrieve_MarkerFilterReachesSearcher(t *testing.T) {
	s := &fakeSearcher{}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), `@document:tank_gdd @section:"Combat System" damage`, Options{Strategy: MergeLexicalFirst})
	require.NoError(t, err)
	assert.Equal(t, index.Filter{DocID: "tank_gdd", Section: "Combat System"}, s.lastFilter)
}

func TestRetrieve_EmptyQueryYieldsNothing(t *testing.T) {
	s := &fakeSearcher{}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "   ", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, s.lexicalQueries)
}

func TestRetrieve_LimitBoundsResults(t *testing.T) {
	s := &fakeSearcher{
		lexical: map[string][]index.SearchResult{
			"armor": {lex("c1", 0, 0.5), lex("c2", 1, 0.4), lex("c3", 2, 0.3)},
		},
	}
	r, err := NewRetriever(s, &fakeEmbedder{}, nil, nil, testutil.DiscardLogger())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "armor", Options{Limit: 2, Strategy: MergeLexicalFirst})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
