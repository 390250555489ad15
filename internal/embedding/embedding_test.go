package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy-rag/internal/config"
	"policy-rag/internal/features"
	"policy-rag/internal/models"
)

type fakeEmbedder struct {
	calls [][]string
	err   error
	short bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func testChunks() []models.Chunk {
	return []models.Chunk{
		{ID: "p.pdf_0", Source: "p.pdf", Index: 0, PageStart: 1, PageEnd: 1, SectionType: models.SectionPremium,
			Kind: models.KindText, Method: models.MethodText, Content: "A grace period of 30 days applies to the premium of $1,200."},
		{ID: "p.pdf_1", Source: "p.pdf", Index: 1, PageStart: 2, PageEnd: 2, SectionType: models.SectionSchedule,
			Kind: models.KindTable, Method: models.MethodLattice, Confidence: 0.9, Content: "Plan | Premium\nGold | 8,000"},
		{ID: "p.pdf_2", Source: "p.pdf", Index: 2, PageStart: 3, PageEnd: 4, SectionType: models.SectionGeneral,
			Kind: models.KindText, Method: models.MethodText, Content: "Contact us."},
	}
}

func TestComposeChunks(t *testing.T) {
	fake := &fakeEmbedder{}
	c := NewComposer(fake, features.NewExtractor(models.DefaultVocabulary()), 2)

	records, err := c.ComposeChunks(context.Background(), testChunks())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Len(t, fake.calls, 2, "three chunks in batches of two")

	r := records[0]
	assert.Equal(t, "p.pdf_0", r.ID)
	assert.Equal(t, models.SectionPremium, r.Embedding.Metadata.SectionType)
	assert.Equal(t, "p.pdf", r.Embedding.Metadata.SourceFile)
	assert.NotEmpty(t, r.Embedding.Vector)
	assert.Equal(t, 2, r.Features.Amounts)
	assert.False(t, r.Features.HasTableData)
	assert.Zero(t, r.Embedding.Metadata.Confidence)

	table := records[1]
	assert.True(t, table.Features.HasTableData)
	assert.Equal(t, models.KindTable, table.Embedding.Metadata.ChunkKind)
	assert.Equal(t, 0.9, table.Embedding.Metadata.Confidence)
	assert.Equal(t, models.MethodLattice, table.Embedding.Metadata.Method)

	assert.Equal(t, 4, records[2].Embedding.Metadata.PageEnd)
}

func TestComposeChunksEmbeddingFailure(t *testing.T) {
	c := NewComposer(&fakeEmbedder{err: errors.New("connection refused")}, features.NewExtractor(models.DefaultVocabulary()), 8)
	_, err := c.ComposeChunks(context.Background(), testChunks())
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)

	c = NewComposer(&fakeEmbedder{short: true}, features.NewExtractor(models.DefaultVocabulary()), 8)
	_, err = c.ComposeChunks(context.Background(), testChunks())
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestEmbedQuery(t *testing.T) {
	c := NewComposer(&fakeEmbedder{}, features.NewExtractor(models.DefaultVocabulary()), 0)
	v, err := c.EmbedQuery(context.Background(), "grace period")
	require.NoError(t, err)
	assert.Equal(t, []float32{12, 1}, v)

	c = NewComposer(&fakeEmbedder{err: errors.New("down")}, features.NewExtractor(models.DefaultVocabulary()), 0)
	_, err = c.EmbedQuery(context.Background(), "grace period")
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestEmbedTextTruncatesAtWordBoundary(t *testing.T) {
	long := strings.Repeat("premium ", 1000)
	got := embedText(long)
	assert.LessOrEqual(t, len(got), maxEmbedChars)
	assert.True(t, strings.HasSuffix(got, "premium"))

	assert.Equal(t, "short text", embedText("  short text "))
	assert.Len(t, embedText(strings.Repeat("x", maxEmbedChars+10)), maxEmbedChars)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// Answer out of order to check that results are placed by index.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("test-key", srv.URL, "text-embedding-3-small")
	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 3}}, vecs)

	v, err := e.EmbedQuery(context.Background(), "cc")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2}, v)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}
