package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy-rag/internal/chromemdb"
	"policy-rag/internal/config"
	"policy-rag/internal/features"
	"policy-rag/internal/models"
)

const policyText = `COVERAGE
The insurer will cover hospitalisation expenses up to the sum insured of $50,000 for the insured person.

EXCLUSIONS
Cosmetic surgery is excluded and is not covered under this policy.

PREMIUM PAYMENT
A grace period of thirty (30) days is allowed for premium payment.
`

const claimsText = `CLAIMS PROCEDURE
Claims must be intimated within 7 days and the claimant must submit bills for reimbursement.
`

// hashEmbedder is a bag-of-words embedder: texts sharing words are close.
type hashEmbedder struct {
	fail bool
}

func (h hashEmbedder) vector(text string) []float32 {
	v := make([]float32, 64)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;()$")
		hf := fnv.New32a()
		_, _ = hf.Write([]byte(w))
		v[1+hf.Sum32()%63]++
	}
	return v
}

func (h hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if h.fail {
		return nil, errors.New("model not loaded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if h.fail {
		return nil, errors.New("model not loaded")
	}
	return h.vector(text), nil
}

type fakeAnswerer struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeAnswerer) Answer(_ context.Context, prompt string, onChunk func(string)) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if onChunk != nil {
		onChunk(f.reply)
	}
	return f.reply, nil
}

type failingIndex struct {
	*chromemdb.VectorDBManager
}

func (failingIndex) Search(context.Context, []float32, int, *models.Filter) ([]models.Candidate, error) {
	return nil, errors.New("connection refused")
}

func newIndex(t *testing.T) *chromemdb.VectorDBManager {
	t.Helper()
	m, err := chromemdb.NewVectorDBManager(config.VectorDBConfig{Path: t.TempDir(), Collection: "policies", InMemory: true})
	require.NoError(t, err)
	return m
}

func newService(t *testing.T, e hashEmbedder) *Service {
	t.Helper()
	return NewService(config.DefaultConfig(), e, newIndex(t))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func seededService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "policy.txt", policyText)
	writeFile(t, dir, "claims.txt", claimsText)

	s := newService(t, hashEmbedder{})
	res, err := s.Ingest(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	return s, dir
}

func TestQueryEmptyIndex(t *testing.T) {
	s := newService(t, hashEmbedder{})
	got, err := s.Query(context.Background(), "what is the grace period?", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIngestAndStatistics(t *testing.T) {
	s, _ := seededService(t)

	stats, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 4, stats.TotalChunks)
	assert.Equal(t, map[string]int{"coverage": 1, "exclusions": 1, "premium": 1, "claims": 1}, stats.PerSectionTypeCounts)
	assert.Equal(t, map[string]int{"policy.txt": 3, "claims.txt": 1}, stats.ProcessedFiles)
}

func TestIngestGracePeriodDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grace.txt", "A grace period of thirty (30) days is allowed for premium payment.")
	s := newService(t, hashEmbedder{})

	res, err := s.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DocumentsProcessed)
	assert.Equal(t, 1, res.ChunksWritten)

	got, err := s.Query(context.Background(), "grace period", 5, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "grace.txt_0", got[0].ChunkID)
	assert.Equal(t, models.SectionPremium, got[0].Metadata.SectionType)
	assert.Equal(t, models.KindText, got[0].Metadata.ChunkKind)
}

func TestReingestReplacesChunks(t *testing.T) {
	s, dir := seededService(t)
	ctx := context.Background()

	res, err := s.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocumentsProcessed)
	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalChunks, "unchanged content keeps the chunk count")

	writeFile(t, dir, "policy.txt", "EXCLUSIONS\nCosmetic surgery is excluded.\n")
	_, err = s.Ingest(ctx, filepath.Join(dir, "policy.txt"))
	require.NoError(t, err)

	got, err := s.Query(ctx, "hospitalisation sum insured premium", 10, &models.Filter{SourceFile: "policy.txt"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "policy.txt_0", got[0].ChunkID)

	stats, err = s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
}

func TestIngestCollectsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "claims.txt", claimsText)
	writeFile(t, dir, "broken.pdf", "not a pdf at all")
	writeFile(t, dir, "notes.csv", "ignored,file")

	s := newService(t, hashEmbedder{})
	var seen []string
	res, err := s.IngestWithProgress(context.Background(), func(source string, _ int, _ error) {
		seen = append(seen, source)
	}, dir, filepath.Join(dir, "missing.pdf"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.DocumentsProcessed)
	assert.Equal(t, 1, res.ChunksWritten)
	require.Len(t, res.Failures, 2)
	sources := []string{res.Failures[0].Source, res.Failures[1].Source}
	assert.ElementsMatch(t, []string{"broken.pdf", "missing.pdf"}, sources)
	assert.ElementsMatch(t, []string{"broken.pdf", "claims.txt"}, seen)
}

func TestIngestEmbeddingUnavailable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "claims.txt", claimsText)
	s := newService(t, hashEmbedder{fail: true})

	res, err := s.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, res.DocumentsProcessed)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Reason, models.ErrEmbeddingUnavailable.Error())

	_, err = s.Query(context.Background(), "claims", 3, nil)
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestIngestCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "claims.txt", claimsText)
	s := newService(t, hashEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Ingest(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryIndexUnavailable(t *testing.T) {
	s := NewService(config.DefaultConfig(), hashEmbedder{}, failingIndex{newIndex(t)})
	_, err := s.Query(context.Background(), "claims", 3, nil)
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
}

func TestQueryRanksAndFilters(t *testing.T) {
	s, _ := seededService(t)
	ctx := context.Background()

	got, err := s.Query(ctx, "is cosmetic surgery excluded", 0, nil)
	require.NoError(t, err)
	require.Len(t, got, 4, "top_k defaults to the configured value and is capped by the index size")
	assert.Equal(t, models.SectionExclusions, got[0].Metadata.SectionType)
	for i, r := range got {
		assert.Equal(t, i+1, r.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].CombinedScore, r.CombinedScore)
		}
	}

	coverage := models.SectionCoverage
	got, err = s.Query(ctx, "is cosmetic surgery excluded", 5, &models.Filter{SectionType: &coverage})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, r := range got {
		assert.Equal(t, models.SectionCoverage, r.Metadata.SectionType)
	}

	got, err = s.Query(ctx, "anything", 5, &models.Filter{SourceFile: "absent.pdf"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRerankPrefersDomainSignalsOnNearTies(t *testing.T) {
	cfg := config.DefaultConfig()
	plain := models.FeatureRecord{WordCount: 10}
	rich := models.FeatureRecord{CoverageTerms: 3, WordCount: 10}

	got := Rerank([]models.Candidate{
		{ID: "a", Similarity: 0.90, Features: plain},
		{ID: "b", Similarity: 0.89, Features: rich},
		{ID: "c", Similarity: 0.20, Features: rich},
	}, features.QueryProfile{}, cfg.RAG, cfg.Relevance, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ChunkID)
	assert.Equal(t, "a", got[1].ChunkID)
	assert.InDelta(t, 0.8*0.89+0.2*1, got[0].CombinedScore, 1e-9)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 2, got[1].Rank)
}

func TestRerankTiesKeepSimilarityOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	f := models.FeatureRecord{WordCount: 5}
	got := Rerank([]models.Candidate{
		{ID: "low", Similarity: 0.4, Features: f},
		{ID: "first", Similarity: 0.5, Features: f},
		{ID: "second", Similarity: 0.5, Features: f},
	}, features.QueryProfile{}, cfg.RAG, cfg.Relevance, 10)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "low"}, []string{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
}

func TestRelevanceScore(t *testing.T) {
	rel := config.DefaultConfig().Relevance
	f := models.FeatureRecord{CoverageTerms: 2, Amounts: 1, WordCount: 10}

	tests := []struct {
		name    string
		f       models.FeatureRecord
		profile features.QueryProfile
		want    float64
	}{
		{"density only", f, features.QueryProfile{}, 1},
		{"amounts asked and present", f, features.QueryProfile{MentionsAmounts: true}, 1},
		{"policy refs asked but absent", f, features.QueryProfile{MentionsPolicyRefs: true}, 0.5 / 0.7},
		{"amounts asked but absent", models.FeatureRecord{WordCount: 10}, features.QueryProfile{MentionsAmounts: true}, 0},
		{"sparse terms", models.FeatureRecord{LegalTerms: 1, WordCount: 40}, features.QueryProfile{}, 0.25},
		{"empty chunk", models.FeatureRecord{}, features.QueryProfile{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RelevanceScore(tt.f, tt.profile, rel)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestEvaluate(t *testing.T) {
	s, _ := seededService(t)

	report, err := s.Evaluate(context.Background(), []EvalCase{
		{Query: "is cosmetic surgery excluded", ExpectedSections: []string{"exclusions"}, ExpectedKeywords: []string{"excluded"}},
		{Query: "grace period for premium", ExpectedSections: []string{"claims"}, ExpectedKeywords: []string{"zzz"}},
	}, 1)
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	first := report.Results[0]
	assert.Equal(t, 1.0, first.Precision)
	assert.Equal(t, 0.5, first.Recall)
	assert.InDelta(t, 2.0/3.0, first.F1, 1e-9)
	assert.Equal(t, 1, first.ResultsCount)
	assert.Zero(t, report.Results[1].F1)

	assert.Equal(t, 2, report.TotalQueries)
	assert.Zero(t, report.F1.Min)
	assert.InDelta(t, 2.0/3.0, report.F1.Max, 1e-9)
	assert.InDelta(t, 1.0/3.0, report.F1.Avg, 1e-9)
}

func TestLoadEvalCases(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cases.yaml", `
- query: What is the grace period?
  category: premium
  expected_sections: [premium]
  expected_keywords: [grace period]
`)
	cases, err := LoadEvalCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "premium", cases[0].Category)
	assert.Equal(t, []string{"grace period"}, cases[0].ExpectedKeywords)
}

func TestAsk(t *testing.T) {
	s, _ := seededService(t)
	llm := &fakeAnswerer{reply: "<think>checking</think>\nCosmetic surgery is excluded."}
	s.WithAnswerer(llm)

	var streamed strings.Builder
	resp, err := s.Ask(context.Background(), "is cosmetic surgery excluded", func(c string) { streamed.WriteString(c) })
	require.NoError(t, err)

	assert.Equal(t, "Cosmetic surgery is excluded.", resp.Content)
	assert.Equal(t, llm.reply, streamed.String())
	assert.Len(t, resp.Results, answerTopK)
	assert.Contains(t, resp.Source, "policy.txt p.1")

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Source: policy.txt\nSection: exclusions\nContent: EXCLUSIONS Cosmetic surgery")
	assert.Contains(t, llm.prompts[0], "---\n")
	assert.Contains(t, llm.prompts[0], "Question: is cosmetic surgery excluded")
}

func TestAskWithoutContext(t *testing.T) {
	llm := &fakeAnswerer{reply: "unused"}
	s := newService(t, hashEmbedder{}).WithAnswerer(llm)

	resp, err := s.Ask(context.Background(), "what is covered?", nil)
	require.NoError(t, err)
	assert.Equal(t, models.NoContextAnswer, resp.Content)
	assert.Empty(t, llm.prompts)
}

func TestAskErrors(t *testing.T) {
	s, _ := seededService(t)
	_, err := s.Ask(context.Background(), "claims", nil)
	assert.ErrorIs(t, err, ErrNoAnswerer)

	s.WithAnswerer(&fakeAnswerer{err: errors.New("rate limited")})
	_, err = s.Ask(context.Background(), "claims", nil)
	assert.ErrorContains(t, err, "rate limited")
}

func TestBuildContext(t *testing.T) {
	results := []models.QueryResult{
		{Content: "A grace period of thirty days is allowed.", Metadata: models.ChunkMetadata{SourceFile: "policy.txt", SectionType: models.SectionPremium}},
		{Content: "Cosmetic surgery is excluded.", Metadata: models.ChunkMetadata{SourceFile: "policy.txt", SectionType: models.SectionExclusions}},
	}

	assert.Equal(t, "Source: policy.txt\nSection: premium\nContent: A grace period of thirty days is allowed.\n---\n"+
		"Source: policy.txt\nSection: exclusions\nContent: Cosmetic surgery is excluded.\n---\n", BuildContext(results))
	assert.Empty(t, BuildContext(nil))
}
