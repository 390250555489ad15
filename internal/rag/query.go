package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/config"
	"policy-rag/internal/features"
	"policy-rag/internal/models"
)

// Query embeds question, fetches topK*overfetch nearest chunks that satisfy
// filter and returns the topK best by combined score. topK <= 0 uses the
// configured default. An empty index yields an empty list.
func (s *Service) Query(ctx context.Context, question string, topK int, filter *models.Filter) ([]models.QueryResult, error) {
	if topK <= 0 {
		topK = s.cfg.RAG.TopK
	}
	vec, err := s.composer.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	pool := topK * max(s.cfg.RAG.OverfetchFactor, 1)
	candidates, err := s.index.Search(ctx, vec, pool, filter)
	if err != nil {
		if errors.Is(err, models.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}

	profile := s.analyzer.Analyze(question)
	results := Rerank(candidates, profile, s.cfg.RAG, s.cfg.Relevance, topK)
	log.Debug().
		Str("question", question).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Bool("amounts", profile.MentionsAmounts).
		Bool("policy_refs", profile.MentionsPolicyRefs).
		Msg("Query answered")
	return results, nil
}

// Rerank scores candidates and returns the topK by combined score. Equal
// combined scores keep the similarity order.
func Rerank(candidates []models.Candidate, profile features.QueryProfile, weights config.RAGConfig, rel config.RelevanceConfig, topK int) []models.QueryResult {
	results := make([]models.QueryResult, len(candidates))
	for i, c := range candidates {
		relevance := RelevanceScore(c.Features, profile, rel)
		results[i] = models.QueryResult{
			ChunkID:         c.ID,
			Content:         c.Content,
			Metadata:        c.Metadata,
			SimilarityScore: c.Similarity,
			RelevanceScore:  relevance,
			CombinedScore:   weights.SimilarityWeight*c.Similarity + weights.RelevanceWeight*relevance,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// RelevanceScore is the weighted mean of the domain signals that apply to
// the query, in [0,1]. Term density always applies; the amount and policy
// reference signals only when the question asks about them.
func RelevanceScore(f models.FeatureRecord, profile features.QueryProfile, rel config.RelevanceConfig) float64 {
	var score, total float64

	if rel.TermDensityWeight > 0 {
		total += rel.TermDensityWeight
		if f.WordCount > 0 {
			density := float64(f.InsuranceTerms()) / float64(f.WordCount) * rel.TermDensityScale
			score += rel.TermDensityWeight * min(density, 1)
		}
	}
	if profile.MentionsAmounts && rel.AmountWeight > 0 {
		total += rel.AmountWeight
		if f.Amounts > 0 || f.Percentages > 0 {
			score += rel.AmountWeight
		}
	}
	if profile.MentionsPolicyRefs && rel.PolicyRefWeight > 0 {
		total += rel.PolicyRefWeight
		if f.HasPolicyReferences() {
			score += rel.PolicyRefWeight
		}
	}

	if total == 0 {
		return 0
	}
	return score / total
}
