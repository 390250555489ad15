package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"policy-rag/internal/features"
	"policy-rag/internal/models"
)

// maxEmbedChars bounds the text sent to the embedding model for one chunk.
// Tables are never split, so a large one is embedded from its leading part.
const maxEmbedChars = 4000

// Composer attaches features and vectors to chunks.
type Composer struct {
	embedder  embeddings.Embedder
	features  *features.Extractor
	batchSize int
}

func NewComposer(embedder embeddings.Embedder, fx *features.Extractor, batchSize int) *Composer {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Composer{embedder: embedder, features: fx, batchSize: batchSize}
}

// ComposeChunks computes the feature record and embedding of every chunk and
// returns the records to write, in chunk order. Any embedding error fails the
// whole batch with models.ErrEmbeddingUnavailable.
func (c *Composer) ComposeChunks(ctx context.Context, chunks []models.Chunk) ([]models.IndexRecord, error) {
	records := make([]models.IndexRecord, len(chunks))
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		ch.Features = c.features.Extract(ch.Content, ch.Kind == models.KindTable)
		records[i] = models.IndexRecord{
			ID:       ch.ID,
			Content:  ch.Content,
			Features: ch.Features,
			Embedding: models.EmbeddingRecord{
				Metadata: MetadataFor(ch),
			},
		}
		texts[i] = embedText(ch.Content)
	}

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingUnavailable, len(vecs), end-start)
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: empty vector for chunk %s", models.ErrEmbeddingUnavailable, records[start+i].ID)
			}
			records[start+i].Embedding.Vector = v
		}
		log.Debug().Int("from", start).Int("to", end).Msg("Embedded chunk batch")
	}
	return records, nil
}

// EmbedQuery embeds a question with the same model used for chunks.
func (c *Composer) EmbedQuery(ctx context.Context, question string) ([]float32, error) {
	v, err := c.embedder.EmbedQuery(ctx, embedText(question))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", models.ErrEmbeddingUnavailable)
	}
	return v, nil
}

// MetadataFor derives the stored metadata of a chunk.
func MetadataFor(ch models.Chunk) models.ChunkMetadata {
	md := models.ChunkMetadata{
		SectionType: ch.SectionType,
		SourceFile:  ch.Source,
		ChunkKind:   ch.Kind,
		ChunkIndex:  ch.Index,
		PageStart:   ch.PageStart,
		PageEnd:     ch.PageEnd,
		Method:      ch.Method,
	}
	if ch.Kind == models.KindTable {
		md.Confidence = ch.Confidence
	}
	return md
}

// embedText cuts content at a word boundary so it fits maxEmbedChars.
func embedText(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= maxEmbedChars {
		return content
	}
	var b strings.Builder
	for _, word := range strings.Fields(content) {
		if b.Len()+len(word)+1 > maxEmbedChars {
			if b.Len() == 0 {
				return strings.ToValidUTF8(word[:maxEmbedChars], "")
			}
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	return b.String()
}
