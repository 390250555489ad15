// Package rag ties extraction, chunking, embedding and the index together
// into the ingest, query and answer operations.
package rag

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/embeddings"

	"policy-rag/internal/chunker"
	"policy-rag/internal/config"
	"policy-rag/internal/embedding"
	"policy-rag/internal/features"
	"policy-rag/internal/models"
	"policy-rag/internal/parser"
)

// Index is the vector store the service reads from and writes to.
type Index interface {
	Upsert(ctx context.Context, records []models.IndexRecord) error
	ReplaceSource(ctx context.Context, source string, records []models.IndexRecord) error
	DeleteBySource(ctx context.Context, source string) error
	Search(ctx context.Context, vec []float32, n int, filter *models.Filter) ([]models.Candidate, error)
	Stats(ctx context.Context) (models.Statistics, error)
	Close() error
}

// Answerer generates a reply to a prompt. onChunk, when set, receives the
// reply as it streams in.
type Answerer interface {
	Answer(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

type Service struct {
	cfg      *config.Config
	parser   *parser.Parser
	chunker  *chunker.Chunker
	composer *embedding.Composer
	analyzer *features.QueryAnalyzer
	index    Index
	answerer Answerer

	// one writer per source file
	locks sync.Map
}

func NewService(cfg *config.Config, embedder embeddings.Embedder, index Index) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Service{
		cfg:      cfg,
		parser:   parser.New(cfg),
		chunker:  chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.Vocabulary),
		composer: embedding.NewComposer(embedder, features.NewExtractor(cfg.Vocabulary), cfg.RAG.EmbedBatchSize),
		analyzer: features.NewQueryAnalyzer(cfg.Vocabulary),
		index:    index,
	}
}

// WithAnswerer sets the model used by Ask.
func (s *Service) WithAnswerer(a Answerer) *Service {
	s.answerer = a
	return s
}

// WithParser replaces the extraction layer, e.g. to change table strategies.
func (s *Service) WithParser(p *parser.Parser) *Service {
	s.parser = p
	return s
}

// Statistics reports what the index holds.
func (s *Service) Statistics(ctx context.Context) (models.Statistics, error) {
	return s.index.Stats(ctx)
}

func (s *Service) Close() error {
	return s.index.Close()
}

func (s *Service) sourceLock(source string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(source, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
