package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/chromemdb"
	"policy-rag/internal/config"
	"policy-rag/internal/db"
	"policy-rag/internal/embedding"
	"policy-rag/internal/helper"
	"policy-rag/internal/llmservice"
	"policy-rag/internal/rag"
)

// openIndex builds the configured index backend. An in-memory chromem index
// is loaded from its export file when one exists.
func openIndex(ctx context.Context, cfg *config.Config) (rag.Index, error) {
	switch cfg.VectorDB.Backend {
	case config.BackendPostgres:
		return db.Open(ctx, cfg.Database)
	default:
		if err := helper.CreateFolder(cfg.VectorDB.Path); err != nil {
			return nil, err
		}
		m, err := chromemdb.NewVectorDBManager(cfg.VectorDB)
		if err != nil {
			return nil, err
		}
		if cfg.VectorDB.InMemory {
			if _, err := os.Stat(m.ExportPath()); err == nil {
				if err := m.Import(ctx); err != nil {
					return nil, err
				}
				log.Debug().Str("file", m.ExportPath()).Msg("Imported collection")
			}
		}
		return m, nil
	}
}

// newService wires the embedder, index and, when configured, the inference
// model into a rag.Service.
func newService(ctx context.Context, cfg *config.Config) (*rag.Service, rag.Index, error) {
	embedder, err := embedding.New(cfg.EmbedLLM)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing embedder: %w", err)
	}
	index, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening index: %w", err)
	}
	svc := rag.NewService(cfg, embedder, index)

	if llm, err := llmservice.NewClient(cfg.InferenceLLM); err == nil {
		svc.WithAnswerer(llm)
	} else {
		log.Debug().Err(err).Msg("Answer generation disabled")
	}
	return svc, index, nil
}

// persist writes an in-memory chromem index to its export file.
func persist(ctx context.Context, cfg *config.Config, index rag.Index) error {
	m, ok := index.(*chromemdb.VectorDBManager)
	if !ok || !cfg.VectorDB.InMemory {
		return nil
	}
	if err := m.Export(ctx); err != nil {
		return err
	}
	log.Info().Str("file", m.ExportPath()).Msg("Exported collection")
	return nil
}

func resetIndex(ctx context.Context, index rag.Index) error {
	switch ix := index.(type) {
	case *chromemdb.VectorDBManager:
		return ix.DeleteCollection()
	case *db.Store:
		return ix.Reset(ctx)
	default:
		return errors.New("index backend cannot be reset")
	}
}
