package rag

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"policy-rag/internal/models"
	"policy-rag/internal/parser"
)

// ProgressFunc is called once per source file when its ingestion ends.
type ProgressFunc func(source string, chunks int, err error)

// Ingest indexes the given files and directories. See IngestWithProgress.
func (s *Service) Ingest(ctx context.Context, paths ...string) (models.IngestResult, error) {
	return s.IngestWithProgress(ctx, nil, paths...)
}

// IngestWithProgress extracts, chunks, embeds and writes every supported
// file under paths, running up to rag.workers documents at once. Document
// and page failures are collected in the result; only cancellation of ctx
// aborts the batch.
func (s *Service) IngestWithProgress(ctx context.Context, progress ProgressFunc, paths ...string) (models.IngestResult, error) {
	var (
		mu     sync.Mutex
		result = models.IngestResult{Failures: []models.Failure{}}
	)

	var files []string
	for _, path := range paths {
		found, err := parser.CollectSources(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Cannot read ingestion path")
			result.Failures = append(result.Failures, models.Failure{Source: parser.SourceName(path), Reason: err.Error()})
			continue
		}
		files = append(files, found...)
	}

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.RAG.Workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, chunks, err := s.ingestFile(ctx, file)

			mu.Lock()
			defer mu.Unlock()
			for _, f := range doc.Failures {
				result.Failures = append(result.Failures, models.Failure{Source: doc.Source, Page: f.Page, Reason: f.Reason})
			}
			if err != nil {
				log.Error().Err(err).Str("source", doc.Source).Msg("Document ingestion failed")
				result.Failures = append(result.Failures, models.Failure{Source: doc.Source, Reason: err.Error()})
			} else {
				result.DocumentsProcessed++
				result.ChunksWritten += chunks
			}
			if progress != nil {
				progress(doc.Source, chunks, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	log.Info().
		Int("documents", result.DocumentsProcessed).
		Int("chunks", result.ChunksWritten).
		Int("failures", len(result.Failures)).
		Msg("Ingestion finished")
	return result, nil
}

// ingestFile runs the pipeline for one file and replaces its chunks in the
// index. The returned document carries the page failures even on error.
func (s *Service) ingestFile(ctx context.Context, path string) (models.Document, int, error) {
	start := time.Now()
	doc, err := s.parser.Extract(path)
	if doc.Source == "" {
		doc.Source = parser.SourceName(path)
	}
	if err != nil {
		return doc, 0, err
	}

	chunks := s.chunker.Chunk(doc.Source, doc.Blocks)
	records, err := s.composer.ComposeChunks(ctx, chunks)
	if err != nil {
		return doc, 0, err
	}

	lock := s.sourceLock(doc.Source)
	lock.Lock()
	defer lock.Unlock()
	if err := s.index.ReplaceSource(ctx, doc.Source, records); err != nil {
		return doc, 0, err
	}

	log.Info().
		Str("source", doc.Source).
		Int("pages", doc.Pages).
		Int("blocks", len(doc.Blocks)).
		Int("chunks", len(records)).
		Int("failed_pages", len(doc.Failures)).
		Dur("took", time.Since(start)).
		Msg("Indexed document")
	return doc, len(records), nil
}
