// Package chromemdb stores chunk vectors in an embedded chromem-go database.
package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"policy-rag/internal/config"
	"policy-rag/internal/models"
)

const catalogSuffix = "_catalog"

// catalogVector is the constant embedding of catalog entries. Catalog entries
// are only ever listed, never ranked.
var catalogVector = []float32{1}

// VectorDBManager encapsulates the chromem-go database operations. Chunks live
// in one collection, and a second catalog collection keeps one entry per
// source file with its chunk count and per-section counts.
type VectorDBManager struct {
	mu            sync.RWMutex
	db            *chromem.DB
	collection    *chromem.Collection
	catalog       *chromem.Collection
	name          string
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// NewVectorDBManager opens (or creates) the database described by cfg.
func NewVectorDBManager(cfg config.VectorDBConfig) (*VectorDBManager, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create database: %v", models.ErrIndexUnavailable, err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		name:          cfg.Collection,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}
	if err := m.openCollections(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) openCollections() error {
	c, err := m.GetOrCreateCollection(m.name)
	if err != nil {
		return err
	}
	cat, err := m.GetOrCreateCollection(m.name + catalogSuffix)
	if err != nil {
		return err
	}
	m.collection, m.catalog = c, cat
	return nil
}

// GetOrCreateCollection returns the named collection. Documents always carry
// their own embeddings, so the collection has no embedding function.
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrIndexUnavailable, err)
	}
	return c, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("documents must carry precomputed embeddings")
}

// Upsert adds records keyed by id. Existing documents with the same id are overwritten.
func (m *VectorDBManager) Upsert(ctx context.Context, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.collection.AddDocuments(ctx, toDocuments(records), runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrIndexUnavailable, err)
	}
	probes := make(map[string][]float32)
	for _, r := range records {
		probes[r.Embedding.Metadata.SourceFile] = r.Embedding.Vector
	}
	for source, probe := range probes {
		if err := m.refreshCatalog(ctx, source, probe); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceSource swaps all chunks of source for records. Readers never see a
// mix of old and new chunks, and a failed write restores the old ones.
func (m *VectorDBManager) ReplaceSource(ctx context.Context, source string, records []models.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.sourceDocuments(ctx, source)
	if err != nil {
		return err
	}
	if err := m.deleteSource(ctx, source); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	if err := m.collection.AddDocuments(ctx, toDocuments(records), runtime.NumCPU()); err != nil {
		log.Error().Err(err).Str("source", source).Msg("Write failed, restoring previous chunks")
		_ = m.collection.Delete(ctx, map[string]string{keySourceFile: source}, nil)
		if len(old) > 0 {
			if rerr := m.collection.AddDocuments(ctx, old, runtime.NumCPU()); rerr != nil {
				log.Error().Err(rerr).Str("source", source).Msg("Failed to restore previous chunks")
			}
			_ = m.refreshCatalog(ctx, source, old[0].Embedding)
		}
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrIndexUnavailable, err)
	}
	return m.refreshCatalog(ctx, source, records[0].Embedding.Vector)
}

// DeleteBySource removes every chunk of source.
func (m *VectorDBManager) DeleteBySource(ctx context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteSource(ctx, source)
}

func (m *VectorDBManager) deleteSource(ctx context.Context, source string) error {
	if err := m.collection.Delete(ctx, map[string]string{keySourceFile: source}, nil); err != nil {
		return fmt.Errorf("%w: failed to delete chunks of %s: %v", models.ErrIndexUnavailable, source, err)
	}
	if err := m.catalog.Delete(ctx, nil, nil, source); err != nil {
		return fmt.Errorf("%w: failed to delete catalog entry %s: %v", models.ErrIndexUnavailable, source, err)
	}
	return nil
}

// sourceDocuments loads the chunks the catalog knows for source. Chunk ids
// are "<source>_<index>", so they can be enumerated from the chunk count.
func (m *VectorDBManager) sourceDocuments(ctx context.Context, source string) ([]chromem.Document, error) {
	entry, err := m.catalog.GetByID(ctx, source)
	if err != nil {
		// Not in the catalog: nothing to restore.
		return nil, nil
	}
	n := atoi(entry.Metadata[keyChunks])
	docs := make([]chromem.Document, 0, n)
	for i := 0; i < n; i++ {
		doc, err := m.collection.GetByID(ctx, models.ChunkID(source, i))
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// refreshCatalog rebuilds the catalog entry of source from the stored chunks.
// probe is any vector of the collection's dimension; it only drives the
// listing query.
func (m *VectorDBManager) refreshCatalog(ctx context.Context, source string, probe []float32) error {
	if err := m.catalog.Delete(ctx, nil, nil, source); err != nil {
		return fmt.Errorf("%w: failed to update catalog: %v", models.ErrIndexUnavailable, err)
	}
	if len(probe) == 0 {
		return nil
	}
	docs, err := m.query(ctx, m.collection, probe, map[string]string{keySourceFile: source})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	md := map[string]string{keyChunks: itoa(len(docs))}
	for _, d := range docs {
		md[sectionKey(d.Metadata[keySectionType])] = itoa(atoi(md[sectionKey(d.Metadata[keySectionType])]) + 1)
	}
	err = m.catalog.AddDocument(ctx, chromem.Document{ID: source, Metadata: md, Embedding: catalogVector, Content: source})
	if err != nil {
		return fmt.Errorf("%w: failed to update catalog: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// query returns every document of c matching where.
func (m *VectorDBManager) query(ctx context.Context, c *chromem.Collection, vec []float32, where map[string]string) ([]chromem.Result, error) {
	return m.queryN(ctx, c, vec, c.Count(), where)
}

func (m *VectorDBManager) queryN(ctx context.Context, c *chromem.Collection, vec []float32, n int, where map[string]string) ([]chromem.Result, error) {
	count := c.Count()
	if count == 0 || n <= 0 {
		return nil, nil
	}
	results, err := c.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vec,
		NResults:       min(n, count),
		Where:          where,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrIndexUnavailable, err)
	}
	return results, nil
}

// Search returns up to n chunks nearest to vec that satisfy filter. An empty
// index or a filter matching nothing yields no candidates and no error.
func (m *VectorDBManager) Search(ctx context.Context, vec []float32, n int, filter *models.Filter) ([]models.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results, err := m.queryN(ctx, m.collection, vec, n, whereClause(filter))
	if err != nil {
		return nil, err
	}
	out := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, toCandidate(r))
	}
	return out, nil
}

// Stats summarises the catalog.
func (m *VectorDBManager) Stats(ctx context.Context) (models.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.Statistics{
		PerSectionTypeCounts: make(map[string]int),
		ProcessedFiles:       make(map[string]int),
	}
	entries, err := m.query(ctx, m.catalog, catalogVector, nil)
	if err != nil {
		return stats, err
	}
	for _, e := range entries {
		n := atoi(e.Metadata[keyChunks])
		stats.TotalDocuments++
		stats.TotalChunks += n
		stats.ProcessedFiles[e.ID] = n
		for _, s := range models.AllSectionTypes() {
			if c := atoi(e.Metadata[sectionKey(s.String())]); c > 0 {
				stats.PerSectionTypeCounts[s.String()] += c
			}
		}
	}
	return stats, nil
}

// DeleteCollection drops all chunks and the catalog.
func (m *VectorDBManager) DeleteCollection() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range []string{m.name, m.name + catalogSuffix} {
		if err := m.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("%w: failed to drop collection %s: %v", models.ErrIndexUnavailable, name, err)
		}
	}
	return m.openCollections()
}

// Export writes both collections to an encrypted file next to the database.
func (m *VectorDBManager) Export(ctx context.Context) error {
	if err := m.checkExport(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Debug().Str("collection", m.name).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.name, m.name+catalogSuffix); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads both collections from the file written by Export.
func (m *VectorDBManager) Import(ctx context.Context) error {
	if err := m.checkExport(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.name, m.name+catalogSuffix); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return m.openCollections()
}

// ExportPath is the file used by Export and Import.
func (m *VectorDBManager) ExportPath() string {
	return m.filePath
}

func (m *VectorDBManager) checkExport() error {
	if len(m.encryptionKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(m.encryptionKey))
	}
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}
	return nil
}

func (m *VectorDBManager) Close() error {
	return nil
}
