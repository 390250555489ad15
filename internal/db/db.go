// Package db is the Postgres index backend: chunks and their pgvector
// embeddings live in one table and are searched by cosine distance.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"policy-rag/internal/config"
	"policy-rag/internal/models"
)

type ChunkRow struct {
	bun.BaseModel `bun:"table:policy_chunks,alias:c"`

	ID             string          `bun:"id,pk"`
	SourceFile     string          `bun:"source_file,notnull"`
	ChunkIndex     int             `bun:"chunk_index,notnull"`
	SectionType    string          `bun:"section_type,notnull"`
	ChunkKind      string          `bun:"chunk_kind,notnull"`
	PageStart      int             `bun:"page_start"`
	PageEnd        int             `bun:"page_end"`
	Method         string          `bun:"extraction_method"`
	Confidence     float64         `bun:"table_confidence"`
	Content        string          `bun:"content,notnull"`
	CoverageTerms  int             `bun:"coverage_terms"`
	ExclusionTerms int             `bun:"exclusion_terms"`
	LegalTerms     int             `bun:"legal_terms"`
	Amounts        int             `bun:"amounts"`
	Percentages    int             `bun:"percentages"`
	PolicyRefs     pq.StringArray  `bun:"policy_references,type:text[]"`
	WordCount      int             `bun:"word_count"`
	HasTableData   bool            `bun:"has_table_data"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`

	Similarity float64 `bun:"similarity,scanonly"`
}

// upsertColumns are overwritten when a chunk id already exists.
var upsertColumns = []string{
	"source_file", "chunk_index", "section_type", "chunk_kind", "page_start", "page_end",
	"extraction_method", "table_confidence", "content", "coverage_terms", "exclusion_terms",
	"legal_terms", "amounts", "percentages", "policy_references", "word_count", "has_table_data", "embedding",
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver: bun's own
// pgdriver or lib/pq.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPG, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// InitDB enables pgvector and creates the chunk table and its filter indexes.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enabling pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*ChunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("creating chunk table: %w", err)
	}
	for _, col := range []string{"source_file", "section_type"} {
		_, err := db.NewCreateIndex().Model((*ChunkRow)(nil)).
			Index("policy_chunks_" + col + "_idx").IfNotExists().Column(col).Exec(ctx)
		if err != nil {
			return fmt.Errorf("creating %s index: %w", col, err)
		}
	}
	return nil
}

func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*ChunkRow)(nil)).IfExists().Exec(ctx)
	return err
}

// Store implements the chunk index on Postgres.
type Store struct {
	db         *bun.DB
	dimensions int
}

// Open connects, prepares the schema and returns a Store.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	log.Info().Str("driver", cfg.Driver).Msg("Connected to postgres index")
	return &Store{db: db, dimensions: cfg.Dimensions}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Reset drops the chunk table and creates it again empty.
func (s *Store) Reset(ctx context.Context) error {
	if err := DropChunks(ctx, s.db); err != nil {
		return fmt.Errorf("%w: dropping chunks: %v", models.ErrIndexUnavailable, err)
	}
	if err := InitDB(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// Upsert inserts records, overwriting rows with the same chunk id.
func (s *Store) Upsert(ctx context.Context, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows, err := s.toRows(records)
	if err != nil {
		return err
	}
	q := s.db.NewInsert().Model(&rows).On("CONFLICT (id) DO UPDATE")
	for _, col := range upsertColumns {
		q = q.Set(col + " = EXCLUDED." + col)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("%w: upserting chunks: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// ReplaceSource deletes the chunks of source and inserts records in one transaction.
func (s *Store) ReplaceSource(ctx context.Context, source string, records []models.IndexRecord) error {
	rows, err := s.toRows(records)
	if err != nil {
		return err
	}
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ChunkRow)(nil)).Where("source_file = ?", source).Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: replacing chunks of %s: %v", models.ErrIndexUnavailable, source, err)
	}
	return nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	if _, err := s.db.NewDelete().Model((*ChunkRow)(nil)).Where("source_file = ?", source).Exec(ctx); err != nil {
		return fmt.Errorf("%w: deleting chunks of %s: %v", models.ErrIndexUnavailable, source, err)
	}
	return nil
}

// Search returns the n chunks closest to vec by cosine distance.
func (s *Store) Search(ctx context.Context, vec []float32, n int, filter *models.Filter) ([]models.Candidate, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []ChunkRow
	if err := searchQuery(s.db, &rows, vec, n, filter).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: searching chunks: %v", models.ErrIndexUnavailable, err)
	}
	out := make([]models.Candidate, len(rows))
	for i, r := range rows {
		out[i] = r.toCandidate()
	}
	return out, nil
}

func searchQuery(db bun.IDB, rows *[]ChunkRow, vec []float32, n int, filter *models.Filter) *bun.SelectQuery {
	v := pgvector.NewVector(vec)
	q := db.NewSelect().Model(rows).
		ColumnExpr("c.*").
		ColumnExpr("1 - (c.embedding <=> ?) AS similarity", v).
		OrderExpr("c.embedding <=> ?", v).
		Limit(n)
	if filter.IsEmpty() {
		return q
	}
	if filter.SectionType != nil {
		q = q.Where("c.section_type = ?", filter.SectionType.String())
	}
	if filter.SourceFile != "" {
		q = q.Where("c.source_file = ?", filter.SourceFile)
	}
	if filter.ChunkKind != "" {
		q = q.Where("c.chunk_kind = ?", string(filter.ChunkKind))
	}
	return q
}

type sectionCount struct {
	SourceFile  string `bun:"source_file"`
	SectionType string `bun:"section_type"`
	N           int    `bun:"n"`
}

// Stats aggregates chunk counts per file and per section.
func (s *Store) Stats(ctx context.Context) (models.Statistics, error) {
	var counts []sectionCount
	err := s.db.NewSelect().
		TableExpr("policy_chunks").
		ColumnExpr("source_file, section_type, count(*) AS n").
		GroupExpr("source_file, section_type").
		Scan(ctx, &counts)
	if err != nil {
		return models.Statistics{}, fmt.Errorf("%w: reading statistics: %v", models.ErrIndexUnavailable, err)
	}
	return aggregate(counts), nil
}

func aggregate(counts []sectionCount) models.Statistics {
	stats := models.Statistics{
		PerSectionTypeCounts: make(map[string]int),
		ProcessedFiles:       make(map[string]int),
	}
	for _, c := range counts {
		if _, seen := stats.ProcessedFiles[c.SourceFile]; !seen {
			stats.TotalDocuments++
		}
		stats.ProcessedFiles[c.SourceFile] += c.N
		stats.PerSectionTypeCounts[c.SectionType] += c.N
		stats.TotalChunks += c.N
	}
	return stats
}

func (s *Store) toRows(records []models.IndexRecord) ([]ChunkRow, error) {
	rows := make([]ChunkRow, len(records))
	for i, r := range records {
		if s.dimensions > 0 && len(r.Embedding.Vector) != s.dimensions {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, table expects %d",
				models.ErrIndexUnavailable, r.ID, len(r.Embedding.Vector), s.dimensions)
		}
		rows[i] = toRow(r)
	}
	return rows, nil
}

func toRow(r models.IndexRecord) ChunkRow {
	md, f := r.Embedding.Metadata, r.Features
	return ChunkRow{
		ID:             r.ID,
		SourceFile:     md.SourceFile,
		ChunkIndex:     md.ChunkIndex,
		SectionType:    md.SectionType.String(),
		ChunkKind:      string(md.ChunkKind),
		PageStart:      md.PageStart,
		PageEnd:        md.PageEnd,
		Method:         md.Method,
		Confidence:     md.Confidence,
		Content:        r.Content,
		CoverageTerms:  f.CoverageTerms,
		ExclusionTerms: f.ExclusionTerms,
		LegalTerms:     f.LegalTerms,
		Amounts:        f.Amounts,
		Percentages:    f.Percentages,
		PolicyRefs:     pq.StringArray(f.PolicyReferences),
		WordCount:      f.WordCount,
		HasTableData:   f.HasTableData,
		Embedding:      pgvector.NewVector(r.Embedding.Vector),
	}
}

func (r ChunkRow) toCandidate() models.Candidate {
	section, _ := models.ParseSectionType(r.SectionType)
	var refs []string
	if len(r.PolicyRefs) > 0 {
		refs = []string(r.PolicyRefs)
	}
	return models.Candidate{
		ID:         r.ID,
		Content:    r.Content,
		Similarity: r.Similarity,
		Metadata: models.ChunkMetadata{
			SectionType: section,
			SourceFile:  r.SourceFile,
			ChunkKind:   models.BlockKind(r.ChunkKind),
			ChunkIndex:  r.ChunkIndex,
			PageStart:   r.PageStart,
			PageEnd:     r.PageEnd,
			Method:      r.Method,
			Confidence:  r.Confidence,
		},
		Features: models.FeatureRecord{
			CoverageTerms:    r.CoverageTerms,
			ExclusionTerms:   r.ExclusionTerms,
			LegalTerms:       r.LegalTerms,
			Amounts:          r.Amounts,
			Percentages:      r.Percentages,
			PolicyReferences: refs,
			WordCount:        r.WordCount,
			HasTableData:     r.HasTableData,
		},
	}
}
