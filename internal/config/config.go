package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
	yamlv3 "gopkg.in/yaml.v3"

	"policy-rag/internal/models"
)

const envPrefix = "POLICYRAG_"

type Config struct {
	RAG          RAGConfig         `yaml:"rag" koanf:"rag"`
	Extraction   ExtractionConfig  `yaml:"extraction" koanf:"extraction"`
	Relevance    RelevanceConfig   `yaml:"relevance" koanf:"relevance"`
	Vocabulary   models.Vocabulary `yaml:"vocabulary" koanf:"vocabulary"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm" koanf:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm" koanf:"inference_llm"`
	VectorDB     VectorDBConfig    `yaml:"vector_db" koanf:"vector_db"`
	Database     DatabaseConfig    `yaml:"database" koanf:"database"`
	Server       ServerConfig      `yaml:"server" koanf:"server"`
}

type RAGConfig struct {
	ChunkSize        int     `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	TopK             int     `yaml:"top_k" koanf:"top_k"`
	OverfetchFactor  int     `yaml:"overfetch_factor" koanf:"overfetch_factor"`
	SimilarityWeight float64 `yaml:"similarity_weight" koanf:"similarity_weight"`
	RelevanceWeight  float64 `yaml:"relevance_weight" koanf:"relevance_weight"`
	Workers          int     `yaml:"workers" koanf:"workers"`
	EmbedBatchSize   int     `yaml:"embed_batch_size" koanf:"embed_batch_size"`
}

type ExtractionConfig struct {
	TableMinRows       int     `yaml:"table_min_rows" koanf:"table_min_rows"`
	TableMinFillRatio  float64 `yaml:"table_min_fill_ratio" koanf:"table_min_fill_ratio"`
	ColumnGap          float64 `yaml:"column_gap" koanf:"column_gap"`
	ParagraphGapFactor float64 `yaml:"paragraph_gap_factor" koanf:"paragraph_gap_factor"`
}

// RelevanceConfig weights the components of the domain relevance score.
type RelevanceConfig struct {
	TermDensityWeight float64 `yaml:"term_density_weight" koanf:"term_density_weight"`
	TermDensityScale  float64 `yaml:"term_density_scale" koanf:"term_density_scale"`
	AmountWeight      float64 `yaml:"amount_weight" koanf:"amount_weight"`
	PolicyRefWeight   float64 `yaml:"policy_ref_weight" koanf:"policy_ref_weight"`
}

type LLMConfig struct {
	Provider string `yaml:"provider" koanf:"provider"`
	BaseURL  string `yaml:"base_url" koanf:"base_url"`
	Model    string `yaml:"model" koanf:"model"`
	Key      string `yaml:"key" koanf:"key"`
}

type VectorDBConfig struct {
	Backend       string `yaml:"backend" koanf:"backend"`
	Path          string `yaml:"path" koanf:"path"`
	Collection    string `yaml:"collection" koanf:"collection"`
	InMemory      bool   `yaml:"in_memory" koanf:"in_memory"`
	Compress      bool   `yaml:"compress" koanf:"compress"`
	EncryptionKey string `yaml:"encryption_key" koanf:"encryption_key"`
}

type DatabaseConfig struct {
	DSN        string `yaml:"dsn" koanf:"dsn"`
	Driver     string `yaml:"driver" koanf:"driver"`
	Debug      bool   `yaml:"debug" koanf:"debug"`
	Dimensions int    `yaml:"dimensions" koanf:"dimensions"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr" koanf:"addr"`
	APIToken        string `yaml:"api_token" koanf:"api_token"`
	AllowAllOrigins bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  int    `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
}

const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"

	ProviderOllama          = "ollama"
	ProviderOpenAI          = "openai"
	ProviderLangchainOpenAI = "langchain-openai"

	DriverPG = "pgdriver"
	DriverPQ = "pq"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		RAG: RAGConfig{
			ChunkSize:        512,
			ChunkOverlap:     50,
			TopK:             5,
			OverfetchFactor:  3,
			SimilarityWeight: 0.8,
			RelevanceWeight:  0.2,
			Workers:          4,
			EmbedBatchSize:   32,
		},
		Extraction: ExtractionConfig{
			TableMinRows:       2,
			TableMinFillRatio:  0.5,
			ColumnGap:          2.0,
			ParagraphGapFactor: 1.6,
		},
		Relevance: RelevanceConfig{
			TermDensityWeight: 0.5,
			TermDensityScale:  10,
			AmountWeight:      0.3,
			PolicyRefWeight:   0.2,
		},
		Vocabulary: models.DefaultVocabulary(),
		EmbedLLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		InferenceLLM: LLMConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.1-8b-instant",
		},
		VectorDB: VectorDBConfig{
			Backend:    BackendChromem,
			Path:       "./chromemdb",
			Collection: "insurance_policies",
		},
		Database: DatabaseConfig{
			Driver:     DriverPG,
			Dimensions: 768,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			RequestTimeout: 60,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// POLICYRAG_* environment overrides. A missing file is not an error.
// Nested keys use a double underscore: POLICYRAG_RAG__CHUNK_SIZE=256.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges. An overlap that is not smaller than the chunk
// size is clamped to half the chunk size.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		c.RAG.ChunkOverlap = 0
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		log.Warn().Int("chunk_size", c.RAG.ChunkSize).Int("chunk_overlap", c.RAG.ChunkOverlap).
			Msg("chunk_overlap must be smaller than chunk_size, clamping to half")
		c.RAG.ChunkOverlap = c.RAG.ChunkSize / 2
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.OverfetchFactor < 1 {
		return fmt.Errorf("rag.overfetch_factor must be >= 1, got %d", c.RAG.OverfetchFactor)
	}
	if c.RAG.RelevanceWeight < 0 || c.RAG.SimilarityWeight <= c.RAG.RelevanceWeight {
		return fmt.Errorf("rag.similarity_weight (%.2f) must exceed rag.relevance_weight (%.2f) >= 0",
			c.RAG.SimilarityWeight, c.RAG.RelevanceWeight)
	}
	if c.RAG.Workers <= 0 {
		c.RAG.Workers = 1
	}
	if c.Extraction.TableMinRows < 2 {
		return fmt.Errorf("extraction.table_min_rows must be >= 2, got %d", c.Extraction.TableMinRows)
	}
	if c.Extraction.TableMinFillRatio < 0 || c.Extraction.TableMinFillRatio > 1 {
		return fmt.Errorf("extraction.table_min_fill_ratio must be within [0,1], got %.2f", c.Extraction.TableMinFillRatio)
	}

	switch c.EmbedLLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderLangchainOpenAI:
	default:
		return fmt.Errorf("invalid embed_llm.provider %q: must be one of ollama, openai, langchain-openai", c.EmbedLLM.Provider)
	}
	switch c.VectorDB.Backend {
	case BackendChromem:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
		if c.Database.Driver != DriverPG && c.Database.Driver != DriverPQ {
			return fmt.Errorf("invalid database.driver %q: must be pgdriver or pq", c.Database.Driver)
		}
	default:
		return fmt.Errorf("invalid vector_db.backend %q: must be chromem or postgres", c.VectorDB.Backend)
	}
	return nil
}
