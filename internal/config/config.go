package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	SourceJSON     = "json"
	SourcePostgres = "postgres"

	// DataDirEnv overrides Config.DataDir when set.
	DataDirEnv = "TEXTBOOK_RAG_DATA_DIR"
)

type Config struct {
	DataDir     string         `yaml:"data_dir"`
	ChunkSource string         `yaml:"chunk_source"`
	LLM         LLMConfig      `yaml:"llm"`
	EmbedLLM    LLMConfig      `yaml:"embed_llm"`
	RAG         RAGConfig      `yaml:"rag"`
	Cache       CacheConfig    `yaml:"cache"`
	Database    DatabaseConfig `yaml:"database"`
	Log         LogConfig      `yaml:"log"`
}

// LLMConfig describes one model endpoint. Key is read from KeyEnv when empty.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	KeyEnv    string `yaml:"key_env"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGConfig struct {
	TopK            int    `yaml:"top_k"`
	MaxSteps        int    `yaml:"max_steps"`
	MaxTokens       int    `yaml:"max_tokens"`
	ChapterPattern  string `yaml:"chapter_pattern"`
	QuestionTimeout int    `yaml:"question_timeout_secs"`
}

// CacheConfig configures the persisted chunk vector cache. An empty Path keeps it in memory.
type CacheConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	for _, l := range []LLMConfig{c.LLM, c.EmbedLLM} {
		if l.Provider != ProviderOpenAI && l.Provider != ProviderOllama {
			return fmt.Errorf("unsupported llm provider %q (use %q or %q)", l.Provider, ProviderOpenAI, ProviderOllama)
		}
	}
	if c.ChunkSource != SourceJSON && c.ChunkSource != SourcePostgres {
		return fmt.Errorf("unsupported chunk_source %q (use %q or %q)", c.ChunkSource, SourceJSON, SourcePostgres)
	}
	if c.ChunkSource == SourcePostgres && c.Database.DSN == "" {
		return errors.New("database.dsn is required when chunk_source is postgres")
	}
	return nil
}

// QuestionTimeout is the deadline applied to answering a single question.
func (c *Config) QuestionTimeout() time.Duration {
	return time.Duration(c.RAG.QuestionTimeout) * time.Second
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data/raw"
	}
	if cfg.ChunkSource == "" {
		cfg.ChunkSource = SourceJSON
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOllama
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "all-minilm"
	}
	for _, l := range []*LLMConfig{&cfg.LLM, &cfg.EmbedLLM} {
		if l.BaseURL == "" {
			switch l.Provider {
			case ProviderOpenAI:
				l.BaseURL = "https://api.openai.com/v1"
			case ProviderOllama:
				l.BaseURL = "http://localhost:11434"
			}
		}
		if l.Provider == ProviderOpenAI && l.KeyEnv == "" {
			l.KeyEnv = "OPENAI_API_KEY"
		}
		if l.BatchSize == 0 {
			l.BatchSize = 32
		}
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.RAG.MaxSteps == 0 {
		cfg.RAG.MaxSteps = 3
	}
	if cfg.RAG.MaxTokens == 0 {
		cfg.RAG.MaxTokens = 300
	}
	if cfg.RAG.QuestionTimeout == 0 {
		cfg.RAG.QuestionTimeout = 300
	}
	if cfg.Cache.Collection == "" {
		cfg.Cache.Collection = "textbook_chunks"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnv(cfg *Config) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		cfg.DataDir = dir
	}
	for _, l := range []*LLMConfig{&cfg.LLM, &cfg.EmbedLLM} {
		if l.Key == "" && l.KeyEnv != "" {
			l.Key = os.Getenv(l.KeyEnv)
		}
	}
}
