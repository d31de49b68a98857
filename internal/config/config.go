package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/prompts"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	VectorDB VectorDBConfig `yaml:"vector_db"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	ChatLLM  LLMConfig      `yaml:"chat_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the SQL driver used for document records.
// Driver is one of "pgdriver", "pq" or "sqlite".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	DSNEnv   string `yaml:"dsn_env"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type VectorDBConfig struct {
	Type          string `yaml:"type"`
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	SnapshotFile  string `yaml:"snapshot_file"`
	EncryptionKey string `yaml:"encryption_key"`
	Dimensions    int    `yaml:"dimensions"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	KeyEnv      string  `yaml:"key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BatchSize   int     `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Splitter     string `yaml:"splitter"`
	TopK         int    `yaml:"top_k"`
	SystemPrompt string `yaml:"system_prompt"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

const (
	DefaultChunkSize      = 400
	DefaultChunkOverlap   = 80
	DefaultTopK           = 2
	DefaultTemperature    = 0.7
	DefaultMaxUploadBytes = 2 * 1024 * 1024
)

// LoadConfig reads the YAML file at path. A missing file yields the
// defaults. Variables from a .env file in the working directory are loaded
// before secrets are resolved from the environment.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		// keys present in the file override the defaults, zero values included
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.ApplyDefaults()
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		ChatLLM: LLMConfig{Temperature: DefaultTemperature},
		RAG:     RAGConfig{ChunkOverlap: DefaultChunkOverlap},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values that are never valid settings. Fields
// where zero is meaningful, such as temperature and chunk overlap, are
// defaulted by Default only.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "file:pdf-chat.db?_pragma=busy_timeout(5000)"
	}

	if c.VectorDB.Type == "" {
		c.VectorDB.Type = "chromem"
	}
	if c.VectorDB.Path == "" {
		c.VectorDB.Path = "./chromemdb"
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = "documents"
	}
	if c.VectorDB.Dimensions == 0 {
		c.VectorDB.Dimensions = 768
	}

	applyLLMDefaults(&c.EmbedLLM, "text-embedding-004")
	applyLLMDefaults(&c.ChatLLM, "gemini-1.5-pro")
	if c.ChatLLM.MaxTokens == 0 {
		c.ChatLLM.MaxTokens = 1000
	}
	if c.EmbedLLM.BatchSize == 0 {
		c.EmbedLLM.BatchSize = 64
	}

	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = DefaultChunkSize
	}
	if c.RAG.Splitter == "" {
		c.RAG.Splitter = "recursive"
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = DefaultTopK
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "pdf-chat"
	}
}

func applyLLMDefaults(c *LLMConfig, model string) {
	if c.Provider == "" {
		c.Provider = "googleai"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.KeyEnv == "" {
		switch c.Provider {
		case "googleai":
			c.KeyEnv = "GOOGLE_API_KEY"
		case "openai":
			c.KeyEnv = "OPENAI_API_KEY"
		}
	}
}

func (c *Config) resolveSecrets() {
	for _, l := range []*LLMConfig{&c.EmbedLLM, &c.ChatLLM} {
		if l.Key == "" && l.KeyEnv != "" {
			l.Key = os.Getenv(l.KeyEnv)
		}
	}
	if c.Database.DSN == "" && c.Database.DSNEnv != "" {
		c.Database.DSN = os.Getenv(c.Database.DSNEnv)
	}
}

// Validate reports settings that can never work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "pgdriver", "pq", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.VectorDB.Type {
	case "chromem", "pgvector":
	default:
		return fmt.Errorf("unsupported vector db type: %s", c.VectorDB.Type)
	}
	if c.VectorDB.Type == "pgvector" && c.Database.Driver == "sqlite" {
		return errors.New("vector db pgvector requires a postgres database driver")
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.SystemPrompt != "" {
		if !strings.Contains(c.RAG.SystemPrompt, "{context}") {
			return errors.New("system_prompt must contain the {context} placeholder")
		}
		if err := prompts.CheckValidTemplate(c.RAG.SystemPrompt, prompts.TemplateFormatFString, []string{"context"}); err != nil {
			return fmt.Errorf("invalid system_prompt: %w", err)
		}
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.RAG.TopK)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("unsupported tracing exporter: %s", c.Tracing.Exporter)
	}
	return nil
}
