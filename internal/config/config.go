package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override file values.
// A double underscore separates nesting levels: PAPERQA_LLM__MODEL sets llm.model.
const EnvPrefix = "PAPERQA_"

var (
	ErrMissingAPIKey = errors.New("config: missing API key")
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// DocumentsConfig points at the corpus.
type DocumentsConfig struct {
	Dir    string   `yaml:"dir"`
	Titles []string `yaml:"titles"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

type FastEmbedConfig struct {
	Model     string `yaml:"model"`
	CacheDir  string `yaml:"cache_dir"`
	MaxLength int    `yaml:"max_length"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string               `yaml:"type"`
	FastEmbed FastEmbedConfig      `yaml:"fastembed"`
	OpenAI    OpenAIEmbedderConfig `yaml:"openai"`
}

type ChromemConfig struct {
	Compress bool `yaml:"compress"`
}

// VectorStoreConfig selects the index backend.
type VectorStoreConfig struct {
	Type    string        `yaml:"type"`
	Chromem ChromemConfig `yaml:"chromem"`
}

// IndexConfig controls where the index lives and how it is trusted.
type IndexConfig struct {
	Path              string `yaml:"path"`
	SigningKeyEnv     string `yaml:"signing_key_env"`
	RebuildOnMismatch bool   `yaml:"rebuild_on_mismatch"`
	BatchSize         int    `yaml:"batch_size"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

type LLMConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type DictionaryConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type RAGConfig struct {
	TopK int `yaml:"top_k"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Documents   DocumentsConfig   `yaml:"documents"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Index       IndexConfig       `yaml:"index"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	LLM         LLMConfig         `yaml:"llm"`
	Dictionary  DictionaryConfig  `yaml:"dictionary"`
	RAG         RAGConfig         `yaml:"rag"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
}

// Load reads a config from a specified path and applies environment
// overrides. If the file does not exist, defaults are used.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*AppConfig, error) {
	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	cfg := defaultConfig()
	// decoding into a non-empty slice keeps surplus elements
	cfg.Documents.Titles = nil
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// envKey maps PAPERQA_VECTOR_STORE__TYPE to vector_store.type.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadDefault tries ./config.yaml first, then ~/.config/paperqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/paperqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types and impossible sizes.
func (c *AppConfig) Validate() error {
	var errs []error
	check := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q not one of %s", field, v, strings.Join(allowed, ", ")))
	}
	check("chunker.type", c.Chunker.Type, "character", "sentence")
	check("embedder.type", c.Embedder.Type, "tfidf", "fastembed", "openai")
	check("vector_store.type", c.VectorStore.Type, "memory", "chromem")
	check("summarizer.type", c.Summarizer.Type, "frequency", "none")
	check("log.format", c.Log.Format, "json", "console")
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk_overlap %d must be below chunk_size %d", c.Chunker.ChunkOverlap, c.Chunker.ChunkSize))
	}
	if c.Documents.Dir == "" {
		errs = append(errs, errors.New("documents.dir is empty"))
	}
	if c.Index.Path == "" {
		errs = append(errs, errors.New("index.path is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// APIKey returns the generative-model key from the environment.
func (c *AppConfig) APIKey() (string, error) {
	return keyFromEnv(c.LLM.APIKeyEnv)
}

// EmbedderAPIKey returns the key for the openai embedder.
func (c *AppConfig) EmbedderAPIKey() (string, error) {
	return keyFromEnv(c.Embedder.OpenAI.APIKeyEnv)
}

// SigningKey returns the index signing key, or nil when none is configured.
func (c *AppConfig) SigningKey() []byte {
	if c.Index.SigningKeyEnv == "" {
		return nil
	}
	if v := os.Getenv(c.Index.SigningKeyEnv); v != "" {
		return []byte(v)
	}
	return nil
}

func keyFromEnv(name string) (string, error) {
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, name)
	}
	return key, nil
}

func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "paperqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Documents: DocumentsConfig{
			Dir: "data",
			Titles: []string{
				"Attention is all you need",
				"BERT: Pre-training of Deep Bidirectional Transformers for Language Understanding",
				"Improving Language Understanding by Generative Pre-Training",
			},
		},
		Chunker:     ChunkerConfig{Type: "character", ChunkSize: 500, ChunkOverlap: 50, SentencesPerChunk: 5, OverlapSentences: 1},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Index:       IndexConfig{Path: "index", SigningKeyEnv: "PAPERQA_INDEX_SIGNING_KEY", BatchSize: 64},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 2},
		LLM: LLMConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
			APIKeyEnv:   "GEMINI_API_KEY",
			Model:       "gemini-2.0-flash",
			TimeoutSecs: 30,
		},
		Dictionary: DictionaryConfig{BaseURL: "https://api.dictionaryapi.dev/api/v2/entries/en", TimeoutSecs: 10},
		RAG:        RAGConfig{TopK: 3},
		Log:        LogConfig{Level: "info", Format: "console"},
		Server:     ServerConfig{Addr: ":8080"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	d := defaultConfig()
	if cfg.Chunker.ChunkSize <= 0 {
		cfg.Chunker.ChunkSize = d.Chunker.ChunkSize
	}
	if cfg.Chunker.SentencesPerChunk <= 0 {
		cfg.Chunker.SentencesPerChunk = d.Chunker.SentencesPerChunk
	}
	if len(cfg.Documents.Titles) == 0 {
		cfg.Documents.Titles = d.Documents.Titles
	}
	if cfg.LLM.TimeoutSecs <= 0 {
		cfg.LLM.TimeoutSecs = d.LLM.TimeoutSecs
	}
	if cfg.Dictionary.TimeoutSecs <= 0 {
		cfg.Dictionary.TimeoutSecs = d.Dictionary.TimeoutSecs
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = d.RAG.TopK
	}
	if cfg.Embedder.Type == "fastembed" && cfg.Embedder.FastEmbed.Model == "" {
		cfg.Embedder.FastEmbed.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embedder.Type == "openai" {
		o := &cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.Dimension <= 0 {
			o.Dimension = 1536
		}
		if o.TimeoutSecs <= 0 {
			o.TimeoutSecs = 30
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}
