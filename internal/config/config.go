package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Keys        APIKeys
	Ai          AIConfig          `yaml:"ai"`
	Rag         RagConfig         `yaml:"rag"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Session     SessionConfig     `yaml:"session"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LLMLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	EventsTopic        string
	BodyLimitBytes     int
}

type DatabaseConfig struct {
	Connection string
}

// APIKeys holds provider credentials. They are only ever read from the environment.
type APIKeys struct {
	LLM         string // OpenAI-compatible key (Groq by default)
	OpenAI      string
	HuggingFace string
	Jina        string
	Gemini      string
	GitHub      string
}

type AIConfig struct {
	LLMProvider       string  `yaml:"llm_provider"` // "openai" | "groq" | "ollama" | "huggingface"
	LLMModel          string  `yaml:"llm_model"`
	LLMBaseURL        string  `yaml:"llm_base_url"`
	Temperature       float64 `yaml:"temperature"`
	MaxRetries        int     `yaml:"max_retries"`
	ReasoningFormat   string  `yaml:"reasoning_format"`   // "parsed" (strip, log at debug) | "hidden" (strip) | "raw"
	EmbeddingProvider string  `yaml:"embedding_provider"` // "huggingface" | "openai" | "ollama" | "jina" | "gemini"
	EmbeddingModel    string  `yaml:"embedding_model"`    // empty selects the provider default
	OllamaBaseURL     string  `yaml:"ollama_base_url"`
}

type RagConfig struct {
	RetrievalK      int           `yaml:"retrieval_k"`
	MaxHistoryTurns int           `yaml:"max_history_turns"`
	RewriteFallback bool          `yaml:"rewrite_fallback"`
	ChatTimeout     time.Duration `yaml:"chat_timeout"`
}

type IngestConfig struct {
	RepoChunkSize     int           `yaml:"repo_chunk_size"`
	RepoChunkOverlap  int           `yaml:"repo_chunk_overlap"`
	DocChunkSize      int           `yaml:"doc_chunk_size"`
	DocChunkOverlap   int           `yaml:"doc_chunk_overlap"`
	DefaultBranch     string        `yaml:"default_branch"`
	MaxFileBytes      int           `yaml:"max_file_bytes"`
	EmbedConcurrency  int           `yaml:"embed_concurrency"`
	FetchConcurrency  int           `yaml:"fetch_concurrency"`
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl"`
}

type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type VectorStoreConfig struct {
	Type      string `yaml:"type"` // "memory" | "pgvector"
	Dimension int    `yaml:"dimension"`

	// Drop chunk rows left by a previous process when the pgvector store opens.
	// Disable when several instances share one database.
	PurgeOnStart bool `yaml:"purge_on_start"`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LLMLogFilePath:     getEnv("LLM_LOG_FILE_PATH", "logs/llm_rag.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			EventsTopic:        getEnv("SESSION_EVENTS_TOPIC", "SESSION_EVENTS"),
			BodyLimitBytes:     getEnvAsInt("APP_BODY_LIMIT_BYTES", 10*1024*1024),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			LLM:         getEnv("LLM_API_KEY", getEnv("GROQ_API_KEY", "")),
			OpenAI:      getEnv("OPENAI_API_KEY", ""),
			HuggingFace: getEnv("HUGGINGFACEHUB_API_TOKEN", ""),
			Jina:        getEnv("JINA_API_KEY", ""),
			Gemini:      getEnv("GEMINI_API_KEY", ""),
			GitHub:      getEnv("GITHUB_TOKEN", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "groq"),
			LLMModel:          getEnv("LLM_MODEL", "openai/gpt-oss-20b"),
			LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxRetries:        getEnvAsInt("LLM_MAX_RETRIES", 2),
			ReasoningFormat:   getEnv("LLM_REASONING_FORMAT", "parsed"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "huggingface"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		Rag: RagConfig{
			RetrievalK:      getEnvAsInt("RAG_RETRIEVAL_K", 15),
			MaxHistoryTurns: getEnvAsInt("RAG_MAX_HISTORY_TURNS", 40),
			RewriteFallback: getEnvAsBool("RAG_REWRITE_FALLBACK", true),
			ChatTimeout:     getEnvAsDuration("RAG_CHAT_TIMEOUT", 120*time.Second),
		},
		Ingest: IngestConfig{
			RepoChunkSize:     getEnvAsInt("INGEST_REPO_CHUNK_SIZE", 200),
			RepoChunkOverlap:  getEnvAsInt("INGEST_REPO_CHUNK_OVERLAP", 20),
			DocChunkSize:      getEnvAsInt("INGEST_DOC_CHUNK_SIZE", 500),
			DocChunkOverlap:   getEnvAsInt("INGEST_DOC_CHUNK_OVERLAP", 50),
			DefaultBranch:     getEnv("INGEST_DEFAULT_BRANCH", "main"),
			MaxFileBytes:      getEnvAsInt("INGEST_MAX_FILE_BYTES", 512*1024),
			EmbedConcurrency:  getEnvAsInt("EMBED_CONCURRENCY", 8),
			FetchConcurrency:  getEnvAsInt("INGEST_FETCH_CONCURRENCY", 8),
			EmbeddingCacheTTL: getEnvAsDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		},
		Session: SessionConfig{
			TTL:             getEnvAsDuration("SESSION_TTL", time.Hour),
			CleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),
		},
		VectorStore: VectorStoreConfig{
			Type:      getEnv("VECTOR_STORE", "memory"),
			Dimension: getEnvAsInt("VECTOR_DIMENSION", 384),

			PurgeOnStart: getEnvAsBool("VECTOR_PURGE_ON_START", true),
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := ApplyFile(cfg, path); err != nil {
			log.Printf("[WARN] Ignoring config file %s: %v", path, err)
		}
	}

	if from, raised := EnforceSessionTTL(cfg); raised {
		log.Printf("[WARN] SESSION_TTL %s does not exceed RAG_CHAT_TIMEOUT %s, using %s", from, cfg.Rag.ChatTimeout, cfg.Session.TTL)
	}

	return cfg
}

// EnforceSessionTTL keeps the session TTL above the chat timeout so a session
// cannot expire while one of its turns is still running. It returns the old
// TTL and whether it had to be raised.
func EnforceSessionTTL(cfg *Config) (time.Duration, bool) {
	from := cfg.Session.TTL
	if cfg.Rag.ChatTimeout <= 0 || from > cfg.Rag.ChatTimeout {
		return from, false
	}
	cfg.Session.TTL = 2 * cfg.Rag.ChatTimeout
	return from, true
}

// ApplyFile overlays the tuning sections (ai, rag, ingest, session, vector_store) from a YAML
// file. Keys absent from the file keep their current values; credentials never come from here.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file not found: %w", err)
		}
		return err
	}

	overlay := struct {
		Ai          *AIConfig          `yaml:"ai"`
		Rag         *RagConfig         `yaml:"rag"`
		Ingest      *IngestConfig      `yaml:"ingest"`
		Session     *SessionConfig     `yaml:"session"`
		VectorStore *VectorStoreConfig `yaml:"vector_store"`
	}{
		Ai:          &cfg.Ai,
		Rag:         &cfg.Rag,
		Ingest:      &cfg.Ingest,
		Session:     &cfg.Session,
		VectorStore: &cfg.VectorStore,
	}

	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
