package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the speech-coach server.
type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	STT      STTConfig
	LLM      LLMConfig
	Storage  StorageConfig
}

// ServerConfig holds the HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// PipelineConfig tunes the streaming ingestion pipeline.
type PipelineConfig struct {
	// ChunkThresholdBytes is the pending-byte count that triggers a chunk
	// analysis. It is a heuristic stand-in for a wall-clock duration: the
	// exact duration of variable-bitrate compressed audio cannot be known
	// without decoding, so the boundary is taken on raw byte volume instead.
	// The default is roughly eight seconds of MediaRecorder Opus.
	ChunkThresholdBytes int
	FFmpegPath          string
	DecodeTimeout       time.Duration
	AnalyzeTimeout      time.Duration
	FillerVocabulary    []string
}

// STTConfig holds the speech-to-text service configuration.
type STTConfig struct {
	URL      string
	Language string
	Timeout  time.Duration
}

// LLMConfig holds the content-critique LLM configuration.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// StorageConfig holds persistence paths for exports and session metadata.
type StorageConfig struct {
	DBPath          string
	ExportDir       string
	ExportRetention time.Duration
	CleanInterval   time.Duration
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("HOST", "0.0.0.0"),
			Port:           getEnvInt("PORT", 8000),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 0),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 0),
		},
		Pipeline: PipelineConfig{
			ChunkThresholdBytes: getEnvInt("CHUNK_THRESHOLD_BYTES", 32*1024),
			FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
			DecodeTimeout:       getEnvDuration("DECODE_TIMEOUT", 20*time.Second),
			AnalyzeTimeout:      getEnvDuration("ANALYZE_TIMEOUT", 45*time.Second),
			FillerVocabulary:    splitList(getEnv("FILLER_VOCABULARY", "um,uh,like,so,you know")),
		},
		STT: STTConfig{
			URL:      getEnv("STT_URL", "http://127.0.0.1:9000/transcribe"),
			Language: getEnv("STT_LANGUAGE", ""),
			Timeout:  getEnvDuration("STT_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("OPENAI_BASE_URL", "http://127.0.0.1:8080/v1"),
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", ""),
			Timeout: getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			DBPath:          getEnv("DB_PATH", "./data/speechcoach.db"),
			ExportDir:       getEnv("EXPORT_DIR", "./data/exports"),
			ExportRetention: getEnvDuration("EXPORT_RETENTION", 7*24*time.Hour),
			CleanInterval:   getEnvDuration("EXPORT_CLEAN_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Pipeline.ChunkThresholdBytes <= 0 {
		return fmt.Errorf("chunk threshold must be positive, got %d", c.Pipeline.ChunkThresholdBytes)
	}
	if len(c.Pipeline.FillerVocabulary) == 0 {
		return fmt.Errorf("filler vocabulary must not be empty")
	}
	if c.STT.URL == "" {
		return fmt.Errorf("STT URL must not be empty")
	}
	return nil
}

// ListenAddr returns the host:port pair the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
