package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreJSON   = "json"

	STTWhisperCLI = "whisper-cli"
	STTHTTP       = "http"
)

type Config struct {
	Port            int
	DataDir         string
	MaxUploadSizeMB int
	StoreBackend    string
	LogLevel        string
	Environment     string
	MetricsEnabled  bool
	// bcrypt hash of the API token; empty disables the guard
	APITokenHash string

	Generation Generation
	Readiness  Readiness
	STT        STT
	Media      Media
}

type Generation struct {
	URL             string
	DefaultModel    string
	CatalogPath     string
	ProbeTimeout    time.Duration
	ListTimeout     time.Duration
	GenerateTimeout time.Duration
	PullTimeout     time.Duration
}

type Readiness struct {
	Attempts       int
	InitialBackoff time.Duration
	PullPause      time.Duration
	WarmupInterval time.Duration
	WarmupMaxWait  time.Duration
	WarmupTimeout  time.Duration
}

type STT struct {
	Backend   string
	Binary    string
	ModelPath string
	Language  string
	URL       string
	APIKey    string
	Model     string
	Timeout   time.Duration
}

type Media struct {
	FFprobe string
	FFmpeg  string
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxUploadSizeMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_SIZE_MB", "500"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE_MB: %w", err)
	}

	metricsEnabled, err := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid METRICS_ENABLED: %w", err)
	}

	storeBackend := strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite))
	if storeBackend != StoreSQLite && storeBackend != StoreJSON {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: want %s or %s", storeBackend, StoreSQLite, StoreJSON)
	}

	cfg := &Config{
		Port:            port,
		DataDir:         getEnv("DATA_DIR", "./data"),
		MaxUploadSizeMB: maxUploadSizeMB,
		StoreBackend:    storeBackend,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     os.Getenv("ENVIRONMENT"),
		MetricsEnabled:  metricsEnabled,
		APITokenHash:    os.Getenv("API_TOKEN_HASH"),
		Generation: Generation{
			URL:          strings.TrimRight(getEnv("OLLAMA_URL", "http://localhost:11434"), "/"),
			DefaultModel: getEnv("DEFAULT_MODEL", "vatistasdim/boXai"),
			CatalogPath:  os.Getenv("MODEL_CATALOG"),
		},
		STT: STT{
			Backend:   strings.ToLower(getEnv("STT_BACKEND", STTWhisperCLI)),
			Binary:    getEnv("WHISPER_BIN", "whisper-cli"),
			ModelPath: getEnv("WHISPER_MODEL", "models/ggml-base.bin"),
			Language:  getEnv("WHISPER_LANGUAGE", "auto"),
			URL:       strings.TrimRight(getEnv("STT_URL", "https://api.openai.com"), "/"),
			APIKey:    os.Getenv("STT_API_KEY"),
			Model:     getEnv("STT_MODEL", "whisper-1"),
		},
		Media: Media{
			FFprobe: getEnv("FFPROBE_BIN", "ffprobe"),
			FFmpeg:  getEnv("FFMPEG_BIN", "ffmpeg"),
		},
	}

	if cfg.STT.Backend != STTWhisperCLI && cfg.STT.Backend != STTHTTP {
		return nil, fmt.Errorf("invalid STT_BACKEND %q: want %s or %s", cfg.STT.Backend, STTWhisperCLI, STTHTTP)
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"GENERATION_PROBE_TIMEOUT", "5s", &cfg.Generation.ProbeTimeout},
		{"GENERATION_LIST_TIMEOUT", "10s", &cfg.Generation.ListTimeout},
		{"GENERATION_TIMEOUT", "30s", &cfg.Generation.GenerateTimeout},
		{"GENERATION_PULL_TIMEOUT", "10m", &cfg.Generation.PullTimeout},
		{"READINESS_INITIAL_BACKOFF", "5s", &cfg.Readiness.InitialBackoff},
		{"READINESS_PULL_PAUSE", "3s", &cfg.Readiness.PullPause},
		{"READINESS_WARMUP_INTERVAL", "2s", &cfg.Readiness.WarmupInterval},
		{"READINESS_WARMUP_MAX_WAIT", "60s", &cfg.Readiness.WarmupMaxWait},
		{"READINESS_WARMUP_TIMEOUT", "10s", &cfg.Readiness.WarmupTimeout},
		{"STT_TIMEOUT", "30m", &cfg.STT.Timeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dest = v
	}

	cfg.Readiness.Attempts, err = strconv.Atoi(getEnv("READINESS_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid READINESS_ATTEMPTS: %w", err)
	}
	if cfg.Readiness.Attempts < 1 {
		return nil, fmt.Errorf("invalid READINESS_ATTEMPTS: must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
