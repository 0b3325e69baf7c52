// Package config loads the service configuration from a JSON5 file, its
// .local override, a .env file and the environment, in increasing order of
// priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"

	DocstoreNone     = "none"
	DocstorePostgres = "postgres"
	DocstoreSQLite   = "sqlite"
)

type Config struct {
	HTTPAddr        string `json:"http_addr"`
	DataDir         string `json:"data_dir"`
	UploadDir       string `json:"upload_dir"`
	Workers         int    `json:"workers"`
	ItemConcurrency int    `json:"item_concurrency"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`

	Gemini      GeminiConfig     `json:"gemini"`
	Storage     StorageConfig    `json:"storage"`
	Docstore    DocstoreConfig   `json:"docstore"`
	Scraper     ScraperConfig    `json:"scraper"`
	Screenshots ScreenshotConfig `json:"screenshots"`
	Telemetry   TelemetryConfig  `json:"telemetry"`
}

type GeminiConfig struct {
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type StorageConfig struct {
	Backend string `json:"backend"`
	// Dir and BaseURL configure the local backend.
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
	// Bucket and CredentialsFile configure the gcs backend.
	Bucket          string `json:"bucket"`
	CredentialsFile string `json:"credentials_file"`
}

type DocstoreConfig struct {
	Backend string `json:"backend"`
	// DSN is a postgres connection string or a sqlite file path.
	DSN string `json:"dsn"`
}

type ScraperConfig struct {
	TimeoutSeconds int     `json:"timeout_seconds"`
	RatePerHost    float64 `json:"rate_per_host"`
	// RenderJS fetches pages through the headless browser.
	RenderJS bool `json:"render_js"`
}

type ScreenshotConfig struct {
	Enabled    bool   `json:"enabled"`
	ChromePath string `json:"chrome_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	MaxBytes   int    `json:"max_bytes"`
	MaxWidth   int    `json:"max_width"`
}

type TelemetryConfig struct {
	ServiceName  string `json:"service_name"`
	OTLPEndpoint string `json:"otlp_endpoint"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		DataDir:         ".data",
		UploadDir:       ".uploads",
		Workers:         4,
		ItemConcurrency: 1,
		LogLevel:        "info",
		LogFormat:       "text",
		Gemini: GeminiConfig{
			TimeoutSeconds: 120,
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			Dir:     ".reports",
			BaseURL: "http://localhost:8080/files",
		},
		Docstore: DocstoreConfig{
			Backend: DocstoreNone,
		},
		Scraper: ScraperConfig{
			TimeoutSeconds: 60,
			RatePerHost:    2,
		},
		Screenshots: ScreenshotConfig{
			Width:    1920,
			Height:   1080,
			MaxBytes: 3 * 1024 * 1024,
			MaxWidth: 1920,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "portfolio-grader",
		},
	}
}

// Load builds the configuration. path may be empty or name a file that
// does not exist, in which case only defaults and the environment apply.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		for _, p := range []string{path, localPath(path)} {
			if err := mergeFile(&cfg, p); err != nil {
				return Config{}, err
			}
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// localPath maps config.json5 to config.local.json5.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var override Config
	if err := json5.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := mergo.Merge(cfg, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config %s: %w", path, err)
	}
	slog.Debug("merged config file", "path", path)
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.UploadDir, "UPLOAD_DIR")
	setInt(&cfg.Workers, "WORKERS")
	setInt(&cfg.ItemConcurrency, "ITEM_CONCURRENCY")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "GEMINI_MODEL")

	if v := getEnv("GCS_BUCKET"); v != "" {
		cfg.Storage.Backend = StorageGCS
		cfg.Storage.Bucket = v
	}
	setString(&cfg.Storage.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.Dir, "STORAGE_DIR")
	setString(&cfg.Storage.BaseURL, "PUBLIC_BASE_URL")

	if v := getEnv("DATABASE_URL"); v != "" {
		cfg.Docstore.Backend = DocstorePostgres
		cfg.Docstore.DSN = v
	} else if v := getEnv("SQLITE_PATH"); v != "" {
		cfg.Docstore.Backend = DocstoreSQLite
		cfg.Docstore.DSN = v
	}

	setString(&cfg.Screenshots.ChromePath, "CHROME_PATH")
	setBool(&cfg.Screenshots.Enabled, "SCREENSHOTS_ENABLED")
	setBool(&cfg.Scraper.RenderJS, "SCRAPER_RENDER_JS")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := getEnv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := getEnv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer in environment", "key", key, "value", v)
		return
	}
	*dst = n
}

func setBool(dst *bool, key string) {
	v := getEnv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring invalid boolean in environment", "key", key, "value", v)
		return
	}
	*dst = b
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.ItemConcurrency < 1:
		return fmt.Errorf("item_concurrency must be at least 1, got %d", c.ItemConcurrency)
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Docstore.Backend {
	case DocstoreNone, "":
	case DocstorePostgres, DocstoreSQLite:
		if c.Docstore.DSN == "" {
			return fmt.Errorf("docstore.dsn is required for the %s backend", c.Docstore.Backend)
		}
	default:
		return fmt.Errorf("unknown docstore backend %q", c.Docstore.Backend)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// GeminiTimeout is the per-call budget for model requests.
func (c Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSeconds) * time.Second
}

// ScrapeTimeout is the per-call budget for page navigation.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
