package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/crimson-sun/appendix/internal/engine/encoder"
)

// Config holds all appendix configuration.
type Config struct {
	Models  ModelsConfig
	Audit   AuditConfig
	Engine  EngineConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// ModelsConfig locates the persisted artifacts.
type ModelsConfig struct {
	Dir        string // scaler and per-target ONNX models
	RuntimeLib string // ONNX Runtime shared library
}

// AuditConfig holds audit destination settings.
type AuditConfig struct {
	Path         string // append-only CSV table
	DB           string // optional SQLite log; empty disables it
	Stdout       bool   // also emit JSON lines on stdout
	WebhookURL   string // optional endpoint receiving batched JSON records
	WebhookToken string // bearer token for WebhookURL
}

// EngineConfig holds transform settings.
type EngineConfig struct {
	UnknownCategory string // "zero", "warn", "reject"
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Listen string
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string
}

// LoadDotEnv seeds the environment from path (default ".env") when the
// file exists. Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	modelsDir := getenv("APPENDIX_MODELS_DIR", "models")
	return Config{
		Models: ModelsConfig{
			Dir:        modelsDir,
			RuntimeLib: getenv("APPENDIX_ORT_LIB", filepath.Join(modelsDir, "libonnxruntime.so")),
		},
		Audit: AuditConfig{
			Path:         getenv("APPENDIX_AUDIT_PATH", filepath.Join("data", "inferred_patients.csv")),
			DB:           os.Getenv("APPENDIX_AUDIT_DB"),
			Stdout:       getenvBool("APPENDIX_OUTPUT_STDOUT", false),
			WebhookURL:   os.Getenv("APPENDIX_WEBHOOK_URL"),
			WebhookToken: os.Getenv("APPENDIX_WEBHOOK_TOKEN"),
		},
		Engine: EngineConfig{
			UnknownCategory: getenv("APPENDIX_UNKNOWN_CATEGORY", "warn"),
		},
		Server: ServerConfig{
			Listen: getenv("APPENDIX_LISTEN", ":8080"),
		},
		Logging: LoggingConfig{
			Level: getenv("APPENDIX_LOG_LEVEL", "info"),
		},
	}
}

// Validate checks the configuration for values that cannot work. All
// problems are reported at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Models.Dir) == "" {
		errs = append(errs, errors.New("models dir (APPENDIX_MODELS_DIR) must not be empty"))
	}
	if strings.TrimSpace(c.Audit.Path) == "" {
		errs = append(errs, errors.New("audit path (APPENDIX_AUDIT_PATH) must not be empty"))
	}
	if _, err := encoder.ParsePolicy(c.Engine.UnknownCategory); err != nil {
		errs = append(errs, fmt.Errorf("unknown category policy (APPENDIX_UNKNOWN_CATEGORY): %q is not zero, warn or reject", c.Engine.UnknownCategory))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log level (APPENDIX_LOG_LEVEL): %q is not debug, info, warn or error", c.Logging.Level))
	}
	if c.Audit.DB != "" && c.Audit.DB == c.Audit.Path {
		errs = append(errs, errors.New("audit db (APPENDIX_AUDIT_DB) must differ from the CSV audit path"))
	}
	if c.Audit.WebhookURL != "" {
		u, err := url.Parse(c.Audit.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("webhook url (APPENDIX_WEBHOOK_URL): %q is not an http(s) URL", c.Audit.WebhookURL))
		}
	}
	return errors.Join(errs...)
}

// Policy returns the parsed unknown-category policy. Call after Validate.
func (c Config) Policy() encoder.UnknownPolicy {
	p, _ := encoder.ParsePolicy(c.Engine.UnknownCategory)
	return p
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
