package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ConfabulousDev/confab-insights/internal/anthropic"
	"github.com/ConfabulousDev/confab-insights/internal/api"
	"github.com/ConfabulousDev/confab-insights/internal/insights"
	"github.com/ConfabulousDev/confab-insights/internal/storage"
)

// Storage backends
const (
	backendS3   = "s3"
	backendBolt = "bolt"
)

// LLM providers
const (
	providerAnthropic = "anthropic"
	providerOpenAI    = "openai"
)

type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	StorageBackend string
	S3Config       storage.S3Config
	BoltPath       string

	LLM LLMConfig

	Insights      insights.Config
	MaxUploadSize int64

	AllowedOrigins []string
	RateLimitRPS   float64 // <= 0 disables analysis rate limiting
	RateLimitBurst int
}

type LLMConfig struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	MaxOutputTokens int
	Timeout         time.Duration
}

// configError is a missing or malformed environment variable.
type configError struct {
	Var  string
	Hint string
	Err  error
}

func (e *configError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid env var %s: %v", e.Var, e.Err)
	}
	return "missing required env var " + e.Var
}

func (e *configError) Unwrap() error {
	return e.Err
}

// attrs renders the error as logger fields.
func (e *configError) attrs() []any {
	attrs := []any{"var", e.Var}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	if e.Hint != "" {
		attrs = append(attrs, "hint", e.Hint)
	}
	return attrs
}

// env reads variables through getenv so tests can supply a map.
type env func(string) string

func (e env) str(name, def string) string {
	if v := strings.TrimSpace(e(name)); v != "" {
		return v
	}
	return def
}

func (e env) required(name, hint string) (string, error) {
	v := strings.TrimSpace(e(name))
	if v == "" {
		return "", &configError{Var: name, Hint: hint}
	}
	return v, nil
}

func (e env) integer(name string, def int) (int, error) {
	v := e.str(name, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &configError{Var: name, Err: err}
	}
	return n, nil
}

func (e env) float(name string, def float64) (float64, error) {
	v := e.str(name, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &configError{Var: name, Err: err}
	}
	return f, nil
}

func (e env) duration(name string, def time.Duration) (time.Duration, error) {
	v := e.str(name, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &configError{Var: name, Err: err, Hint: "use a Go duration such as 30s or 2m"}
	}
	return d, nil
}

// bytes accepts human sizes such as "100MB" or "64 MiB".
func (e env) bytes(name string, def int64) (int64, error) {
	v := e.str(name, "")
	if v == "" {
		return def, nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, &configError{Var: name, Err: err, Hint: "use a size such as 100MB"}
	}
	return int64(n), nil
}

func loadConfig(getenv func(string) string) (Config, error) {
	e := env(getenv)
	var cfg Config
	var err error

	if cfg.Port, err = e.integer("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.ReadTimeout, err = e.duration("HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	// Analysis waits on the model, so writes get the generation budget too.
	if cfg.WriteTimeout, err = e.duration("HTTP_WRITE_TIMEOUT", 150*time.Second); err != nil {
		return Config{}, err
	}

	if err := loadStorage(e, &cfg); err != nil {
		return Config{}, err
	}
	if err := loadLLM(e, &cfg); err != nil {
		return Config{}, err
	}

	defaults := insights.DefaultConfig()
	cfg.Insights.KeyPrefix = e.str("KEY_PREFIX", defaults.KeyPrefix)
	if cfg.Insights.MaxPayloadChars, err = e.integer("MAX_PAYLOAD_CHARS", defaults.MaxPayloadChars); err != nil {
		return Config{}, err
	}
	if cfg.Insights.MaxPayloadChars <= 0 {
		return Config{}, &configError{Var: "MAX_PAYLOAD_CHARS", Err: fmt.Errorf("must be positive, got %d", cfg.Insights.MaxPayloadChars)}
	}
	if cfg.Insights.MaxArchiveMemberSize, err = e.bytes("MAX_ARCHIVE_MEMBER_SIZE", defaults.MaxArchiveMemberSize); err != nil {
		return Config{}, err
	}
	if cfg.Insights.StorageTimeout, err = e.duration("STORAGE_TIMEOUT", defaults.StorageTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Insights.GenerationTimeout, err = e.duration("GENERATION_TIMEOUT", defaults.GenerationTimeout); err != nil {
		return Config{}, err
	}
	cfg.LLM.Timeout = cfg.Insights.GenerationTimeout

	if cfg.MaxUploadSize, err = e.bytes("MAX_UPLOAD_SIZE", api.DefaultMaxUploadSize); err != nil {
		return Config{}, err
	}

	cfg.AllowedOrigins = splitList(e("ALLOWED_ORIGINS"))
	if cfg.RateLimitRPS, err = e.float("ANALYZE_RATE_LIMIT_RPS", 0.5); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = e.integer("ANALYZE_RATE_LIMIT_BURST", 5); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadStorage(e env, cfg *Config) error {
	cfg.StorageBackend = strings.ToLower(e.str("STORAGE_BACKEND", backendS3))

	switch cfg.StorageBackend {
	case backendBolt:
		cfg.BoltPath = e.str("BOLT_PATH", "insights.db")
		return nil
	case backendS3:
	default:
		return &configError{Var: "STORAGE_BACKEND", Err: fmt.Errorf("unknown backend %q", cfg.StorageBackend), Hint: "s3 or bolt"}
	}

	var err error
	s3 := &cfg.S3Config
	if s3.Endpoint, err = e.required("S3_ENDPOINT", "host:port of the S3-compatible endpoint"); err != nil {
		return err
	}
	if s3.AccessKeyID, err = e.required("AWS_ACCESS_KEY_ID", ""); err != nil {
		return err
	}
	if s3.SecretAccessKey, err = e.required("AWS_SECRET_ACCESS_KEY", ""); err != nil {
		return err
	}
	if s3.BucketName, err = e.required("BUCKET_NAME", ""); err != nil {
		return err
	}
	s3.UseSSL = e("S3_USE_SSL") != "false" // Default true
	s3.CreateBucket = e("S3_CREATE_BUCKET") == "true"
	return nil
}

func loadLLM(e env, cfg *Config) error {
	llmCfg := &cfg.LLM
	llmCfg.Provider = strings.ToLower(e.str("LLM_PROVIDER", providerAnthropic))
	llmCfg.Model = e.str("LLM_MODEL", "")
	llmCfg.BaseURL = e.str("LLM_BASE_URL", "")

	var err error
	switch llmCfg.Provider {
	case providerAnthropic:
		if llmCfg.APIKey, err = e.required("ANTHROPIC_API_KEY", "or set LLM_PROVIDER=openai with OPENAI_API_KEY"); err != nil {
			return err
		}
		if llmCfg.Model == "" {
			llmCfg.Model = anthropic.DefaultModel
		}
		llmCfg.MaxOutputTokens, err = e.integer("LLM_MAX_OUTPUT_TOKENS", anthropic.DefaultMaxTokens)
	case providerOpenAI:
		if llmCfg.APIKey, err = e.required("OPENAI_API_KEY", "or set LLM_PROVIDER=anthropic with ANTHROPIC_API_KEY"); err != nil {
			return err
		}
		llmCfg.MaxOutputTokens, err = e.integer("LLM_MAX_OUTPUT_TOKENS", 0)
	default:
		return &configError{Var: "LLM_PROVIDER", Err: fmt.Errorf("unknown provider %q", llmCfg.Provider), Hint: "anthropic or openai"}
	}
	return err
}

// splitList parses a comma-separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
