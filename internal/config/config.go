package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-splitter/internal/storage"
)

// EnvPrefix is prepended to every flag name to form its environment variable
const EnvPrefix = "RECEIPT_SPLITTER"

// Model providers
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Ledger backends
const (
	LedgerSplitwise = "splitwise"
	LedgerLocal     = "local"
)

// Config is the process configuration, built once at startup
type Config struct {
	Host string
	Port int

	Provider      string
	Model         string
	Temperature   float64
	MaxIterations int
	ModelTimeout  time.Duration
	Debug         bool

	GeminiKey string
	OllamaURL string
	OpenAIURL string
	OpenAIKey string

	Storage storage.Config

	Ledger       string
	LedgerDB     string
	LedgerSeed   string
	SplitwiseURL string
	SplitwiseKey string

	AuthUser string
	AuthPass string

	ShowVersion bool
}

// Logger returns a text logger writing to w, at debug level when Debug is set
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Error is returned for a setting that cannot be used
type Error struct {
	Setting string
	Value   string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Setting, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// numeric settings are read as text so that a bad value can be reported
// against the setting it belongs to
type rawNumbers struct {
	port          *string
	temperature   *string
	maxIterations *string
	modelTimeout  *string
}

func newFlagSet(cfg *Config) (*ff.FlagSet, *rawNumbers) {
	fs := ff.NewFlagSet("receipt-splitter")
	raw := &rawNumbers{}

	fs.StringVar(&cfg.Host, 0, "host", "0.0.0.0", "HTTP listen host")
	raw.port = fs.StringLong("port", "8000", "HTTP listen port")

	fs.StringVar(&cfg.Provider, 0, "provider", ProviderGemini, "Model provider: 'gemini', 'ollama' or 'openai'")
	fs.StringVar(&cfg.Model, 0, "model", "", "Model name (provider default when empty)")
	raw.temperature = fs.StringLong("temperature", "0.5", "Sampling temperature")
	raw.maxIterations = fs.StringLong("max-iterations", "3", "Attempts per model call when the provider errors")
	raw.modelTimeout = fs.StringLong("model-timeout", "60s", "Timeout for each model call")
	fs.BoolVar(&cfg.Debug, 0, "debug", "Log prompts, responses and debug output")

	fs.StringVar(&cfg.GeminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&cfg.OllamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&cfg.OpenAIURL, 0, "openai-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	fs.StringVar(&cfg.OpenAIKey, 0, "openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")

	fs.StringVar(&cfg.Storage.Bucket, 0, "s3-bucket", "", "S3 bucket for receipt images (or set AWS_S3_BUCKET env var)")
	fs.StringVar(&cfg.Storage.Region, 0, "s3-region", "", "S3 region (or set AWS_REGION env var, default us-east-1)")
	fs.StringVar(&cfg.Storage.Endpoint, 0, "s3-endpoint", "", "S3-compatible endpoint URL (optional)")
	fs.StringVar(&cfg.Storage.AccessKeyID, 0, "aws-access-key-id", "", "AWS access key id (or set AWS_ACCESS_KEY_ID env var)")
	fs.StringVar(&cfg.Storage.SecretAccessKey, 0, "aws-secret-access-key", "", "AWS secret access key (or set AWS_SECRET_ACCESS_KEY env var)")

	fs.StringVar(&cfg.Ledger, 0, "ledger", LedgerSplitwise, "Expense ledger: 'splitwise' or 'local'")
	fs.StringVar(&cfg.LedgerDB, 0, "ledger-db", "receipt-splitter.db", "Database file path for the local ledger")
	fs.StringVar(&cfg.LedgerSeed, 0, "ledger-seed", "", "JSON file of groups and friends loaded into the local ledger (optional)")
	fs.StringVar(&cfg.SplitwiseURL, 0, "splitwise-url", "https://secure.splitwise.com/api/v3.0", "Splitwise API base URL")
	fs.StringVar(&cfg.SplitwiseKey, 0, "splitwise-key", "", "Splitwise API key (or set SPLITWISE_API_KEY env var)")

	fs.StringVar(&cfg.AuthUser, 0, "auth-user", "", "Basic auth username (optional)")
	fs.StringVar(&cfg.AuthPass, 0, "auth-pass", "", "Basic auth password (optional)")
	fs.BoolVar(&cfg.ShowVersion, 0, "version", "Show version information")

	return fs, raw
}

// Load parses args and RECEIPT_SPLITTER_* environment variables
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	fs, raw := newFlagSet(cfg)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return nil, err
	}

	var err error
	if cfg.Port, err = parseInt("port", *raw.port); err != nil {
		return nil, err
	}
	if cfg.Temperature, err = parseFloat("temperature", *raw.temperature); err != nil {
		return nil, err
	}
	if cfg.MaxIterations, err = parseInt("max-iterations", *raw.maxIterations); err != nil {
		return nil, err
	}
	if cfg.ModelTimeout, err = parseDuration("model-timeout", *raw.modelTimeout); err != nil {
		return nil, err
	}

	// Conventional variable names used by the provider SDKs
	fallback(&cfg.GeminiKey, "GEMINI_API_KEY")
	fallback(&cfg.OpenAIKey, "OPENAI_API_KEY")
	fallback(&cfg.SplitwiseKey, "SPLITWISE_API_KEY")
	fallback(&cfg.Storage.Bucket, "AWS_S3_BUCKET")
	fallback(&cfg.Storage.Region, "AWS_REGION")
	fallback(&cfg.Storage.AccessKeyID, "AWS_ACCESS_KEY_ID")
	fallback(&cfg.Storage.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}

	return cfg, nil
}

// Help returns the flag usage text
func Help() string {
	fs, _ := newFlagSet(&Config{})
	return ffhelp.Flags(fs).String()
}

// LoadDotEnv loads variables from .env style files into the environment.
// Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks ranges and choices
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &Error{Setting: "port", Value: strconv.Itoa(c.Port), Err: errors.New("must be between 1 and 65535")}
	}
	if math.IsNaN(c.Temperature) || c.Temperature < 0 || c.Temperature > 2 {
		return &Error{Setting: "temperature", Value: strconv.FormatFloat(c.Temperature, 'g', -1, 64), Err: errors.New("must be between 0 and 2")}
	}
	if c.MaxIterations < 1 {
		return &Error{Setting: "max-iterations", Value: strconv.Itoa(c.MaxIterations), Err: errors.New("must be at least 1")}
	}
	if c.ModelTimeout <= 0 {
		return &Error{Setting: "model-timeout", Value: c.ModelTimeout.String(), Err: errors.New("must be positive")}
	}
	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	default:
		return &Error{Setting: "provider", Value: c.Provider, Err: errors.New("must be gemini, ollama or openai")}
	}
	switch c.Ledger {
	case LedgerSplitwise, LedgerLocal:
	default:
		return &Error{Setting: "ledger", Value: c.Ledger, Err: errors.New("must be splitwise or local")}
	}
	return nil
}

func fallback(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

func parseInt(setting, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &Error{Setting: setting, Value: value, Err: errors.New("not an integer")}
	}
	return n, nil
}

func parseFloat(setting, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, &Error{Setting: setting, Value: value, Err: errors.New("not a number")}
	}
	return f, nil
}

// parseDuration accepts Go durations and plain seconds
func parseDuration(setting, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &Error{Setting: setting, Value: value, Err: errors.New("not a duration")}
	}
	return d, nil
}
