package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FailurePolicy decides what a failed transcription or analysis call does to a run.
type FailurePolicy string

const (
	// Degrade keeps going with an empty value and a warning.
	Degrade FailurePolicy = "degrade"
	// Abort fails the run.
	Abort FailurePolicy = "abort"
)

// OriginalsPolicy decides what a failed upload of one original stream does.
type OriginalsPolicy string

const (
	// ReportOriginal keeps the failed item in the response with its error.
	ReportOriginal OriginalsPolicy = "report"
	// AbortOnOriginal fails the run with a storage error.
	AbortOnOriginal OriginalsPolicy = "abort"
)

const defaultMaxUpload = 200 << 20

// Prompts are the instruction prefixes sent ahead of the transcript.
type Prompts struct {
	Summary         string `yaml:"summary"`
	StructuredNote  string `yaml:"structured_note"`
	Recommendations string `yaml:"recommendations"`
}

type Config struct {
	Port        string
	Environment string

	DatabaseURL      string
	DBMaxConns       int
	DBAcquireTimeout time.Duration
	DBIdleTimeout    time.Duration

	AWSRegion string
	S3Bucket  string
	FromEmail string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	TranscribeModel string
	LLMModel        string
	MockTranscribe  bool
	MockLLM         bool

	FFmpegPath  string
	FFprobePath string
	TmpDir      string

	MaxUploadBytes  int64
	ExternalTimeout time.Duration
	FailurePolicy   FailurePolicy
	OriginalsPolicy OriginalsPolicy
	Prompts         Prompts
}

// fileConfig is the optional YAML overlay named by CONFIG_FILE.
type fileConfig struct {
	FailurePolicy   string  `yaml:"failure_policy"`
	OriginalsPolicy string  `yaml:"originals_policy"`
	TranscribeModel string  `yaml:"transcribe_model"`
	LLMModel        string  `yaml:"llm_model"`
	Prompts         Prompts `yaml:"prompts"`
}

// DefaultPrompts mirror the prompts the service has always used.
func DefaultPrompts() Prompts {
	return Prompts{
		Summary:         "Summarize this transcript:\n\n",
		StructuredNote:  "Write SOAP notes for transcript:\n\n",
		Recommendations: "Give therapy recommendations for transcript:\n\n",
	}
}

// Load reads the environment (already populated from .env by the caller)
// and applies the YAML overlay when CONFIG_FILE is set. Env wins over file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             envOr("PORT", "4000"),
		Environment:      envOr("ENVIRONMENT", "local"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       10,
		DBAcquireTimeout: 5 * time.Second,
		DBIdleTimeout:    10 * time.Second,
		AWSRegion:        os.Getenv("AWS_REGION"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		FromEmail:        os.Getenv("FROM_EMAIL"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		TranscribeModel:  "gpt-4o-mini-transcribe",
		LLMModel:         "gpt-4o-mini",
		MockTranscribe:   os.Getenv("USE_MOCK_TRANSCRIBE") == "true",
		MockLLM:          os.Getenv("USE_MOCK_LLM") == "true",
		FFmpegPath:       envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:      envOr("FFPROBE_PATH", "ffprobe"),
		TmpDir:           envOr("TMP_DIR", os.TempDir()),
		MaxUploadBytes:   defaultMaxUpload,
		ExternalTimeout:  2 * time.Minute,
		FailurePolicy:    Degrade,
		OriginalsPolicy:  ReportOriginal,
		Prompts:          DefaultPrompts(),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	var err error
	if cfg.DBMaxConns, err = envInt("DB_MAX_CONNS", cfg.DBMaxConns); err != nil {
		return nil, err
	}
	if cfg.DBAcquireTimeout, err = envDuration("DB_ACQUIRE_TIMEOUT", cfg.DBAcquireTimeout); err != nil {
		return nil, err
	}
	if cfg.DBIdleTimeout, err = envDuration("DB_IDLE_TIMEOUT", cfg.DBIdleTimeout); err != nil {
		return nil, err
	}
	if cfg.ExternalTimeout, err = envDuration("EXTERNAL_TIMEOUT", cfg.ExternalTimeout); err != nil {
		return nil, err
	}
	maxUpload, err := envInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes))
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if v := os.Getenv("TRANSCRIBE_MODEL"); v != "" {
		cfg.TranscribeModel = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("FAILURE_POLICY"); v != "" {
		cfg.FailurePolicy = FailurePolicy(strings.ToLower(v))
	}
	if v := os.Getenv("ORIGINALS_POLICY"); v != "" {
		cfg.OriginalsPolicy = OriginalsPolicy(strings.ToLower(v))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.FailurePolicy != "" {
		c.FailurePolicy = FailurePolicy(strings.ToLower(fc.FailurePolicy))
	}
	if fc.OriginalsPolicy != "" {
		c.OriginalsPolicy = OriginalsPolicy(strings.ToLower(fc.OriginalsPolicy))
	}
	if fc.TranscribeModel != "" {
		c.TranscribeModel = fc.TranscribeModel
	}
	if fc.LLMModel != "" {
		c.LLMModel = fc.LLMModel
	}
	if fc.Prompts.Summary != "" {
		c.Prompts.Summary = fc.Prompts.Summary
	}
	if fc.Prompts.StructuredNote != "" {
		c.Prompts.StructuredNote = fc.Prompts.StructuredNote
	}
	if fc.Prompts.Recommendations != "" {
		c.Prompts.Recommendations = fc.Prompts.Recommendations
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.FailurePolicy {
	case Degrade, Abort:
	default:
		return fmt.Errorf("invalid FAILURE_POLICY %q (want degrade|abort)", c.FailurePolicy)
	}
	switch c.OriginalsPolicy {
	case ReportOriginal, AbortOnOriginal:
	default:
		return fmt.Errorf("invalid ORIGINALS_POLICY %q (want report|abort)", c.OriginalsPolicy)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("5s") or bare milliseconds ("5000").
func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
