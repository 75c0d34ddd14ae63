// Package config loads process configuration from an optional YAML file, an
// optional .env.<APP_ENV> file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

type SearchConfig struct {
	Hosts       []string `yaml:"hosts"`
	User        string   `yaml:"user"`
	Password    string   `yaml:"password"`
	VerifyCerts bool     `yaml:"verify_certs"`
	Index       string   `yaml:"index"`
}

type IngestConfig struct {
	PDFFolder   string `yaml:"pdf_folder"`
	ChunkSize   int    `yaml:"chunk_size"`
	LedgerTable string `yaml:"ledger_table"`
}

type ChatConfig struct {
	TopK               int    `yaml:"top_k"`
	ConversationLength int    `yaml:"conversation_length"`
	Directive          string `yaml:"directive"`
	DirectiveParam     string `yaml:"directive_param"`
	RetrievalPolicy    string `yaml:"retrieval_failure_policy"`
}

type LLMConfig struct {
	Backend                  string  `yaml:"backend"`
	OllamaHost               string  `yaml:"ollama_host"`
	OllamaModel              string  `yaml:"ollama_model"`
	KeepAliveForever         bool    `yaml:"keep_alive_forever"`
	OpenAIModel              string  `yaml:"openai_model"`
	OpenAIBaseURL            string  `yaml:"openai_base_url"`
	OpenAIAPIKey             string  `yaml:"openai_api_key"`
	OpenAIKeyParam           string  `yaml:"openai_key_param"`
	CompletionTimeoutSeconds int     `yaml:"completion_timeout_seconds"`
	Breaker                  bool    `yaml:"breaker"`
	RatePerSecond            float64 `yaml:"rate_per_second"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	AppEnv       string       `yaml:"-"`
	Search       SearchConfig `yaml:"search"`
	Ingest       IngestConfig `yaml:"ingest"`
	Chat         ChatConfig   `yaml:"chat"`
	LLM          LLMConfig    `yaml:"llm"`
	Server       ServerConfig `yaml:"server"`
	Log          LogConfig    `yaml:"log"`
	OTLPEndpoint string       `yaml:"otlp_endpoint"`
	// ParamPrefix is prepended to parameter names that are not absolute.
	ParamPrefix string `yaml:"param_prefix"`
}

func Default() *Config {
	return &Config{
		AppEnv: "dev",
		Search: SearchConfig{
			Hosts: []string{"http://localhost:9200"},
			Index: "data_chunks",
		},
		Ingest: IngestConfig{
			PDFFolder: "pdf_data",
			ChunkSize: 1024,
		},
		Chat: ChatConfig{
			TopK:               5,
			ConversationLength: 5,
			RetrievalPolicy:    "abort",
		},
		LLM: LLMConfig{
			Backend:          BackendOllama,
			OllamaHost:       "http://localhost:11434",
			OllamaModel:      "llama3.2",
			KeepAliveForever: true,
			OpenAIModel:      "gpt-4o-mini",
		},
		Server: ServerConfig{
			Port:        "5000",
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. APP_ENV=prod selects .env.prod, anything else
// .env.dev; a missing env file is not an error. Variables already present in
// the environment win over the file.
func Load() (*Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv != "prod" {
		appEnv = "dev"
	}
	envFile := ".env." + appEnv
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	cfg.AppEnv = appEnv

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	list("ES_HOST", &cfg.Search.Hosts)
	str("ES_USER", &cfg.Search.User)
	str("ES_PASSWORD", &cfg.Search.Password)
	boolean("ES_VERIFY_CERTS", &cfg.Search.VerifyCerts)
	str("INDEX_NAME", &cfg.Search.Index)

	str("PDF_FOLDER_PATH", &cfg.Ingest.PDFFolder)
	num("CHUNK_SIZE", &cfg.Ingest.ChunkSize)
	str("INGEST_LEDGER_TABLE", &cfg.Ingest.LedgerTable)

	num("TOP_K_RESULTS", &cfg.Chat.TopK)
	num("CONVERSATION_LENGTH", &cfg.Chat.ConversationLength)
	str("SYSTEM_DIRECTIVE", &cfg.Chat.Directive)
	str("SYSTEM_DIRECTIVE_PARAM", &cfg.Chat.DirectiveParam)
	str("RETRIEVAL_FAILURE_POLICY", &cfg.Chat.RetrievalPolicy)

	str("LLM_BACKEND", &cfg.LLM.Backend)
	str("OLLAMA_HOST", &cfg.LLM.OllamaHost)
	str("OLLAMA_VERSION", &cfg.LLM.OllamaModel)
	boolean("OLLAMA_KEEP_ALIVE_FOREVER", &cfg.LLM.KeepAliveForever)
	str("OPENAI_MODEL", &cfg.LLM.OpenAIModel)
	str("OPENAI_BASE_URL", &cfg.LLM.OpenAIBaseURL)
	str("OPENAI_API_KEY", &cfg.LLM.OpenAIAPIKey)
	str("OPENAI_KEY_PARAM", &cfg.LLM.OpenAIKeyParam)
	num("COMPLETION_TIMEOUT_SECONDS", &cfg.LLM.CompletionTimeoutSeconds)
	boolean("COMPLETION_BREAKER", &cfg.LLM.Breaker)
	float("COMPLETION_RATE_PER_SECOND", &cfg.LLM.RatePerSecond)

	str("PORT", &cfg.Server.Port)
	list("CORS_ORIGINS", &cfg.Server.CORSOrigins)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	str("SSM_PREFIX", &cfg.ParamPrefix)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Search.Hosts) == 0 {
		errs = append(errs, errors.New("config: at least one search host is required"))
	}
	if strings.TrimSpace(c.Search.Index) == "" {
		errs = append(errs, errors.New("config: index name is required"))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, errors.New("config: CHUNK_SIZE must be positive"))
	}
	if c.Chat.TopK <= 0 {
		errs = append(errs, errors.New("config: TOP_K_RESULTS must be positive"))
	}
	if c.Chat.ConversationLength <= 0 {
		errs = append(errs, errors.New("config: CONVERSATION_LENGTH must be positive"))
	}
	switch strings.ToLower(c.Chat.RetrievalPolicy) {
	case "abort", "degrade":
	default:
		errs = append(errs, fmt.Errorf("config: unknown retrieval failure policy %q", c.Chat.RetrievalPolicy))
	}
	switch c.LLM.Backend {
	case BackendOllama:
		if strings.TrimSpace(c.LLM.OllamaModel) == "" {
			errs = append(errs, errors.New("config: OLLAMA_VERSION is required for the ollama backend"))
		}
	case BackendOpenAI:
		if c.LLM.OpenAIAPIKey == "" && c.LLM.OpenAIKeyParam == "" {
			errs = append(errs, errors.New("config: OPENAI_API_KEY or OPENAI_KEY_PARAM is required for the openai backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown LLM backend %q", c.LLM.Backend))
	}
	if c.LLM.CompletionTimeoutSeconds < 0 {
		errs = append(errs, errors.New("config: COMPLETION_TIMEOUT_SECONDS must not be negative"))
	}
	if c.LLM.RatePerSecond < 0 {
		errs = append(errs, errors.New("config: COMPLETION_RATE_PER_SECOND must not be negative"))
	}
	return errors.Join(errs...)
}

// CompletionTimeout is zero when completions are unbounded.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.LLM.CompletionTimeoutSeconds) * time.Second
}

// NeedsAWS reports whether any AWS-backed feature is configured.
func (c *Config) NeedsAWS() bool {
	return c.Ingest.LedgerTable != "" || c.Chat.DirectiveParam != "" || c.LLM.OpenAIKeyParam != ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
