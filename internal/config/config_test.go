package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chdir moves into a fresh directory so stray .env files do not leak in.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("APP_ENV", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.AppEnv)
	require.Equal(t, []string{"http://localhost:9200"}, cfg.Search.Hosts)
	require.Equal(t, "data_chunks", cfg.Search.Index)
	require.False(t, cfg.Search.VerifyCerts)
	require.Equal(t, "pdf_data", cfg.Ingest.PDFFolder)
	require.Equal(t, 1024, cfg.Ingest.ChunkSize)
	require.Equal(t, 5, cfg.Chat.TopK)
	require.Equal(t, 5, cfg.Chat.ConversationLength)
	require.Equal(t, "abort", cfg.Chat.RetrievalPolicy)
	require.Equal(t, BackendOllama, cfg.LLM.Backend)
	require.Equal(t, "llama3.2", cfg.LLM.OllamaModel)
	require.True(t, cfg.LLM.KeepAliveForever)
	require.Equal(t, "5000", cfg.Server.Port)
	require.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	require.Zero(t, cfg.CompletionTimeout())
	require.False(t, cfg.NeedsAWS())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("ES_HOST", "https://es1:9200, https://es2:9200")
	t.Setenv("ES_VERIFY_CERTS", "true")
	t.Setenv("CHUNK_SIZE", "256")
	t.Setenv("TOP_K_RESULTS", "3")
	t.Setenv("RETRIEVAL_FAILURE_POLICY", "degrade")
	t.Setenv("COMPLETION_TIMEOUT_SECONDS", "30")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("SSM_PREFIX", "/docchat/prod")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://es1:9200", "https://es2:9200"}, cfg.Search.Hosts)
	require.True(t, cfg.Search.VerifyCerts)
	require.Equal(t, 256, cfg.Ingest.ChunkSize)
	require.Equal(t, 3, cfg.Chat.TopK)
	require.Equal(t, "degrade", cfg.Chat.RetrievalPolicy)
	require.Equal(t, 30*time.Second, cfg.CompletionTimeout())
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	require.Equal(t, "/docchat/prod", cfg.ParamPrefix)
}

func TestLoad_EnvFileByAppEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.prod"), []byte("INDEX_NAME=prod_chunks\nPORT=8080\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.dev"), []byte("INDEX_NAME=dev_chunks\n"), 0o600))
	t.Setenv("APP_ENV", "prod")
	// Registered so t.Setenv restores the pre-test state after godotenv sets them.
	t.Setenv("INDEX_NAME", "")
	t.Setenv("PORT", "")
	require.NoError(t, os.Unsetenv("INDEX_NAME"))
	require.NoError(t, os.Unsetenv("PORT"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.AppEnv)
	require.Equal(t, "prod_chunks", cfg.Search.Index)
	require.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "docchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  index: yaml_chunks
chat:
  top_k: 7
  directive: "Be brief."
llm:
  backend: openai
  openai_api_key: sk-yaml
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TOP_K_RESULTS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "yaml_chunks", cfg.Search.Index)
	require.Equal(t, 2, cfg.Chat.TopK)
	require.Equal(t, "Be brief.", cfg.Chat.Directive)
	require.Equal(t, BackendOpenAI, cfg.LLM.Backend)
	require.Equal(t, 5, cfg.Chat.ConversationLength)
}

func TestLoad_MissingYAML(t *testing.T) {
	dir := chdir(t)
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "nope.yaml"))
	_, err := Load()
	require.ErrorContains(t, err, "read")
}

func TestLoad_MalformedNumber(t *testing.T) {
	chdir(t)
	t.Setenv("CHUNK_SIZE", "big")
	_, err := Load()
	require.ErrorContains(t, err, "CHUNK_SIZE")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }, "CHUNK_SIZE"},
		{"top k", func(c *Config) { c.Chat.TopK = -1 }, "TOP_K_RESULTS"},
		{"conversation length", func(c *Config) { c.Chat.ConversationLength = 0 }, "CONVERSATION_LENGTH"},
		{"policy", func(c *Config) { c.Chat.RetrievalPolicy = "retry" }, "retrieval failure policy"},
		{"backend", func(c *Config) { c.LLM.Backend = "gemini" }, "unknown LLM backend"},
		{"openai key", func(c *Config) { c.LLM.Backend = BackendOpenAI }, "OPENAI_API_KEY"},
		{"hosts", func(c *Config) { c.Search.Hosts = nil }, "search host"},
		{"timeout", func(c *Config) { c.LLM.CompletionTimeoutSeconds = -5 }, "COMPLETION_TIMEOUT_SECONDS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
	require.NoError(t, Default().Validate())
}

func TestNeedsAWS(t *testing.T) {
	cfg := Default()
	cfg.Ingest.LedgerTable = "ledger"
	require.True(t, cfg.NeedsAWS())
}
