package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LINKEDIN_ACCESS_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.ServerAddr)
	assert.Equal(t, 3000, cfg.Post.MaxLength)
	assert.Equal(t, "lexical", cfg.Ranking.Similarity)
	assert.True(t, cfg.Scheduler.AutoPublishEnabled())
	assert.Equal(t, 2, cfg.Scheduler.Retries())
	assert.False(t, cfg.LinkedInConfigured())
}

func TestRetryAttemptsZeroDisablesRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"scheduler": {"retry_attempts": 0}}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Scheduler.RetryAttempts)
	assert.Equal(t, 0, cfg.Scheduler.Retries())
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"server_addr": ":9000",
		"linkedin": {"access_token": "file-token", "person_urn": "abc"},
		"llm": {"provider": "openai", "model": "gpt-4o"},
		"scheduler": {"auto_publish": false}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("LINKEDIN_ACCESS_TOKEN", "env-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("X_BEARER_TOKEN", "")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, "env-token", cfg.LinkedIn.AccessToken)
	assert.True(t, cfg.LinkedInConfigured())
	assert.True(t, cfg.OpenAIConfigured())
	assert.False(t, cfg.XConfigured())
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.LLM.EmbeddingModel)
	assert.False(t, cfg.Scheduler.AutoPublishEnabled())
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestRedditNeedsBothKeys(t *testing.T) {
	cfg := Default()
	cfg.Reddit.ClientID = "id"
	assert.False(t, cfg.RedditConfigured())
	cfg.Reddit.ClientSecret = "secret"
	assert.True(t, cfg.RedditConfigured())
}
