package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds integration credentials and process-level options.
// Secrets may come from the JSON file, a .env file or the environment; the environment wins.
type Config struct {
	ServerAddr  string   `json:"server_addr,omitempty"`
	DataDir     string   `json:"data_dir,omitempty"`
	SourcesPath string   `json:"sources_path,omitempty"`
	LogLevel    string   `json:"log_level,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`

	Reddit    RedditConfig    `json:"reddit"`
	X         XConfig         `json:"x"`
	LinkedIn  LinkedInConfig  `json:"linkedin"`
	LLM       *LLMConfig      `json:"llm,omitempty"`
	Post      PostConfig      `json:"post"`
	Ranking   RankingConfig   `json:"ranking"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type RedditConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

type XConfig struct {
	BearerToken string `json:"bearer_token,omitempty"`
}

type LinkedInConfig struct {
	AccessToken string `json:"access_token,omitempty"`
	PersonURN   string `json:"person_urn,omitempty"`
}

// LLMConfig 生成模块的模型配置。
type LLMConfig struct {
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// PostConfig bounds generated content. MaxLength is the platform hard limit.
type PostConfig struct {
	MinLength     int `json:"min_length,omitempty"`
	TargetLength  int `json:"target_length,omitempty"`
	MaxLength     int `json:"max_length,omitempty"`
	TimeoutSecond int `json:"timeout_seconds,omitempty"`
}

type RankingConfig struct {
	Similarity    string  `json:"similarity,omitempty"` // lexical | embedding
	Threshold     float64 `json:"threshold,omitempty"`
	WindowHours   int     `json:"window_hours,omitempty"`
	HalfLifeHours float64 `json:"half_life_hours,omitempty"`
}

type SchedulerConfig struct {
	AutoPublish   *bool `json:"auto_publish,omitempty"`
	RetryAttempts *int  `json:"retry_attempts,omitempty"`
	ActionTimeout int   `json:"action_timeout_seconds,omitempty"`
}

// AutoPublishEnabled defaults to true when unset.
func (s SchedulerConfig) AutoPublishEnabled() bool {
	return s.AutoPublish == nil || *s.AutoPublish
}

// Retries defaults to 2 when unset; 0 turns retries off.
func (s SchedulerConfig) Retries() int {
	if s.RetryAttempts == nil || *s.RetryAttempts < 0 {
		return 2
	}
	return *s.RetryAttempts
}

// Default returns a config with every optional field populated.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads JSON config from disk, then overlays .env and process environment.
// A missing file is not an error: the service can run purely from the environment.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, err
		}
	}
	LoadEnvFiles()
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadEnvFiles loads .env files that exist; already exported variables are kept.
func LoadEnvFiles(files ...string) []string {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	return loaded
}

func (c *Config) applyEnv() {
	setString(&c.ServerAddr, "SERVER_ADDR")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.SourcesPath, "SOURCES_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	setString(&c.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setString(&c.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setString(&c.Reddit.UserAgent, "REDDIT_USER_AGENT")
	setString(&c.X.BearerToken, "X_BEARER_TOKEN")
	setString(&c.LinkedIn.AccessToken, "LINKEDIN_ACCESS_TOKEN")
	setString(&c.LinkedIn.PersonURN, "LINKEDIN_PERSON_URN")

	if os.Getenv("OPENAI_API_KEY") != "" || os.Getenv("OPENAI_MODEL") != "" || os.Getenv("OPENAI_BASE_URL") != "" {
		if c.LLM == nil {
			c.LLM = &LLMConfig{}
		}
		setString(&c.LLM.APIKey, "OPENAI_API_KEY")
		setString(&c.LLM.Model, "OPENAI_MODEL")
		setString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	}
	if v, err := strconv.Atoi(os.Getenv("POST_MAX_LENGTH")); err == nil && v > 0 {
		c.Post.MaxLength = v
	}
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8000"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.SourcesPath == "" {
		c.SourcesPath = "config/sources.yaml"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Reddit.UserAgent == "" {
		c.Reddit.UserAgent = "AndroidTrendFetcher/1.0"
	}
	if c.LLM != nil {
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
		if c.LLM.Model == "" {
			c.LLM.Model = "gpt-4o-mini"
		}
		if c.LLM.EmbeddingModel == "" {
			c.LLM.EmbeddingModel = "text-embedding-3-small"
		}
	}
	if c.Post.MinLength == 0 {
		c.Post.MinLength = 900
	}
	if c.Post.TargetLength == 0 {
		c.Post.TargetLength = 1500
	}
	if c.Post.MaxLength == 0 {
		c.Post.MaxLength = 3000
	}
	if c.Post.TimeoutSecond == 0 {
		c.Post.TimeoutSecond = 60
	}
	if c.Ranking.Similarity == "" {
		c.Ranking.Similarity = "lexical"
	}
	if c.Ranking.Threshold == 0 {
		c.Ranking.Threshold = 0.35
	}
	if c.Ranking.WindowHours == 0 {
		c.Ranking.WindowHours = 24
	}
	if c.Ranking.HalfLifeHours == 0 {
		c.Ranking.HalfLifeHours = 6
	}
	if c.Scheduler.ActionTimeout == 0 {
		c.Scheduler.ActionTimeout = 300
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
