package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLMProvider    string // openai, anthropic, ollama, gemini
	LLMModel       string
	OpenAIKey      string
	AnthropicKey   string // API key (X-Api-Key header)
	AnthropicToken string // OAuth token (Authorization: Bearer header)
	GeminiKey      string
	OllamaBaseURL  string
	OracleTimeout  time.Duration

	HTTPAddr      string
	DatabasePath  string // sqlite commitments
	DatabaseURL   string // postgres users, optional
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AMQPURL       string

	JWTSecret     string
	AppleClientID string
	OwnerID       string

	MonthlyUsageLimit float64 // USD
	Timezone          string
	TTSVoice          string

	DiscordToken   string
	DiscordUserID  string
	DiscordWebhook string
	CheckInCron    string

	LogLevel  string
	LogFormat string // json, console
}

// Dir is where per-user config lives, ~/.helpem.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".helpem"
	}
	return filepath.Join(home, ".helpem")
}

// Load reads .env files, then the YAML overlay, then the environment.
// Later sources win.
func Load() (*Config, error) {
	dotenv, _ := godotenv.Read(existing(".env", filepath.Join(Dir(), "config"))...)

	yamlPath := os.Getenv("HELPEM_CONFIG")
	if yamlPath == "" {
		yamlPath = filepath.Join(Dir(), "config.yaml")
	}
	overlay, err := readYAML(yamlPath)
	if err != nil {
		return nil, err
	}

	return load(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		if v, ok := overlay[key]; ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	var errs []error
	timeout, err := time.ParseDuration(get("ORACLE_TIMEOUT", "20s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("ORACLE_TIMEOUT: %w", err))
	}
	redisDB, err := strconv.Atoi(get("REDIS_DB", "0"))
	if err != nil {
		errs = append(errs, fmt.Errorf("REDIS_DB: %w", err))
	}
	limit, err := strconv.ParseFloat(get("MONTHLY_USAGE_LIMIT", "20"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("MONTHLY_USAGE_LIMIT: %w", err))
	}

	cfg := &Config{
		LLMProvider:    get("LLM_PROVIDER", "openai"),
		LLMModel:       get("LLM_MODEL", ""),
		OpenAIKey:      get("OPENAI_API_KEY", ""),
		AnthropicKey:   get("ANTHROPIC_API_KEY", ""),
		AnthropicToken: get("ANTHROPIC_AUTH_TOKEN", ""),
		GeminiKey:      get("GEMINI_API_KEY", ""),
		OllamaBaseURL:  get("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		OracleTimeout:  timeout,

		HTTPAddr:      get("HTTP_ADDR", ":8080"),
		DatabasePath:  get("DATABASE_PATH", "./helpem.db"),
		DatabaseURL:   get("DATABASE_URL", ""),
		RedisAddr:     get("REDIS_ADDR", ""),
		RedisPassword: get("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		AMQPURL:       get("AMQP_URL", ""),

		JWTSecret:     get("JWT_SECRET", ""),
		AppleClientID: get("APPLE_CLIENT_ID", ""),
		OwnerID:       get("OWNER_ID", "owner"),

		MonthlyUsageLimit: limit,
		Timezone:          get("TIMEZONE", "Local"),
		TTSVoice:          get("TTS_VOICE", "nova"),

		DiscordToken:   get("DISCORD_TOKEN", ""),
		DiscordUserID:  get("DISCORD_USER_ID", ""),
		DiscordWebhook: get("DISCORD_WEBHOOK_URL", ""),
		CheckInCron:    get("CHECKIN_CRON", "0 9 * * *"),

		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "json"),
	}
	if cfg.MonthlyUsageLimit < 0 {
		errs = append(errs, errors.New("MONTHLY_USAGE_LIMIT must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicKey
	case "gemini":
		return c.GeminiKey
	}
	return c.OpenAIKey
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: TIMEZONE: %w", err)
	}
	return loc, nil
}

// readYAML loads a flat KEY: value file. A missing file is not an error.
func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func existing(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}
