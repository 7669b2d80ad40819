package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Search provider names accepted in SearchProvider
const (
	ProviderSearXNG = "searxng"
	ProviderTavily  = "tavily"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ListenAddr     string   `yaml:"listen_addr"`
	WSPath         string   `yaml:"ws_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Ollama settings
	OllamaURL     string        `yaml:"ollama_url"`
	ModelName     string        `yaml:"model"`
	OllamaTimeout time.Duration `yaml:"ollama_timeout"`

	// Search settings
	SearchProvider string        `yaml:"search_provider"`
	SearXNGURL     string        `yaml:"searxng_url"`
	TavilyAPIKey   string        `yaml:"tavily_api_key"`
	TavilyDepth    string        `yaml:"tavily_depth"`
	SearchTimeout  time.Duration `yaml:"search_timeout"`
	MaxResults     int           `yaml:"max_results"`

	// Crawler settings
	CrawlTimeout    time.Duration `yaml:"crawl_timeout"`
	MaxCrawlers     int           `yaml:"max_crawlers"`
	MaxContentSize  int64         `yaml:"max_content_size"`
	MaxContentWords int           `yaml:"max_content_words"`
	UserAgent       string        `yaml:"user_agent"`

	// Logging
	LogLevel string `yaml:"log_level"`
	Verbose  bool   `yaml:"verbose"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		// Server defaults
		ListenAddr: ":8000",
		WSPath:     "/ws/chat",

		// Ollama defaults
		OllamaURL:     "http://localhost:11434",
		ModelName:     "llama3.1:8b",
		OllamaTimeout: 120 * time.Second,

		// Search defaults
		SearchProvider: ProviderSearXNG,
		SearXNGURL:     "http://localhost:9090",
		TavilyDepth:    "basic",
		SearchTimeout:  10 * time.Second,
		MaxResults:     5,

		// Crawler defaults
		CrawlTimeout:    15 * time.Second,
		MaxCrawlers:     5,
		MaxContentSize:  5 * 1024 * 1024, // 5 MB
		MaxContentWords: 500,
		UserAgent:       "web-search-chat/1.0",

		LogLevel: "info",
	}
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables when they are set
func (c *Config) ApplyEnv() {
	if v := GetEnv("OLLAMA_URL"); v != "" {
		c.OllamaURL = v
	}
	if v := GetEnv("OLLAMA_MODEL"); v != "" {
		c.ModelName = v
	}
	if v := GetEnv("SEARXNG_URL"); v != "" {
		c.SearXNGURL = v
	}
	if v := GetEnv("TAVILY_API_KEY"); v != "" {
		c.TavilyAPIKey = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("websocket path must start with /")
	}
	if c.OllamaURL == "" {
		return fmt.Errorf("ollama URL cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxResults < 1 || c.MaxResults > 10 {
		return fmt.Errorf("max results must be between 1 and 10")
	}
	if c.MaxCrawlers < 1 {
		return fmt.Errorf("max crawlers must be at least 1")
	}
	switch c.SearchProvider {
	case ProviderSearXNG:
		if c.SearXNGURL == "" {
			return fmt.Errorf("searxng URL cannot be empty")
		}
	case ProviderTavily:
		if strings.TrimSpace(c.TavilyAPIKey) == "" {
			return fmt.Errorf("tavily provider requires an API key (TAVILY_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown search provider %q", c.SearchProvider)
	}
	return nil
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = os.Getenv
