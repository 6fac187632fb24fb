package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the hypothesis agent system
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Session    SessionConfig    `mapstructure:"session"`
	GraphStore GraphStoreConfig `mapstructure:"graph_store"`
	Annotation AnnotationConfig `mapstructure:"annotation"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
}

// LLMConfig contains oracle provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single oracle provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, anthropic, local
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different call sites
type LLMRoutingConfig struct {
	Classification string `mapstructure:"classification"` // mode detection
	Planning       string `mapstructure:"planning"`       // plan generation and reflection
	Chatting       string `mapstructure:"chatting"`       // conversational replies
	GraphQuery     string `mapstructure:"graph_query"`    // Cypher generation
	TabularQuery   string `mapstructure:"tabular_query"`  // SQL generation over the annotation table
	Synthesis      string `mapstructure:"synthesis"`      // hypothesis generation
	Fallback       string `mapstructure:"fallback"`
}

// ModelFor returns the routed model for a call site, falling back when unset.
func (r LLMRoutingConfig) ModelFor(site string) string {
	m := ""
	switch site {
	case "classification":
		m = r.Classification
	case "planning":
		m = r.Planning
	case "chatting":
		m = r.Chatting
	case "graph_query":
		m = r.GraphQuery
	case "tabular_query":
		m = r.TabularQuery
	case "synthesis":
		m = r.Synthesis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// AgentsConfig contains planner/executor tunables
type AgentsConfig struct {
	MaxRetries         int           `mapstructure:"max_retries"` // bounded retry per generated query and per plan
	StepTimeout        time.Duration `mapstructure:"step_timeout"`
	MaxConcurrentTurns int           `mapstructure:"max_concurrent_turns"`
}

// SessionConfig controls session storage and conversational context
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"` // inmemory | redis
	TTL           time.Duration `mapstructure:"ttl"`
	ContextWindow int           `mapstructure:"context_window"` // recent turns given to prompts
	RecallHits    int           `mapstructure:"recall_hits"`    // earlier turns recalled by search
	SweepSchedule string        `mapstructure:"sweep_schedule"` // cron spec for expiry sweep
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains redis connection settings for the session backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GraphStoreConfig contains pathway graph store (Neo4j) settings
type GraphStoreConfig struct {
	URI          string        `mapstructure:"uri"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// AnnotationConfig contains genome annotation dataset settings
type AnnotationConfig struct {
	GAFPath string `mapstructure:"gaf_path"`
	MaxRows int    `mapstructure:"max_rows"` // default row limit hinted to query generation
}

// StorageConfig contains optional Postgres persistence settings
type StorageConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.url or host/dbname)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// LoadConfig reads configuration from a JSON file plus HYPO_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("server.auth_enabled", true)
	viper.SetDefault("agents.max_retries", 3)
	viper.SetDefault("agents.step_timeout", "45s")
	viper.SetDefault("agents.max_concurrent_turns", 8)
	viper.SetDefault("session.backend", "inmemory")
	viper.SetDefault("session.ttl", "2h")
	viper.SetDefault("session.context_window", 12)
	viper.SetDefault("session.recall_hits", 4)
	viper.SetDefault("session.sweep_schedule", "*/10 * * * *")
	viper.SetDefault("graph_store.uri", "bolt://localhost:7687")
	viper.SetDefault("graph_store.username", "neo4j")
	viper.SetDefault("graph_store.query_timeout", "30s")
	viper.SetDefault("annotation.max_rows", 10)
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("HYPO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("[CONFIG] error reading config file: %v", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("[CONFIG] unable to decode config: %v", err)
	}
	return &cfg
}
