package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed priorities.yaml
var prioritiesYAML []byte

type Config struct {
	Server    ServerConfig
	Index     IndexConfig
	Alerting  AlertingConfig
	CoreData  CoreDataConfig
	Database  DatabaseConfig
	Log       LogConfig
	Dashboard DashboardConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type IndexConfig struct {
	Dim          int    // embedding dimension, fixed for the index lifetime (default 512)
	SnapshotPath string // base path for snapshot files (optional, empty disables persistence)
	// HNSWMinSize is the index size above which search switches to the
	// HNSW accelerated path. Zero keeps the exact flat scan always.
	HNSWMinSize int
}

type AlertingConfig struct {
	MatchThreshold     float64       // minimum cosine similarity for a person match
	SearchK            int           // candidates fetched per resolve, must exceed max embeddings per person
	RuleRefreshEvery   time.Duration // rules cache refresh interval
	SchedulerTick      time.Duration // escalation/auto-resolve check interval
	DefaultCooldownMin int           // cooldown for rules that do not set one
}

type CoreDataConfig struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (optional, empty runs with in-memory storage)
	MaxOpenConns int
	MaxIdleConns int
}

type LogConfig struct {
	File  string
	Level string
}

type DashboardConfig struct {
	Priorities PrioritiesConfig
}

// PrioritiesConfig maps alert priority names to dashboard display hints.
type PrioritiesConfig struct {
	Priorities map[string]DisplayHints `yaml:"priorities"`
}

// DisplayHints controls how the dashboard renders an alert of a given priority.
type DisplayHints struct {
	ShowPopup          bool   `yaml:"show_popup" json:"show_popup"`
	AutoDismissSeconds int    `yaml:"auto_dismiss_seconds" json:"auto_dismiss_seconds"`
	SoundAlert         bool   `yaml:"sound_alert" json:"sound_alert"`
	BadgeColor         string `yaml:"badge_color" json:"badge_color"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a time.Duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var priorities PrioritiesConfig
	if err := yaml.Unmarshal(prioritiesYAML, &priorities); err != nil {
		// Embedded file, a parse failure is a build defect.
		panic("failed to unmarshal embedded priorities.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Host: envString("FACEGUARD_HOST", "0.0.0.0"),
			Port: envInt("FACEGUARD_PORT", 8080),
		},
		Index: IndexConfig{
			Dim:          envInt("FACEGUARD_EMBEDDING_DIM", 512),
			SnapshotPath: os.Getenv("FACEGUARD_INDEX_SNAPSHOT_PATH"),
			HNSWMinSize:  envInt("FACEGUARD_HNSW_MIN_SIZE", 10000),
		},
		Alerting: AlertingConfig{
			MatchThreshold:     envFloat("FACEGUARD_MATCH_THRESHOLD", 0.6),
			SearchK:            envInt("FACEGUARD_SEARCH_K", 100),
			RuleRefreshEvery:   envDuration("FACEGUARD_RULE_REFRESH_INTERVAL", time.Minute),
			SchedulerTick:      envDuration("FACEGUARD_SCHEDULER_TICK", 30*time.Second),
			DefaultCooldownMin: envInt("FACEGUARD_DEFAULT_COOLDOWN_MINUTES", 30),
		},
		CoreData: CoreDataConfig{
			URL:        os.Getenv("COREDATA_URL"),
			Timeout:    envDuration("COREDATA_TIMEOUT", 10*time.Second),
			MaxRetries: envInt("COREDATA_MAX_RETRIES", 3),
			RetryDelay: envDuration("COREDATA_RETRY_DELAY", time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Log: LogConfig{
			File:  os.Getenv("FACEGUARD_LOG_FILE"),
			Level: envString("FACEGUARD_LOG_LEVEL", "INFO"),
		},
		Dashboard: DashboardConfig{
			Priorities: priorities,
		},
	}
}

// HintsFor returns the display hints for a priority, falling back to the
// medium entry so unknown priorities still render.
func (c *Config) HintsFor(priority string) DisplayHints {
	if hints, ok := c.Dashboard.Priorities.Priorities[priority]; ok {
		return hints
	}
	return c.Dashboard.Priorities.Priorities["medium"]
}
