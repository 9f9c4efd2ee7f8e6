package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the crawler.
type Config struct {
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	GithubToken      string `mapstructure:"GITHUB_TOKEN"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     int    `mapstructure:"POSTGRES_PORT"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	ReposToFetch     int    `mapstructure:"REPOS_TO_FETCH"`
	ShardWindowDays  int    `mapstructure:"SHARD_WINDOW_DAYS"`
	StartYear        int    `mapstructure:"START_YEAR"`
	EndYear          int    `mapstructure:"END_YEAR"`
	APIAddr          string `mapstructure:"API_ADDR"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_DB", "postgres")
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "postgres")
	viper.SetDefault("REPOS_TO_FETCH", 25000)
	viper.SetDefault("SHARD_WINDOW_DAYS", 7)
	viper.SetDefault("START_YEAR", 2010)
	viper.SetDefault("END_YEAR", 2014)
	viper.SetDefault("API_ADDR", ":8080")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if cfg.StartYear > cfg.EndYear {
		return nil, fmt.Errorf("START_YEAR (%d) must not be after END_YEAR (%d)", cfg.StartYear, cfg.EndYear)
	}
	if cfg.ShardWindowDays < 1 {
		return nil, errors.New("SHARD_WINDOW_DAYS must be at least 1")
	}
	if cfg.ReposToFetch < 1 {
		return nil, errors.New("REPOS_TO_FETCH must be at least 1")
	}

	return &cfg, nil
}

// DatabaseURL composes a postgres connection string from the individual fields.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
	)
}

// CrawlRange returns the inclusive creation-date range covered by the crawl:
// January 1 of StartYear through December 31 of EndYear, UTC.
func (c *Config) CrawlRange() (time.Time, time.Time) {
	start := time.Date(c.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(c.EndYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	return start, end
}
