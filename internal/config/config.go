// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// AWS settings
	AWSRegion string `mapstructure:"awsregion"`

	// Object storage layout
	StatsBucket string `mapstructure:"statsbucket"`
	StatsPrefix string `mapstructure:"statsprefix"`
	UsagePrefix string `mapstructure:"usageprefix"`

	// Bulk query engine (Athena)
	AthenaDatabase     string `mapstructure:"athenadatabase"`
	AthenaTable        string `mapstructure:"athenatable"`
	UsageAthenaTable   string `mapstructure:"usageathenatable"`
	AthenaResultBucket string `mapstructure:"athenaresultbucket"`
	AthenaResultPrefix string `mapstructure:"athenaresultprefix"`

	// Key-value store tables
	ContainerTable string `mapstructure:"containertable"`
	UsageTable     string `mapstructure:"usagetable"`

	// Query polling
	PollMaxAttempts  int `mapstructure:"pollmaxattempts"`
	PollBaseDelayMs  int `mapstructure:"pollbasedelayms"`
	PollMaxDelaySecs int `mapstructure:"pollmaxdelaysecs"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "tagstats")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("awsregion", "us-east-1")
		v.SetDefault("statsprefix", "stats/")
		v.SetDefault("usageprefix", "usage/")
		v.SetDefault("athenaresultprefix", "")
		v.SetDefault("pollmaxattempts", 10)
		v.SetDefault("pollbasedelayms", 1000)
		v.SetDefault("pollmaxdelaysecs", 600)
		v.SetDefault("jobintervalseconds", 3600)

		// Bind environment variables
		v.BindEnv("appname", "TAGSTATS_APP_NAME")
		v.BindEnv("appport", "TAGSTATS_APP_PORT")
		v.BindEnv("environment", "TAGSTATS_ENV")
		v.BindEnv("loglevel", "TAGSTATS_LOG_LEVEL")
		v.BindEnv("logsdir", "TAGSTATS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "TAGSTATS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "TAGSTATS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "TAGSTATS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("awsregion", "TAGSTATS_AWS_REGION")
		v.BindEnv("statsbucket", "TAGSTATS_STATS_BUCKET")
		v.BindEnv("statsprefix", "TAGSTATS_STATS_PREFIX")
		v.BindEnv("usageprefix", "TAGSTATS_USAGE_PREFIX")
		v.BindEnv("athenadatabase", "TAGSTATS_ATHENA_DATABASE")
		v.BindEnv("athenatable", "TAGSTATS_ATHENA_TABLE")
		v.BindEnv("usageathenatable", "TAGSTATS_USAGE_ATHENA_TABLE")
		v.BindEnv("athenaresultbucket", "TAGSTATS_ATHENA_RESULT_BUCKET")
		v.BindEnv("athenaresultprefix", "TAGSTATS_ATHENA_RESULT_PREFIX")
		v.BindEnv("containertable", "TAGSTATS_CONTAINER_DYNAMODB_TABLE")
		v.BindEnv("usagetable", "TAGSTATS_USAGE_DYNAMODB_TABLE")
		v.BindEnv("pollmaxattempts", "TAGSTATS_POLL_MAX_ATTEMPTS")
		v.BindEnv("pollbasedelayms", "TAGSTATS_POLL_BASE_DELAY_MS")
		v.BindEnv("pollmaxdelaysecs", "TAGSTATS_POLL_MAX_DELAY_SECS")
		v.BindEnv("jobintervalseconds", "TAGSTATS_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("invalid poll max attempts: %d", c.PollMaxAttempts)
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// PollBaseDelay returns the initial poll backoff delay.
func (c *Config) PollBaseDelay() time.Duration {
	return time.Duration(c.PollBaseDelayMs) * time.Millisecond
}

// PollMaxDelay returns the poll backoff cap.
func (c *Config) PollMaxDelay() time.Duration {
	return time.Duration(c.PollMaxDelaySecs) * time.Second
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
