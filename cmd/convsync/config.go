// Config loading for the convsync CLI.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys.
const (
	cfgAPIDomain        = "api.domain"
	cfgAPIAuth          = "api.auth"
	cfgAPIUser          = "api.user"
	cfgAPIPassword      = "api.password"
	cfgAPIToken         = "api.token"
	cfgAPIPageLimit     = "api.page_limit"
	cfgRetryMaxAttempts = "api.retry.max_attempts"
	cfgRetryMinWait     = "api.retry.min_wait"
	cfgRetryMaxWait     = "api.retry.max_wait"

	cfgDatabaseURL    = "database.url"
	cfgInitTables     = "database.init_tables"
	cfgUpsertStrategy = "database.upsert_strategy"

	cfgIncrementalDays = "sync.incremental_days"
	cfgCheckpointPath  = "sync.checkpoint_path"
	cfgLogEvery        = "sync.log_every"
	cfgDebugDir        = "sync.debug_dir"
	cfgEnrichComments  = "sync.enrich_comments"
	cfgEnrichInfo      = "sync.enrich_additional_info"

	cfgLogLevel = "log.level"
)

// Config is the resolved runtime configuration.
type Config struct {
	API struct {
		Domain    string
		Auth      string // "password" or "token"
		User      string
		Password  string
		Token     string
		PageLimit int
		Retry     struct {
			MaxAttempts int
			MinWait     time.Duration
			MaxWait     time.Duration
		}
	}
	Database struct {
		URL            string
		InitTables     bool
		UpsertStrategy string
	}
	Sync struct {
		IncrementalDays      int
		CheckpointPath       string
		LogEvery             int
		DebugDir             string
		EnrichComments       bool
		EnrichAdditionalInfo bool
	}
	Log struct {
		Level string
	}
}

// loadConfig reads convsync.yaml (or the file named by --config) and applies
// CONVSYNC_* environment overrides. A missing config file is not an error;
// everything can come from the environment.
func loadConfig(configFile string) (Config, error) {
	v := viper.New()

	v.SetDefault(cfgAPIAuth, "password")
	v.SetDefault(cfgAPIPageLimit, 100)
	v.SetDefault(cfgRetryMaxAttempts, 10)
	v.SetDefault(cfgRetryMinWait, "5s")
	v.SetDefault(cfgRetryMaxWait, "30s")
	v.SetDefault(cfgDatabaseURL, "convsync.db")
	v.SetDefault(cfgInitTables, true)
	v.SetDefault(cfgUpsertStrategy, "auto")
	v.SetDefault(cfgIncrementalDays, 3)
	v.SetDefault(cfgCheckpointPath, "convsync.checkpoint")
	v.SetDefault(cfgLogEvery, 100)
	v.SetDefault(cfgDebugDir, ".")
	v.SetDefault(cfgEnrichComments, false)
	v.SetDefault(cfgEnrichInfo, false)
	v.SetDefault(cfgLogLevel, "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("convsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CONVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	cfg.API.Domain = v.GetString(cfgAPIDomain)
	cfg.API.Auth = v.GetString(cfgAPIAuth)
	cfg.API.User = v.GetString(cfgAPIUser)
	cfg.API.Password = v.GetString(cfgAPIPassword)
	cfg.API.Token = v.GetString(cfgAPIToken)
	cfg.API.PageLimit = v.GetInt(cfgAPIPageLimit)
	cfg.API.Retry.MaxAttempts = v.GetInt(cfgRetryMaxAttempts)
	cfg.API.Retry.MinWait = v.GetDuration(cfgRetryMinWait)
	cfg.API.Retry.MaxWait = v.GetDuration(cfgRetryMaxWait)
	cfg.Database.URL = v.GetString(cfgDatabaseURL)
	cfg.Database.InitTables = v.GetBool(cfgInitTables)
	cfg.Database.UpsertStrategy = v.GetString(cfgUpsertStrategy)
	cfg.Sync.IncrementalDays = v.GetInt(cfgIncrementalDays)
	cfg.Sync.CheckpointPath = v.GetString(cfgCheckpointPath)
	cfg.Sync.LogEvery = v.GetInt(cfgLogEvery)
	cfg.Sync.DebugDir = v.GetString(cfgDebugDir)
	cfg.Sync.EnrichComments = v.GetBool(cfgEnrichComments)
	cfg.Sync.EnrichAdditionalInfo = v.GetBool(cfgEnrichInfo)
	cfg.Log.Level = v.GetString(cfgLogLevel)

	if cfg.API.Domain == "" {
		return Config{}, fmt.Errorf("%s is required", cfgAPIDomain)
	}
	switch cfg.API.Auth {
	case "password":
		if cfg.API.User == "" || cfg.API.Password == "" {
			return Config{}, fmt.Errorf("%s and %s are required for password auth",
				cfgAPIUser, cfgAPIPassword)
		}
	case "token":
		if cfg.API.Token == "" {
			return Config{}, fmt.Errorf("%s is required for token auth", cfgAPIToken)
		}
	default:
		return Config{}, fmt.Errorf("unknown auth mode %q", cfg.API.Auth)
	}
	return cfg, nil
}
