package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./feedsync.db" description:"Path to the sqlite database file"`

	// Application configuration
	AccountsFile      string `long:"accounts-file" env:"ACCOUNTS_FILE" default:"./accounts.yml" description:"Path to the accounts configuration file"`
	SecretsFile       string `long:"secrets-file" env:"SECRETS_FILE" default:"./secrets.env" description:"Path to the credentials file"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for sync tasks"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"600" description:"Account refresh interval in seconds"`
	FlushInterval     int    `long:"flush-interval" env:"FLUSH_INTERVAL" default:"60" description:"Pending status delivery interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Provider HTTP configuration
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"FeedSync/1.0" description:"User agent string for HTTP requests"`
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Provider request timeout in seconds"`
	PageSize       int    `long:"page-size" env:"PAGE_SIZE" default:"100" description:"Article page size for provider fetches"`

	// Provider sync tuning
	FeedbinBatchSize      int `long:"feedbin-batch-size" env:"FEEDBIN_BATCH_SIZE" default:"1000" description:"Status delivery batch size for Feedbin accounts"`
	FeedlyBatchSize       int `long:"feedly-batch-size" env:"FEEDLY_BATCH_SIZE" default:"1000" description:"Status delivery batch size for Feedly accounts"`
	NewsBlurBatchSize     int `long:"newsblur-batch-size" env:"NEWSBLUR_BATCH_SIZE" default:"5" description:"Status delivery batch size for NewsBlur accounts"`
	FeedWranglerBatchSize int `long:"feedwrangler-batch-size" env:"FEEDWRANGLER_BATCH_SIZE" default:"100" description:"Status delivery batch size for Feed Wrangler accounts"`
	SyncLookbackDays      int `long:"sync-lookback-days" env:"SYNC_LOOKBACK_DAYS" default:"90" description:"How many days of articles a sync pass covers"`
	SyncBackdateHours     int `long:"sync-backdate-hours" env:"SYNC_BACKDATE_HOURS" default:"24" description:"Hours subtracted from the incremental fetch boundary to absorb clock skew"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		AccountsFile:      raw.AccountsFile,
		SecretsFile:       raw.SecretsFile,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		FlushInterval:     raw.FlushInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		RequestTimeout:    raw.RequestTimeout,
		PageSize:          raw.PageSize,

		FeedbinBatchSize:      raw.FeedbinBatchSize,
		FeedlyBatchSize:       raw.FeedlyBatchSize,
		NewsBlurBatchSize:     raw.NewsBlurBatchSize,
		FeedWranglerBatchSize: raw.FeedWranglerBatchSize,
		SyncLookbackDays:      raw.SyncLookbackDays,
		SyncBackdateHours:     raw.SyncBackdateHours,

		Timezone: raw.Timezone,
		Debug:    raw.Debug,
		Version:  GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
