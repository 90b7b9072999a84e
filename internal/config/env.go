package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "REMINDBOT"

// envOverrides are the secrets and deploy knobs that may come from the
// environment (REMINDBOT_TELEGRAM_TOKEN, ...). Set values win over the file.
type envOverrides struct {
	TelegramToken  string  `envconfig:"TELEGRAM_TOKEN"`
	TelegramOwners []int64 `envconfig:"TELEGRAM_OWNERS"`
	GroupLog       string  `envconfig:"GROUP_LOG"`
	LogLevel       string  `envconfig:"LOG_LEVEL"`
	Timezone       string  `envconfig:"TIMEZONE"`
	StorageDriver  string  `envconfig:"STORAGE_DRIVER"`
	StoragePath    string  `envconfig:"STORAGE_PATH"`
	SupabaseURL    string  `envconfig:"SUPABASE_URL"`
	SupabaseKey    string  `envconfig:"SUPABASE_KEY"`
	MongoURI       string  `envconfig:"MONGO_URI"`
	OpsAddr        string  `envconfig:"OPS_ADDR"`
	OpsToken       string  `envconfig:"OPS_TOKEN"`
	DefaultMessage string  `envconfig:"DEFAULT_MESSAGE"`
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// applyEnv overlays REMINDBOT_* variables onto cfg.
func applyEnv(cfg *Config) error {
	var e envOverrides
	if err := envconfig.Process(envPrefix, &e); err != nil {
		return err
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, e.TelegramToken)
	if len(e.TelegramOwners) > 0 {
		cfg.Telegram.OwnerUserIDs = e.TelegramOwners
	}
	set(&cfg.Telegram.GroupLog, e.GroupLog)
	set(&cfg.Logging.Level, e.LogLevel)
	set(&cfg.Scheduler.Timezone, e.Timezone)
	set(&cfg.Storage.Driver, e.StorageDriver)
	set(&cfg.Storage.Path, e.StoragePath)
	set(&cfg.Reminders.DefaultMessage, e.DefaultMessage)
	set(&cfg.Ops.Addr, e.OpsAddr)
	set(&cfg.Ops.Token, e.OpsToken)

	switch strings.ToLower(cfg.Storage.Driver) {
	case "supabase":
		set(&cfg.Storage.URL, e.SupabaseURL)
		set(&cfg.Storage.Key, e.SupabaseKey)
	case "mongo", "mongodb":
		set(&cfg.Storage.URL, e.MongoURI)
	}
	return nil
}
