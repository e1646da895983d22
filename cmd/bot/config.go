package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"errand-bot/internal/driver"
	"errand-bot/internal/fetch"
	"errand-bot/internal/store"
	"errand-bot/modules/digest"
	"errand-bot/modules/reminder"
	"errand-bot/pkg/errand"
	"errand-bot/pkg/schedule"
)

const (
	envConfigFile           = "ERRAND_CONFIG_FILE"
	envGiphyAPIKey          = "ERRAND_GIPHY_API_KEY"
	envWakaTimeAPIKey       = "ERRAND_WAKATIME_API_KEY"
	envProductHuntToken     = "ERRAND_PRODUCTHUNT_TOKEN"
	defaultConfigFilePath   = "config/bot.json"
	alternateConfigFilePath = "bin/config/bot.json"
	defaultStoreDir         = "~/.errand-bot/state"

	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
)

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	drivers []driver.Definition
	store   store.Config
	fetch   fetch.Config

	reminderScanInterval time.Duration
	digest               digest.Config
}

type fileConfig struct {
	LogLevel string             `json:"log_level"`
	Kernel   fileKernelConfig   `json:"kernel"`
	Drivers  []fileDriverEntry  `json:"drivers"`
	Store    fileStoreConfig    `json:"store"`
	Fetch    fileFetchConfig    `json:"fetch"`
	Reminder fileReminderConfig `json:"reminder"`
	Digest   fileDigestConfig   `json:"digest"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

type fileStoreConfig struct {
	Dir          string  `json:"dir"`
	CacheSizeMax *uint64 `json:"cache_size_max"`
}

type fileFetchConfig struct {
	Timeout           string `json:"timeout"`
	UserAgent         string `json:"user_agent"`
	DictionaryBaseURL string `json:"dictionary_base_url"`
	GiphyBaseURL      string `json:"giphy_base_url"`
	WikipediaBaseURL  string `json:"wikipedia_base_url"`
	ProductHuntURL    string `json:"producthunt_url"`
	DevToBaseURL      string `json:"devto_base_url"`
	WakaTimeBaseURL   string `json:"wakatime_base_url"`
	GiphyAPIKey       string `json:"giphy_api_key"`
	ProductHuntToken  string `json:"producthunt_token"`
	WakaTimeAPIKey    string `json:"wakatime_api_key"`
}

type fileReminderConfig struct {
	ScanInterval string `json:"scan_interval"`
}

type fileDigestConfig struct {
	OwnerChatID      string `json:"owner_chat_id"`
	OwnerChatType    string `json:"owner_chat_type"`
	Sink             string `json:"sink"`
	DailyAt          string `json:"daily_at"`
	ActivityInterval string `json:"activity_interval"`
	IdleInterval     string `json:"idle_interval"`
}

// loadConfig reads the config file, fills secrets from the environment and
// checks the result against the driver registry.
func loadConfig(registry *driver.Registry) (appConfig, error) {
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	cfg := defaultAppConfig()
	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	applyEnvSecrets(&cfg, os.LookupEnv)
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

// resolveConfigFilePath prefers ERRAND_CONFIG_FILE, then the first existing
// default location.
func resolveConfigFilePath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(envConfigFile)); explicit != "" {
		return explicit, nil
	}

	for _, candidate := range []string{defaultConfigFilePath, alternateConfigFilePath} {
		info, err := os.Stat(candidate)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		case info.IsDir():
			return "", fmt.Errorf("config file %s is a directory", candidate)
		}
		return candidate, nil
	}

	return "", fmt.Errorf("config file not found; create %s or %s, or set %s",
		defaultConfigFilePath, alternateConfigFilePath, envConfigFile)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		store: store.Config{Dir: defaultStoreDir},

		reminderScanInterval: reminder.DefaultScanInterval,
		digest:               digest.DefaultConfig(),
	}
}

// fieldParser applies optional file values onto the config. Blank values
// leave the default in place; after the first failure every call is a no-op.
type fieldParser struct {
	err error
}

func (p *fieldParser) fail(field string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", field, err)
	}
}

// duration parses a Go duration. Zero is accepted only when allowZero is set.
func (p *fieldParser) duration(field string, raw string, dst *time.Duration, allowZero bool) {
	raw = strings.TrimSpace(raw)
	if p.err != nil || raw == "" {
		return
	}

	value, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		p.fail(field, err)
	case value < 0, value == 0 && !allowZero:
		p.fail(field, fmt.Errorf("must be > 0, got %s", value))
	default:
		*dst = value
	}
}

func (p *fieldParser) positive(field string, raw *int, dst *int) {
	if p.err != nil || raw == nil {
		return
	}
	if *raw <= 0 {
		p.fail(field, fmt.Errorf("must be > 0, got %d", *raw))
		return
	}
	*dst = *raw
}

func (p *fieldParser) text(raw string, dst *string) {
	if value := strings.TrimSpace(raw); value != "" {
		*dst = value
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if raw := strings.TrimSpace(parsed.LogLevel); raw != "" {
		level, err := parseLogLevel(raw)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: entry.Enabled == nil || *entry.Enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	fields := &fieldParser{}
	kernel := parsed.Kernel
	fields.duration("kernel.module_hook_timeout", kernel.ModuleHookTimeout, &cfg.moduleHookTimeout, false)
	fields.duration("kernel.shutdown_timeout", kernel.ShutdownTimeout, &cfg.shutdownTimeout, false)
	fields.positive("kernel.subscription_buffer", kernel.SubscriptionBuffer, &cfg.subscriptionBuffer)
	fields.positive("kernel.subscription_workers", kernel.SubscriptionWorkers, &cfg.subscriptionWorkers)

	fields.text(parsed.Store.Dir, &cfg.store.Dir)
	if parsed.Store.CacheSizeMax != nil {
		cfg.store.CacheSizeMax = *parsed.Store.CacheSizeMax
	}

	applyFetchConfig(fields, &cfg.fetch, parsed.Fetch)
	fields.duration("reminder.scan_interval", parsed.Reminder.ScanInterval, &cfg.reminderScanInterval, false)
	applyDigestConfig(fields, &cfg.digest, parsed.Digest)

	return fields.err
}

func applyFetchConfig(fields *fieldParser, cfg *fetch.Config, parsed fileFetchConfig) {
	fields.duration("fetch.timeout", parsed.Timeout, &cfg.Timeout, false)
	for _, value := range []struct {
		raw string
		dst *string
	}{
		{parsed.UserAgent, &cfg.UserAgent},
		{parsed.DictionaryBaseURL, &cfg.DictionaryBaseURL},
		{parsed.GiphyBaseURL, &cfg.GiphyBaseURL},
		{parsed.WikipediaBaseURL, &cfg.WikipediaBaseURL},
		{parsed.ProductHuntURL, &cfg.ProductHuntURL},
		{parsed.DevToBaseURL, &cfg.DevToBaseURL},
		{parsed.WakaTimeBaseURL, &cfg.WakaTimeBaseURL},
		{parsed.GiphyAPIKey, &cfg.GiphyAPIKey},
		{parsed.ProductHuntToken, &cfg.ProductHuntToken},
		{parsed.WakaTimeAPIKey, &cfg.WakaTimeAPIKey},
	} {
		fields.text(value.raw, value.dst)
	}
}

// applyDigestConfig reads the owner conversation and job timing. The sink is
// stored by name only; validateAppConfig fills in its platform.
func applyDigestConfig(fields *fieldParser, cfg *digest.Config, parsed fileDigestConfig) {
	if ownerID := strings.TrimSpace(parsed.OwnerChatID); ownerID != "" {
		cfg.Owner = errand.Conversation{ID: ownerID, Type: errand.ConversationTypePrivate}
		if ownerType := strings.TrimSpace(parsed.OwnerChatType); ownerType != "" {
			cfg.Owner.Type = errand.ConversationType(ownerType)
		}
	}
	if sinkName := strings.TrimSpace(parsed.Sink); sinkName != "" {
		cfg.Sink = &errand.SinkRef{ID: sinkName}
	}
	if raw := strings.TrimSpace(parsed.DailyAt); raw != "" && fields.err == nil {
		dailyAt, err := schedule.ParseTimeOfDay(raw)
		if err != nil {
			fields.fail("digest.daily_at", err)
		} else {
			cfg.DailyAt = dailyAt
		}
	}
	fields.duration("digest.activity_interval", parsed.ActivityInterval, &cfg.ActivityInterval, false)
	fields.duration("digest.idle_interval", parsed.IdleInterval, &cfg.IdleInterval, true)
}

// applyEnvSecrets lets the environment fill credentials the file leaves empty.
func applyEnvSecrets(cfg *appConfig, lookupEnv func(string) (string, bool)) {
	secrets := []struct {
		env    string
		target *string
	}{
		{env: envGiphyAPIKey, target: &cfg.fetch.GiphyAPIKey},
		{env: envWakaTimeAPIKey, target: &cfg.fetch.WakaTimeAPIKey},
		{env: envProductHuntToken, target: &cfg.fetch.ProductHuntToken},
	}
	for _, secret := range secrets {
		if *secret.target != "" {
			continue
		}
		if value, ok := lookupEnv(secret.env); ok {
			*secret.target = strings.TrimSpace(value)
		}
	}
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabledByName := make(map[string]errand.Platform, len(cfg.drivers))
	seenNames := make(map[string]struct{}, len(cfg.drivers))
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := seenNames[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if !definition.Enabled {
			continue
		}
		platform, err := registry.PlatformForType(definition.Type)
		if err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabledByName[definition.Name] = platform
	}
	if len(enabledByName) == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	if cfg.digest.Sink != nil {
		platform, exists := enabledByName[cfg.digest.Sink.ID]
		if !exists {
			return fmt.Errorf("digest.sink: unknown driver id %s", cfg.digest.Sink.ID)
		}
		cfg.digest.Sink.Platform = platform
	}
	if cfg.digest.Owner.ID != "" {
		switch cfg.digest.Owner.Type {
		case errand.ConversationTypePrivate, errand.ConversationTypeGroup, errand.ConversationTypeChannel:
		default:
			return fmt.Errorf("digest.owner_chat_type: unsupported type %q", cfg.digest.Owner.Type)
		}
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
