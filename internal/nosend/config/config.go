package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log LogConfig `koanf:"log"`

	Store StoreConfig `koanf:"store"`

	Cache CacheConfig `koanf:"cache"`

	Filter FilterConfig `koanf:"filter"`

	Rules RulesConfig `koanf:"rules"`

	// Timezone is the IANA zone that rule windows are written in.
	Timezone string `koanf:"timezone" validate:"required,iana_zone"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type StoreConfig struct {
	// Path is the bbolt database file.
	Path string `koanf:"path" validate:"required"`
}

// CacheConfig sizes the per-list rule set cache. Size 0 disables it.
type CacheConfig struct {
	Size int `koanf:"size" validate:"gte=0"`
	// TTL bounds how long a cached rule set may lag writes made by other processes.
	TTL time.Duration `koanf:"ttl" validate:"gte=0"`
}

// FilterConfig controls the list presence Bloom filter. Disable it when more
// than one process writes to the same store.
type FilterConfig struct {
	Enabled bool    `koanf:"enabled"`
	FPRate  float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

type RulesConfig struct {
	// Dir holds rule files imported at startup. Empty disables the import.
	Dir          string `koanf:"dir"`
	MaxRangeDays int    `koanf:"max_range_days" validate:"gte=1,lte=3660"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings
// for the no-send service.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	Log:      LogConfig{Level: "info"},
	Store:    StoreConfig{Path: "/var/lib/nosend/rules.db"},
	Cache:    CacheConfig{Size: 1024, TTL: 30 * time.Second},
	Filter:   FilterConfig{Enabled: true, FPRate: 0.01},
	Rules:    RulesConfig{Dir: "", MaxRangeDays: 366},
	Timezone: "UTC",
}

// sections are the nested config groups; an env key whose first segment
// names one is split there, so NOSEND_RULES_MAX_RANGE_DAYS becomes
// rules.max_range_days.
var sections = map[string]struct{}{
	"log": {}, "store": {}, "cache": {}, "filter": {}, "rules": {},
}

// envKey maps a lowercased, prefix-free env key onto its koanf path.
func envKey(key string) string {
	head, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	if _, nested := sections[head]; nested {
		return head + "." + rest
	}
	return key
}

// validTimezone reports whether the field names a loadable IANA location.
// "Local" is rejected so evaluation never depends on the host's zone.
func validTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || strings.EqualFold(name, "local") {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// Location returns the configured evaluation timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// envLoader loads environment variables with the prefix "NOSEND_",
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "NOSEND_",
		TransformFunc: func(key, value string) (string, any) {
			key = envKey(strings.ToLower(strings.TrimPrefix(key, "NOSEND_")))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the "iana_zone" tag with the provided validator.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("iana_zone", validTimezone)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
