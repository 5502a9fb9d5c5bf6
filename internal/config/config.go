// Package config loads studynotes settings. Later sources override earlier
// ones: built-in defaults, an optional YAML file, STUDYNOTES_* environment
// variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates levels: STUDYNOTES_STUDY__DECK_LIMIT sets study.deck_limit.
const EnvPrefix = "STUDYNOTES_"

const (
	ProviderPlaceholder = "placeholder"
	ProviderOpenAI      = "openai"
)

type Config struct {
	DB      DBConfig      `koanf:"db"`
	User    string        `koanf:"user" validate:"required"`
	Server  ServerConfig  `koanf:"server"`
	Study   StudyConfig   `koanf:"study"`
	Sources SourcesConfig `koanf:"sources"`
	AI      AIConfig      `koanf:"ai"`
	Log     LogConfig     `koanf:"log"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// StudyConfig tunes study runs.
type StudyConfig struct {
	// DeckLimit caps the number of due cards in one run.
	DeckLimit int `koanf:"deck_limit" validate:"gte=1,lte=1000"`
	// FinalizeOnExit records a run left early instead of discarding it.
	FinalizeOnExit bool `koanf:"finalize_on_exit"`
	RecentSessions int  `koanf:"recent_sessions" validate:"gte=1,lte=1000"`
}

type SourcesConfig struct {
	// ReposDir holds checkouts of git sources.
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

type AIConfig struct {
	Provider string `koanf:"provider" validate:"oneof=placeholder openai"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key" validate:"required_if=Provider openai"`
	BaseURL  string `koanf:"base_url" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns the built-in settings. Data lives under the user's
// config directory when it can be found.
func Default() Config {
	dir := "."
	if d, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(d, "studynotes")
	}
	return Config{
		DB:     DBConfig{Path: filepath.Join(dir, "studynotes.db")},
		User:   "local",
		Server: ServerConfig{Addr: ":8080"},
		Study: StudyConfig{
			DeckLimit:      20,
			FinalizeOnExit: true,
			RecentSessions: 10,
		},
		Sources: SourcesConfig{ReposDir: filepath.Join(dir, "repos")},
		AI:      AIConfig{Provider: ProviderPlaceholder},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are not configuration.
var flagKeys = map[string]string{
	"db":               "db.path",
	"user":             "user",
	"addr":             "server.addr",
	"deck-limit":       "study.deck_limit",
	"finalize-on-exit": "study.finalize_on_exit",
	"repos-dir":        "sources.repos_dir",
	"ai-provider":      "ai.provider",
	"ai-model":         "ai.model",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

// Load builds the configuration. path names an optional YAML file; flags
// may be nil. Only flags set explicitly override other sources.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envToKey := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("loading flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
