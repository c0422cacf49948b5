// Package config loads ankibot settings from a YAML file, a .env file,
// ANKIBOT_* environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/conorfennell/ankibot/internal/review"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "ANKIBOT_"

// Config holds all configuration for the application.
type Config struct {
	Anki    AnkiConfig    `koanf:"anki"`
	Review  ReviewConfig  `koanf:"review"`
	Discord DiscordConfig `koanf:"discord"`
	Storage StorageConfig `koanf:"storage"`
	Web     WebConfig     `koanf:"web"`
	Log     LogConfig     `koanf:"log"`
}

// AnkiConfig points at the AnkiConnect add-on.
type AnkiConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Version int           `koanf:"version" validate:"min=1"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

type ReviewConfig struct {
	Deck    string        `koanf:"deck" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
	Mode    string        `koanf:"mode" validate:"oneof=auto gui direct"`
	Fields  FieldsConfig  `koanf:"fields"`
}

// FieldsConfig names the note fields shown on each side of a card.
type FieldsConfig struct {
	Term        string `koanf:"term" validate:"required"`
	Reading     string `koanf:"reading"`
	Kana        string `koanf:"kana"`
	Example     string `koanf:"example"`
	POS         string `koanf:"pos"`
	Meaning     string `koanf:"meaning" validate:"required"`
	Translation string `koanf:"translation"`
}

type DiscordConfig struct {
	Token  string `koanf:"token"`
	Prefix string `koanf:"prefix" validate:"required"`
	// Direct makes !review rate cards by id instead of driving the Anki window.
	Direct bool `koanf:"direct"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type WebConfig struct {
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	fields := review.DefaultFieldMap()
	return Config{
		Anki: AnkiConfig{
			URL:     "http://localhost:8765",
			Version: 6,
			Timeout: 10 * time.Second,
		},
		Review: ReviewConfig{
			Deck:    "Core 2000",
			Timeout: review.DefaultTimeout,
			Mode:    "auto",
			Fields: FieldsConfig{
				Term:        fields.Term,
				Reading:     fields.Reading,
				Kana:        fields.Kana,
				Example:     fields.Example,
				POS:         fields.PartOfSpeech,
				Meaning:     fields.Meaning,
				Translation: fields.Translation,
			},
		},
		Discord: DiscordConfig{Prefix: "!"},
		Storage: StorageConfig{Path: "ankibot.db"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// RegisterFlags adds the flags Load understands. Flag names use dashes
// where config keys use dots, so --anki-url sets anki.url.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.StringP("config", "c", "", "Path to a YAML config file")
	flags.String("anki-url", d.Anki.URL, "AnkiConnect URL")
	flags.Duration("anki-timeout", d.Anki.Timeout, "Timeout for each AnkiConnect request")
	flags.String("review-deck", d.Review.Deck, "Deck to review")
	flags.Duration("review-timeout", d.Review.Timeout, "How long to wait for each button press")
	flags.String("review-mode", d.Review.Mode, "How cards reach Anki: auto, gui or direct")
	flags.String("storage-path", d.Storage.Path, "SQLite database for review history (empty disables history)")
	flags.String("web-addr", d.Web.Addr, "Listen address of the history API (empty disables it)")
	flags.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	flags.String("log-format", d.Log.Format, "Log format: console or json")
}

// Load builds the configuration. flags may be nil; otherwise it must have
// been set up with RegisterFlags and parsed.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	var path string
	if flags != nil {
		path, _ = flags.GetString("config")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "."), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps ANKIBOT_REVIEW_FIELDS_TERM to review.fields.term.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FieldMap returns the note field names as the review package wants them.
func (c *Config) FieldMap() review.FieldMap {
	f := c.Review.Fields
	return review.FieldMap{
		Term:         f.Term,
		Reading:      f.Reading,
		Kana:         f.Kana,
		Example:      f.Example,
		PartOfSpeech: f.POS,
		Meaning:      f.Meaning,
		Translation:  f.Translation,
	}
}
