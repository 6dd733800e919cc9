// Package config loads studymate's configuration.
//
// Values are layered, each layer overriding the one before it: built-in
// defaults, a YAML file, STUDYMATE_* environment variables and command-line
// flags. In environment variable names a double underscore separates nested
// keys, so STUDYMATE_LOG__LEVEL sets log.level.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/studymate/internal/scheduler"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "STUDYMATE_"

type Config struct {
	DB         string           `koanf:"db" validate:"required"`
	ReposDir   string           `koanf:"repos_dir" validate:"required"`
	Log        LogConfig        `koanf:"log"`
	Scheduler  scheduler.Params `koanf:"scheduler"`
	Queue      QueueConfig      `koanf:"queue"`
	Generation GenerationConfig `koanf:"generation"`
	Ingest     IngestConfig     `koanf:"ingest"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type QueueConfig struct {
	// Limit caps the cards in one session; 0 means no limit.
	Limit int `koanf:"limit" validate:"gte=0"`
}

type GenerationConfig struct {
	// Timeout bounds one generation task; 0 means no timeout.
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

type IngestConfig struct {
	Workers int `koanf:"workers" validate:"gte=1,lte=64"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DB:         "studymate.db",
		ReposDir:   "repos",
		Log:        LogConfig{Level: "info", Format: "text"},
		Scheduler:  *scheduler.DefaultParams(),
		Generation: GenerationConfig{Timeout: 2 * time.Minute},
		Ingest:     IngestConfig{Workers: 4},
	}
}

// flagKeys maps the flags registered by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"db":                 "db",
	"repos-dir":          "repos_dir",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"queue-limit":        "queue.limit",
	"generation-timeout": "generation.timeout",
	"ingest-workers":     "ingest.workers",
}

// RegisterFlags adds the configuration flags to fs, including --config for
// the YAML file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", d.DB, "Path to the SQLite database file")
	fs.String("repos-dir", d.ReposDir, "Directory holding checkouts of git sources")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "Log format: text or json")
	fs.Int("queue-limit", d.Queue.Limit, "Maximum cards per review session (0 = no limit)")
	fs.Duration("generation-timeout", d.Generation.Timeout, "Timeout of one card generation task")
	fs.Int("ingest-workers", d.Ingest.Workers, "Files parsed in parallel during sync")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration from defaults, the file named by --config,
// the environment and the flags of fs that were set explicitly. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	var path string
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey turns STUDYMATE_LOG__LEVEL into log.level.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks every field, including the scheduler parameters.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger builds the process logger writing to w, or stderr when w is nil.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
