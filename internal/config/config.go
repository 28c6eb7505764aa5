// Package config loads the program configuration from the environment, with
// optional command-line overrides for local development. There should be
// only one effective Config per run.
package config

import (
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"

	"github.com/cattackle-hq/cattackle-core/internal/errs"
	"github.com/cattackle-hq/cattackle-core/internal/logging"
	"github.com/cattackle-hq/cattackle-core/internal/logs"
)

// Default values for the config options that may be omitted.
const (
	defaultCattacklesDir    = "./cattackles"
	defaultUpdateIDFilePath = "./data/update_id"
	defaultMaxMessages      = 100
	defaultMaxMessageLength = 1000
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultAdminAddr        = ":8080"
	defaultChatLogDir       = "./logs/chats"
)

// Config is the parsed configuration of the program run.
type Config struct {
	// TelegramBotToken authenticates the platform client. Required.
	TelegramBotToken string `mapstructure:"telegram_bot_token"`

	// CattacklesDir is the directory scanned for plugin manifests.
	CattacklesDir string `mapstructure:"cattackles_dir"`

	// UpdateIDFilePath is where the offset store persists the next offset.
	UpdateIDFilePath string `mapstructure:"update_id_file_path"`

	// MaxMessagesPerChat bounds the accumulator's per-chat FIFO.
	MaxMessagesPerChat int `mapstructure:"max_messages_per_chat"`

	// MaxMessageLength bounds each stored accumulator element.
	MaxMessageLength int `mapstructure:"max_message_length"`

	// FeedbackEnabled toggles the accumulator manager's "message stored"
	// replies.
	FeedbackEnabled bool `mapstructure:"feedback_enabled"`

	// AdminAddr is the listen address for the admin/health HTTP surface.
	AdminAddr string `mapstructure:"admin_addr"`

	// ChatLogDir is the directory for the daily chat audit log.
	ChatLogDir string `mapstructure:"chat_log_dir"`

	// Logging holds the logging configuration.
	Logging logging.Config `mapstructure:",squash"`
}

// envKeys lists every environment variable this package recognizes, lower-
// cased to match the mapstructure tags above.
var envKeys = []string{ //nolint:gochecknoglobals
	"telegram_bot_token",
	"cattackles_dir",
	"update_id_file_path",
	"max_messages_per_chat",
	"max_message_length",
	"feedback_enabled",
	"admin_addr",
	"chat_log_dir",
	"log_format",
	"log_output",
	"log_level",
	"log_enabled",
}

// Default returns the default configuration values, before the environment
// or any flag overrides are applied.
func Default() *Config {
	return &Config{
		CattacklesDir:      defaultCattacklesDir,
		UpdateIDFilePath:   defaultUpdateIDFilePath,
		MaxMessagesPerChat: defaultMaxMessages,
		MaxMessageLength:   defaultMaxMessageLength,
		FeedbackEnabled:    true,
		AdminAddr:          defaultAdminAddr,
		ChatLogDir:         defaultChatLogDir,
		Logging: logging.Config{
			Format:  defaultLogFormat,
			Output:  "stderr",
			Enabled: true,
		},
	}
}

// Load reads the configuration from the process environment, applies any
// matching flags in args as overrides, and validates the result.
func Load(args []string) (*Config, error) {
	raw := map[string]any{}

	for _, key := range envKeys {
		v, ok := os.LookupEnv(strings.ToUpper(key))
		if ok {
			raw[key] = v
		}
	}

	if err := applyFlagOverrides(raw, args); err != nil {
		return nil, errs.Wrap(errs.KindConfigurationError, "failed to parse command-line flags", err)
	}

	cfg := Default()

	// logs.Level is a named integer type, not something mapstructure can
	// derive from a level name like "info"; parse it explicitly and decode
	// the rest of the fields normally.
	levelRaw, hasLevel := raw["log_level"]
	delete(raw, "log_level")

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigurationError, "failed to build config decoder", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, errs.Wrap(errs.KindConfigurationError, "failed to decode configuration", err)
	}

	if hasLevel {
		lvl, lerr := parseLevelOrDefault(levelRaw)
		if lerr != nil {
			return nil, errs.Wrap(errs.KindConfigurationError, "invalid log_level", lerr)
		}

		cfg.Logging.Level = lvl
	} else {
		cfg.Logging.Level = logs.LevelInfo
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		return errs.New(errs.KindConfigurationError, "telegram_bot_token is required")
	}

	if cfg.MaxMessagesPerChat < 0 {
		return errs.New(errs.KindConfigurationError, "max_messages_per_chat must not be negative")
	}

	if cfg.MaxMessageLength < 0 {
		return errs.New(errs.KindConfigurationError, "max_message_length must not be negative")
	}

	return nil
}

// applyFlagOverrides parses args for any recognized flags and merges them
// into raw, taking precedence over the environment.
func applyFlagOverrides(raw map[string]any, args []string) error {
	if len(args) == 0 {
		return nil
	}

	fs := pflag.NewFlagSet("cattackle-core", pflag.ContinueOnError)
	fs.String("telegram-bot-token", "", "Telegram bot token")
	fs.String("cattackles-dir", "", "directory scanned for plugin manifests")
	fs.String("update-id-file-path", "", "path to the persisted poller offset")
	fs.Int("max-messages-per-chat", 0, "accumulator per-chat message cap")
	fs.Int("max-message-length", 0, "accumulator per-message length cap")
	fs.String("log-level", "", "logging level (trace, debug, info, warn, error)")
	fs.String("log-format", "", "logging format (json, text)")
	fs.String("admin-addr", "", "listen address for the admin/health HTTP surface")

	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck
	}

	fs.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		raw[key] = f.Value.String()
	})

	return nil
}

func parseLevelOrDefault(v any) (logs.Level, error) {
	s, _ := v.(string)
	if s == "" {
		s = defaultLogLevel
	}

	return logs.ParseLevel(s)
}
