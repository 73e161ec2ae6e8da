package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/practicechat/internal/config"
	"github.com/vovakirdan/practicechat/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "practicechat",
		Short:         "Secure practice messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(
		newServeCmd(opts),
		newMemberCmd(opts),
		newTokenCmd(opts),
		newChatCmd(opts),
	)
	return root
}

// load resolves configuration with flag overrides applied last.
func (o *rootOptions) load(overrides config.Config) (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New(firstNonEmpty(o.logLevel, "info"), firstNonEmpty(o.logFormat, "console"))

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, fmt.Errorf("load config: %w", err)
	}
	overrides.LogLevel = o.logLevel
	overrides.LogFormat = o.logFormat
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, bootstrap, fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
