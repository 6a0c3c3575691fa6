package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leighmacdonald/watchdog/internal/archive"
	"github.com/leighmacdonald/watchdog/internal/cache"
	"github.com/leighmacdonald/watchdog/internal/directory"
	"github.com/leighmacdonald/watchdog/internal/discord"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/leighmacdonald/watchdog/internal/watchdog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "watchdog",
		Short: "RCON moderation bot for dedicated game servers",
		Long: `watchdog keeps an RCON session open to every configured game server, records
punishments issued in game, reverts changes made by unauthorized admins and relays
activity to discord.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Config file path (default is watchdog.yaml in the user config dir)")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newCheckCmd(opts))
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func loadSettings(configPath string) (*watchdog.Settings, error) {
	settings := watchdog.NewSettings()

	if configPath == "" {
		if errRead := settings.ReadDefaultOrCreate(); errRead != nil {
			return nil, errors.Wrap(errRead, "Failed to read default settings")
		}

		return settings, nil
	}

	if errRead := settings.ReadFilePath(configPath); errRead != nil {
		return nil, errors.Wrapf(errRead, "Failed to read settings: %s", configPath)
	}

	return settings, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to every configured server and start moderating",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, errSettings := loadSettings(opts.configPath)
			if errSettings != nil {
				return errSettings
			}

			logger := MustCreateLogger(settings)
			defer func() {
				_ = logger.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if errServe := serve(ctx, logger, settings); errServe != nil {
				logger.Error("Sad Goodbye", zap.Error(errServe))

				return errServe
			}

			return nil
		},
	}
}

func serve(ctx context.Context, logger *zap.Logger, settings *watchdog.Settings) error {
	logger.Info("Starting watchdog",
		zap.String("version", version),
		zap.String("date", date),
		zap.String("commit", commit),
		zap.String("via", builtBy),
		zap.String("config", settings.ConfigPath()),
		zap.Strings("servers", settings.ServerNames()))

	database := store.New(settings.DBPath(), logger)
	if errInit := database.Init(); errInit != nil {
		return errors.Wrap(errInit, "Failed to setup database")
	}

	defer func() {
		if errClose := database.Close(); errClose != nil {
			logger.Error("Failed to close database", zap.Error(errClose))
		}
	}()

	var playerCache watchdog.PlayerCache

	if settings.RedisURL != "" {
		redisCache, errRedis := cache.NewRedis(ctx, logger, settings.RedisURL, settings.PlayerCacheTTL)
		if errRedis != nil {
			return errRedis
		}

		defer func() {
			_ = redisCache.Close()
		}()

		playerCache = redisCache
	}

	var lookup directory.Lookup

	if settings.SteamAPIKey != "" {
		steam, errSteam := directory.NewSteam(settings.SteamAPIKey)
		if errSteam != nil {
			return errSteam
		}

		lookup = directory.Chain{steam}
	}

	webhooks := discord.NewWebhooks(logger, watchdog.DurationWebhookTimeout)
	for _, server := range settings.Servers {
		webhooks.Register(server.Name, server.Webhooks)
	}

	app, errApp := watchdog.New(logger, watchdog.Options{
		Settings: settings,
		History:  database,
		Cache:    playerCache,
		Lookup:   lookup,
		Notifier: webhooks,
		Archiver: archive.NewPaste(settings.PasteURL, watchdog.DurationWebhookTimeout),
	})
	if errApp != nil {
		return errApp
	}

	return app.Start(ctx)
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and list the configured servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, errSettings := loadSettings(opts.configPath)
			if errSettings != nil {
				return errSettings
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Config: %s\n", settings.ConfigPath())
			_, _ = fmt.Fprintf(out, "Database: %s\n", settings.DBPath())

			for _, server := range settings.Servers {
				_, _ = fmt.Fprintf(out, "Server: %s\n", server)
			}

			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	var follow bool

	parseCmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a file of broadcast lines and print the events as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return replay(ctx, args[0], follow, cmd.OutOrStdout())
		},
	}

	parseCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep reading as the file grows")

	return parseCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build info",
		Run: func(cmd *cobra.Command, _ []string) {
			info := watchdog.Version{Version: version, Commit: commit, Date: date, BuiltBy: builtBy}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "watchdog %s (commit: %s, date: %s, via: %s)\n",
				info.Version, info.Commit, info.Date, info.BuiltBy)
		},
	}
}
