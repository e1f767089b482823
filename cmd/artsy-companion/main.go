// Command artsy-companion runs the art-discovery companion: a UI bridge
// server plus one-shot commands for search, auth and favorites.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/app"
	"github.com/justestif/go-artsy-companion/internal/config"
	"github.com/justestif/go-artsy-companion/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

type rootOptions struct {
	configPath string
	logLevel   string
	baseURL    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "artsy-companion",
		Short:         "Search artists, manage favorites and serve the UI bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "Config file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "Backend base URL override")

	root.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newLogoutCmd(opts),
		newDeleteAccountCmd(opts),
		newStatusCmd(opts),
		newFavoritesCmd(opts),
		newArtistCmd(opts),
		newCookiesCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// withApp builds the app for one command and tears it down afterwards.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing app", zap.Error(err))
		}
	}()

	return fn(ctx, a)
}
