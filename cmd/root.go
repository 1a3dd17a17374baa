// Package cmd defines the CLI commands for the brokenlinks executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/brokenlinks/internal/config"
	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/dispatcher"
	"github.com/JakeFAU/brokenlinks/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface the commands drive.
// Tests inject a fake through newApp.
type App interface {
	Crawl(ctx context.Context, req dispatcher.Request) (crawler.Info, error)
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	return server.Build(ctx, cfg, nil)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "brokenlinks",
		Short: "Finds broken images, scripts, stylesheets and media on a website.",
		Long: `brokenlinks crawls every page of a single site starting from a seed URL,
checks the resources each page references with HEAD requests, and reports
the ones that answer with a 4xx or 5xx status as PageURL,ResourceURL,ErrorCode
rows.`,
		SilenceUsage: true,

		// Runs before the subcommand's RunE: load config, apply flag
		// overrides and build the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyOverrides(cmd, &cfg); err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	cmd.AddCommand(newCrawlCmd(), newServeCmd())
	return cmd
}

// applyOverrides copies flags that shadow config keys into cfg. serve hosts
// many sessions, so it only writes per-session files (report.file.dir).
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Name() == serveCmdName {
		cfg.Report.File.Enabled = false
		return nil
	}
	if cmd.Flags().Lookup(outputFlag) == nil || !cmd.Flags().Changed(outputFlag) {
		return nil
	}
	path, err := cmd.Flags().GetString(outputFlag)
	if err != nil {
		return fmt.Errorf("read --%s: %w", outputFlag, err)
	}
	cfg.Report.File.Enabled = true
	cfg.Report.File.Path = path
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
