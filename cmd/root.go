// Package cmd implements the gddsearch command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aaronlee0321/gddsearch/internal/app"
	"github.com/aaronlee0321/gddsearch/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "gddsearch",
	Short: "Hybrid search over game design documents and source code",
	Long: `gddsearch indexes markdown design documents and source files into a
PostgreSQL hybrid index (full-text + vector) and serves bilingual
(Vietnamese/English) search with alias rewriting and LLM-backed
query expansion.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// withApp loads configuration, initializes the application and tears it
// down after fn returns.
func withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		ctx := cmd.Context()
		a, err := app.Setup(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initializing application: %w", err)
		}
		defer func() {
			_ = a.Close()
		}()

		return fn(ctx, a, args)
	}
}
