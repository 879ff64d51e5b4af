package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aaronlee0321/gddsearch/internal/app"
)

var indexCode bool

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a document or source file, or a whole directory",
	Long: `Index adds content to the search index. A markdown or text file
becomes a sectioned document; with --code, source files are chunked
along class and method boundaries instead. Directories are walked
recursively, honoring a .gitignore at the directory root.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		return runIndex(ctx, a, args[0])
	}),
}

func init() {
	indexCmd.Flags().BoolVar(&indexCode, "code", false, "treat sources as code, chunked by declaration")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, a *app.App, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", path, err)
	}

	if info.IsDir() {
		report, err := a.Pipeline.IndexDirectory(ctx, path, indexCode)
		if err != nil {
			return err
		}
		color.Green("Indexed %d file(s) in %s", report.Indexed, report.Duration.Round(time.Millisecond))
		if report.Skipped > 0 {
			color.Yellow("Skipped %d unsupported file(s)", report.Skipped)
		}
		if report.Failed > 0 {
			color.Red("Failed %d file(s); see log for reasons", report.Failed)
		}
		return nil
	}

	if err := a.Pipeline.IndexFile(ctx, path, indexCode); err != nil {
		return err
	}
	color.Green("Indexed %s", path)
	return nil
}
