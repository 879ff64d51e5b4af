package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aaronlee0321/gddsearch/internal/app"
)

var aliasLang string

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage keyword aliases",
	Long: `Aliases redirect search terms to indexed vocabulary, typically
between Vietnamese and English ("giáp" → "armor"). Re-adding an
existing pair is a no-op.`,
}

var aliasAddCmd = &cobra.Command{
	Use:   "add <keyword> <alias>",
	Short: "Add an alias for a keyword",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		if err := a.Aliases.Add(ctx, args[0], args[1], aliasLang); err != nil {
			return err
		}
		color.Green("Alias %q -> %q added", args[1], args[0])
		return nil
	}),
}

var aliasRemoveCmd = &cobra.Command{
	Use:   "remove <keyword> <alias>",
	Short: "Remove an alias",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		if err := a.Aliases.Remove(ctx, args[0], args[1]); err != nil {
			return err
		}
		color.Green("Alias %q -> %q removed", args[1], args[0])
		return nil
	}),
}

var aliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all aliases",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		mappings := a.Aliases.All()
		if len(mappings) == 0 {
			color.Yellow("No aliases defined")
			return nil
		}
		for _, m := range mappings {
			fmt.Printf("%-24s %-24s %s\n", m.Keyword, m.Alias, m.Language)
		}
		return nil
	}),
}

func init() {
	aliasAddCmd.Flags().StringVar(&aliasLang, "lang", "vi", "language of the alias: vi or en")
	aliasCmd.AddCommand(aliasAddCmd, aliasRemoveCmd, aliasListCmd)
	rootCmd.AddCommand(aliasCmd)
}
