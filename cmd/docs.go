package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aaronlee0321/gddsearch/internal/app"
	"github.com/aaronlee0321/gddsearch/internal/index"
)

var docsListLimit int

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Inspect and manage indexed documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		docs, err := a.Store.ListDocuments(ctx, docsListLimit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			color.Yellow("No documents indexed")
			return nil
		}
		for _, d := range docs {
			status := string(d.Status)
			switch d.Status {
			case index.StatusIndexed:
				status = color.GreenString(status)
			case index.StatusFailed:
				status = color.RedString(status)
			default:
				status = color.YellowString(status)
			}
			fmt.Printf("%-40s %-30s %s\n", d.DocID, d.Name, status)
			if d.FailureReason != "" {
				color.New(color.Faint).Printf("    %s\n", d.FailureReason)
			}
		}
		return nil
	}),
}

var docsRemoveCmd = &cobra.Command{
	Use:   "remove <doc_id>",
	Short: "Remove a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		if err := a.Store.DeleteDocument(ctx, args[0]); err != nil {
			if errors.Is(err, index.ErrNotFound) {
				color.Yellow("No document %q", args[0])
				return nil
			}
			return err
		}
		color.Green("Removed %s", args[0])
		return nil
	}),
}

var docsShowCmd = &cobra.Command{
	Use:   "show <doc_id>",
	Short: "Show a document's chunk layout",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		doc, err := a.Store.GetDocument(ctx, args[0])
		if err != nil {
			return err
		}
		chunks, err := a.Store.ChunksOf(ctx, doc.DocID)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s), %d chunk(s)\n", doc.DocID, doc.Status, len(chunks))
		for _, c := range chunks {
			fmt.Printf("  %3d %-40s %s\n", c.ChunkIndex, c.ChunkID, c.SectionHeading)
		}
		return nil
	}),
}

func init() {
	docsListCmd.Flags().IntVar(&docsListLimit, "limit", 100, "maximum documents to list")
	docsCmd.AddCommand(docsListCmd, docsRemoveCmd, docsShowCmd)
	rootCmd.AddCommand(docsCmd)
}
