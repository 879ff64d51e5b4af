package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aaronlee0321/gddsearch/internal/app"
	"github.com/aaronlee0321/gddsearch/internal/deepsearch"
	"github.com/aaronlee0321/gddsearch/internal/retrieval"
)

var (
	searchLimit int
	searchDoc   string
	searchHyde  bool
	searchDeep  bool
	searchMerge string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed documents",
	Long: `Search runs the hybrid query path: alias rewriting, full-text and
vector ranking, and configurable merging. Inline markers narrow the
scope: "@document:tank_armor damage" or "@section:\"Combat System\"".

With --deep, a query with no results is expanded through the language
model into translated and synonymous terms; terms verified against the
corpus are offered interactively, and a confirmed pick can be saved as
a permanent alias.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		return runSearch(ctx, a, strings.Join(args, " "))
	}),
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default from config)")
	searchCmd.Flags().StringVar(&searchDoc, "doc", "", "restrict to one document by id or name")
	searchCmd.Flags().BoolVar(&searchHyde, "hyde", false, "expand the query with a hypothetical answer before vector search")
	searchCmd.Flags().BoolVar(&searchDeep, "deep", false, "offer LLM-backed term suggestions when nothing matches")
	searchCmd.Flags().StringVar(&searchMerge, "merge", "", "merge strategy: union or lexical-first (default from config)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, a *app.App, query string) error {
	if searchDoc != "" {
		query = fmt.Sprintf("@document:%q %s", searchDoc, query)
	}

	opts := searchOptions(a)
	results, err := a.Retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		if searchDeep {
			return runDeepSearch(ctx, a, query, opts)
		}
		color.Yellow("No results for %q", query)
		return nil
	}

	printResults(results)
	return nil
}

func searchOptions(a *app.App) retrieval.Options {
	limit := searchLimit
	if limit <= 0 {
		limit = a.Config.MatchLimit
	}
	strategy := retrieval.MergeStrategy(searchMerge)
	if strategy == "" {
		strategy = retrieval.MergeStrategy(a.Config.MergeStrategy)
	}
	return retrieval.Options{
		Limit:    limit,
		Strategy: strategy,
		Hyde:     searchHyde || a.Config.HydeEnabled,
	}
}

// runDeepSearch walks the expansion flow interactively: suggest
// verified alternative terms, re-run the search with the picked one,
// and optionally persist the pick as an alias.
func runDeepSearch(ctx context.Context, a *app.App, query string, opts retrieval.Options) error {
	cleaned, _ := retrieval.ParseQuery(query)

	session, err := a.Expander.Begin(ctx, cleaned)
	if err != nil {
		return err
	}
	if session == nil {
		// The raw term has lexical hits; the empty result came from
		// filters, not vocabulary.
		color.Yellow("No results for %q with the given filters", cleaned)
		return nil
	}

	color.Yellow("No results for %q, expanding...", cleaned)
	suggestions, err := session.Expand(ctx)
	if err != nil {
		if errors.Is(err, deepsearch.ErrNoSuggestions) {
			color.Yellow("No suggestions available")
			return nil
		}
		return err
	}

	fmt.Println("Did you mean:")
	for i, s := range suggestions {
		fmt.Printf("  %d) %s (%s, %d match(es))\n", i+1, s.Term, s.Language, s.Hits)
	}

	choice, ok := promptChoice(len(suggestions))
	if !ok {
		return nil
	}
	selected := suggestions[choice-1]
	if err := session.Select(selected.Term); err != nil {
		return err
	}

	results, err := a.Retriever.Retrieve(ctx, selected.Term, opts)
	if err != nil {
		return err
	}
	printResults(results)

	if promptYes(fmt.Sprintf("Save %q as an alias of %q?", cleaned, selected.Term)) {
		if err := session.Persist(ctx); err != nil {
			return err
		}
		color.Green("Alias saved")
		return nil
	}
	return session.Discard()
}

func promptChoice(max int) (int, bool) {
	fmt.Printf("Pick one [1-%d], or press Enter to cancel: ", max)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

func promptYes(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printResults(results []retrieval.Result) {
	heading := color.New(color.FgCyan, color.Bold)
	meta := color.New(color.Faint)

	for i, r := range results {
		heading.Printf("%d. %s", i+1, r.DocID)
		if r.SectionHeading != "" {
			heading.Printf(" › %s", r.SectionHeading)
		}
		fmt.Println()
		meta.Printf("   score %.3f · %s · %s\n", r.Score, r.Source, r.ChunkID)
		fmt.Printf("   %s\n\n", snippet(r.Content, 300))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
