package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/brokenlinks/internal/dispatcher"
)

const (
	outputFlag   = "output"
	closeTimeout = 30 * time.Second
)

type crawlOptions struct {
	pageLimit   int
	concurrency int
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one session to
// termination and writes its report through the configured sinks.
func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl <seed-url>",
		Short: "Crawls one site and reports broken resources",
		Long: `Crawls every same-host page reachable from the seed URL. Interrupting the
command (SIGINT/SIGTERM) cancels the crawl; the errors found so far are
still written to the report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args[0], opts)
		},
	}
	cmd.Flags().IntVar(&opts.pageLimit, "page-limit", 0, "maximum pages to visit (overrides crawler.page_limit)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "number of workers (overrides crawler.concurrency)")
	cmd.Flags().String(outputFlag, "", "CSV report path (overrides report.file.path)")
	return cmd
}

func runCrawl(cmd *cobra.Command, seed string, opts crawlOptions) error {
	if opts.pageLimit < 0 || opts.concurrency < 0 {
		return errors.New("--page-limit and --concurrency must not be negative")
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	info, crawlErr := appInstance.Crawl(cmd.Context(), dispatcher.Request{
		SeedURL:     seed,
		PageLimit:   opts.pageLimit,
		Concurrency: opts.concurrency,
	})

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
	defer cancel()
	closeErr := appInstance.Close(closeCtx)

	if crawlErr != nil {
		return fmt.Errorf("crawl %s: %w", seed, crawlErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s %s: visited=%d broken=%d\n",
		info.ID, info.Status, info.Visited, info.Broken)
	if closeErr != nil {
		return fmt.Errorf("shutdown: %w", closeErr)
	}
	return nil
}
