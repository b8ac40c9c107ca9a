package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/grocery-etl/internal/fetcher"
	"github.com/sells-group/grocery-etl/internal/resilience"
	"github.com/sells-group/grocery-etl/internal/scrape"
	"github.com/sells-group/grocery-etl/internal/source"
	"github.com/sells-group/grocery-etl/internal/staging"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape store deal pages into the staging directory",
	Long:  "Fetches each source's deal pages, extracts prices and units, and writes one JSON record per deal under the staging directory. Run \"load dir\" afterwards to persist them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		storeName, _ := cmd.Flags().GetString("store")
		url, _ := cmd.Flags().GetString("url")
		all, _ := cmd.Flags().GetBool("all")

		sources, err := selectSources(storeName, url, all)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		breaker := resilience.BreakerFromSettings(cfg.Scrape.BreakerFailures, cfg.Scrape.BreakerCooldownSecs)
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:         cfg.Scrape.UserAgent,
			Timeout:           cfg.Scrape.Timeout(),
			MaxRetries:        cfg.Scrape.MaxRetries,
			RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
			Breaker:           &breaker,
		})
		runner := scrape.NewRunner(f, st, staging.New(cfg.Staging.Dir),
			scrape.WithMaxConcurrent(cfg.Scrape.MaxConcurrentSources))

		rep, err := runner.Run(ctx, sources)
		if rep != nil {
			formatScrapeReport(cmd.OutOrStdout(), rep)
		}
		if err != nil {
			return err
		}
		if failed := rep.Failed(); len(failed) == len(rep.Sources) && len(failed) > 0 {
			return eris.Errorf("scrape: all %d sources failed", len(failed))
		}
		return nil
	},
}

// selectSources resolves the command's flags to sources. No --store means
// every registered source.
func selectSources(name, url string, all bool) ([]source.Source, error) {
	switch {
	case all && name != "":
		return nil, eris.New("use either --store or --all")
	case url != "" && name == "":
		return nil, eris.New("--url requires --store")
	case name != "":
		src, err := source.Lookup(name, url)
		if err != nil {
			return nil, err
		}
		return []source.Source{src}, nil
	default:
		return source.All(), nil
	}
}

func formatScrapeReport(out io.Writer, rep *scrape.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tPAGES\tCANDIDATES\tSTAGED\tSKIPPED\tINVALID\tDUPLICATES\tFAILED\tERROR")
	for _, s := range rep.Sources {
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Source, s.Pages, s.Candidates, s.Staged, s.Skipped, s.Invalid, s.Duplicates, s.Failed, errText)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "Staged %d deals in %s\n", rep.Staged(), cfg.Staging.Dir)
}

func init() {
	scrapeCmd.Flags().String("store", "", "source to scrape ("+strings.Join(source.Names(), "|")+")")
	scrapeCmd.Flags().String("url", "", "override the source's entry page")
	scrapeCmd.Flags().Bool("all", false, "scrape every registered source")
	rootCmd.AddCommand(scrapeCmd)
}
