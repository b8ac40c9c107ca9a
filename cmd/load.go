package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/grocery-etl/internal/loader"
	"github.com/sells-group/grocery-etl/internal/resilience"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load staged deal records into the store",
	Long:  "Validates staged JSON deal records and inserts them. Loading is idempotent: a record whose identity is already stored is reported as already present.",
}

var loadFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Load one staged record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ld, closeFn, err := newLoader(ctx, dryRun)
		if err != nil {
			return err
		}
		defer closeFn()

		o, err := ld.LoadFile(ctx, args[0])
		if err != nil {
			return err
		}
		formatOutcome(cmd.OutOrStdout(), o)
		if o.State == loader.StateFailed {
			return eris.Wrapf(o.Err, "load %s", args[0])
		}
		return nil
	},
}

var loadDirCmd = &cobra.Command{
	Use:   "dir [path]",
	Short: "Load every staged record under a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if err := cfg.Validate("load"); err != nil {
			return err
		}
		dir := cfg.Staging.Dir
		if len(args) == 1 {
			dir = args[0]
		}

		dl, closeDL, err := openDeadLetters(cmd)
		if err != nil {
			return err
		}
		defer closeDL()

		ld, closeFn, err := newLoader(ctx, dryRun, loader.WithDeadLetters(dl))
		if err != nil {
			return err
		}
		defer closeFn()

		out := cmd.OutOrStdout()
		sum, err := ld.LoadDir(ctx, dir, func(o loader.Outcome) {
			if verbose || o.State == loader.StateFailed {
				formatOutcome(out, o)
			}
		})
		if sum != nil {
			formatSummary(out, sum, dryRun)
		}
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return eris.Errorf("load: %d of %d records failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

var loadRetryCmd = &cobra.Command{
	Use:   "retry <dead-letter-file>",
	Short: "Reload the transient failures recorded by a previous load",
	Long:  "Reads a dead-letter file written by \"load dir --dead-letter\" and reloads the records whose failure was transient, such as a busy or unreachable database. Records that failed validation are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "load retry: open %s", args[0])
		}
		letters, err := resilience.ReadDeadLetters(f)
		f.Close() //nolint:errcheck
		if err != nil {
			return err
		}

		dl, closeDL, err := openDeadLetters(cmd)
		if err != nil {
			return err
		}
		defer closeDL()

		ld, closeFn, err := newLoader(ctx, false, loader.WithDeadLetters(dl))
		if err != nil {
			return err
		}
		defer closeFn()

		out := cmd.OutOrStdout()
		sum, err := ld.Replay(ctx, letters, func(o loader.Outcome) { formatOutcome(out, o) })
		if sum != nil {
			formatSummary(out, sum, false)
		}
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return eris.Errorf("load retry: %d of %d records failed again", sum.Failed, sum.Total)
		}
		return nil
	},
}

// newLoader opens the store unless this is a dry run, which only validates.
func newLoader(ctx context.Context, dryRun bool, opts ...loader.Option) (*loader.Loader, func(), error) {
	if dryRun {
		return loader.New(nil, append(opts, loader.WithDryRun(true))...), func() {}, nil
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(loader.ErrStoreUnavailable, err.Error())
	}
	return loader.New(st, opts...), func() { st.Close() }, nil //nolint:errcheck
}

// openDeadLetters creates the --dead-letter file. Without the flag failures
// are only printed.
func openDeadLetters(cmd *cobra.Command) (*resilience.DeadLetterLog, func(), error) {
	path, _ := cmd.Flags().GetString("dead-letter")
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "open dead-letter file %s", path)
	}
	return resilience.NewDeadLetterLog(f), func() { f.Close() }, nil //nolint:errcheck
}

func formatOutcome(out io.Writer, o loader.Outcome) {
	switch o.State {
	case loader.StateNew:
		_, _ = fmt.Fprintf(out, "loaded     %s  %s (id %d)\n", o.UUID, o.ProductName, o.DealID)
	case loader.StateDuplicate:
		_, _ = fmt.Fprintf(out, "exists     %s  %s (id %d)\n", o.UUID, o.ProductName, o.DealID)
	case loader.StateValidated:
		_, _ = fmt.Fprintf(out, "valid      %s  %s\n", o.UUID, o.ProductName)
	case loader.StateFailed:
		_, _ = fmt.Fprintf(out, "failed     %s  %s: %v\n", o.Path, o.Kind, o.Err)
	default:
		_, _ = fmt.Fprintf(out, "%-10s %s\n", o.State, o.Path)
	}
}

func formatSummary(out io.Writer, s *loader.Summary, dryRun bool) {
	if dryRun {
		_, _ = fmt.Fprintf(out, "Dry run: %d valid, %d failed, %d total\n", s.Validated, s.Failed, s.Total)
		return
	}
	_, _ = fmt.Fprintf(out, "Loaded: %d, Already existed: %d, Failed: %d, Total: %d\n",
		s.Loaded, s.Duplicates, s.Failed, s.Total)
	if s.Transient > 0 {
		_, _ = fmt.Fprintf(out, "%d failures look transient; rerun them with \"load retry\"\n", s.Transient)
	}
}

func init() {
	loadFileCmd.Flags().Bool("dry-run", false, "validate without writing to the store")
	loadDirCmd.Flags().Bool("dry-run", false, "validate without writing to the store")
	loadDirCmd.Flags().BoolP("verbose", "v", false, "print every record's outcome")
	loadDirCmd.Flags().String("dead-letter", "", "write failed records as JSON lines to this file")
	loadRetryCmd.Flags().String("dead-letter", "", "write records that fail again to this file")

	loadCmd.AddCommand(loadFileCmd)
	loadCmd.AddCommand(loadDirCmd)
	loadCmd.AddCommand(loadRetryCmd)
	rootCmd.AddCommand(loadCmd)
}
