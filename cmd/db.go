package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grocery-etl/internal/resilience"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database connectivity and schema",
}

var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the deal store is reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "db ping")
		}
		defer st.Close() //nolint:errcheck

		retries, _ := cmd.Flags().GetInt("retries")
		b := resilience.WithRetries(retries)
		b.OnRetry = func(attempt int, err error) {
			zap.L().Warn("database not reachable, retrying",
				zap.String("driver", cfg.Store.Driver), zap.Int("attempt", attempt), zap.Error(err))
		}
		if err := resilience.Run(ctx, b, st.Ping); err != nil {
			return eris.Wrap(err, "db ping")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database connection OK (%s)\n", cfg.Store.Driver)
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "db migrate")
		}
		defer st.Close() //nolint:errcheck

		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
		return nil
	},
}

func init() {
	dbPingCmd.Flags().Int("retries", 0, "retry transient connection failures this many times")

	dbCmd.AddCommand(dbPingCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	rootCmd.AddCommand(dbCmd)
}
