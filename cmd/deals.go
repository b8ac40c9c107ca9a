package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/grocery-etl/internal/api"
	"github.com/sells-group/grocery-etl/internal/export"
	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
	"github.com/sells-group/grocery-etl/internal/store"
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Query persisted deals",
}

// -- deals list --

var dealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deals matching filters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deals, err := st.ListDeals(ctx, f)
		if err != nil {
			return eris.Wrap(err, "deals list")
		}
		return printDeals(cmd, deals)
	},
}

// -- deals search --

var dealsSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Full-text search over product names and descriptions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deals, err := st.SearchDeals(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "deals search")
		}
		return printDeals(cmd, deals)
	},
}

// -- deals show --

var dealsShowCmd = &cobra.Command{
	Use:   "show <uuid|id>",
	Short: "Show one deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		d, err := findDeal(cmd, st, args[0])
		if err != nil {
			return err
		}
		if d == nil {
			return eris.Errorf("deal %s not found", args[0])
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

// -- deals stats --

var dealsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize persisted deals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "deals stats")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		formatStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

// -- deals export --

var dealsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write deals matching filters to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deals, err := st.ListDeals(ctx, f)
		if err != nil {
			return eris.Wrap(err, "deals export")
		}
		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "deals export")
		}
		if err := export.WriteXLSX(out, deals, stats); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d deals to %s\n", len(deals), out)
		return nil
	},
}

func findDeal(cmd *cobra.Command, st store.Store, ref string) (*model.Deal, error) {
	if identity.Valid(ref) {
		d, err := st.GetDealByUUID(cmd.Context(), ref)
		return d, eris.Wrap(err, "deals show")
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return nil, eris.Errorf("%q is neither a deal uuid nor an id", ref)
	}
	d, err := st.GetDeal(cmd.Context(), id)
	return d, eris.Wrap(err, "deals show")
}

// filterFlags maps list flags to the query parameters api.ParseFilter reads.
var filterFlags = map[string]string{
	"store-id":     "store_id",
	"category-id":  "category_id",
	"min-discount": "min_discount",
	"min-price":    "min_price",
	"max-price":    "max_price",
	"active-from":  "active_from",
	"active-to":    "active_to",
	"search":       "q",
	"limit":        "limit",
	"offset":       "offset",
}

func filterFromFlags(cmd *cobra.Command) (model.DealFilter, error) {
	q := url.Values{}
	for flag, param := range filterFlags {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			q.Set(param, f.Value.String())
		}
	}
	if on, _ := cmd.Flags().GetString("active-on"); on != "" {
		q.Set("active_from", on)
		q.Set("active_to", on)
	}
	f, err := api.ParseFilter(q)
	if err != nil {
		return f, eris.Wrap(err, "invalid filter")
	}
	return f, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("store-id", 0, "only deals from this store")
	cmd.Flags().Int64("category-id", 0, "only deals in this category")
	cmd.Flags().String("min-discount", "", "minimum discount percentage")
	cmd.Flags().String("min-price", "", "minimum sale price")
	cmd.Flags().String("max-price", "", "maximum sale price")
	cmd.Flags().String("active-from", "", "deals valid on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("active-to", "", "deals valid on or before this date (YYYY-MM-DD)")
	cmd.Flags().String("active-on", "", "deals valid on this date (YYYY-MM-DD)")
	cmd.Flags().String("search", "", "product name text match")
	cmd.Flags().Int("limit", model.DefaultListLimit, "max number of deals")
	cmd.Flags().Int("offset", 0, "skip this many deals")
}

func printDeals(cmd *cobra.Command, deals []model.Deal) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if deals == nil {
			deals = []model.Deal{}
		}
		return printJSON(cmd.OutOrStdout(), deals)
	}
	if len(deals) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No deals found.")
		return nil
	}
	formatDeals(cmd.OutOrStdout(), deals)
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatDeals writes a tabular list of deals to out.
func formatDeals(out io.Writer, deals []model.Deal) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTORE\tPRODUCT\tSALE\tREGULAR\tDISCOUNT\tUNIT\tVALID")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t----\t-------\t--------\t----\t-----")

	for _, d := range deals {
		storeName := strconv.FormatInt(d.StoreID, 10)
		if d.Store != nil && d.Store.Name != "" {
			storeName = d.Store.Name
		}
		product := d.ProductName
		if len(product) > 40 {
			product = product[:37] + "..."
		}
		unit := d.Unit
		if d.Quantity != nil && unit != "" {
			unit = d.Quantity.String() + " " + unit
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s..%s\n",
			d.ID,
			storeName,
			product,
			money(d.SalePrice),
			money(d.RegularPrice),
			percent(d.DiscountPercentage),
			unit,
			d.ValidFrom.Format(model.DateLayout),
			d.ValidTo.Format(model.DateLayout),
		)
	}
	_ = w.Flush()
}

// formatStats writes deal statistics to out.
func formatStats(out io.Writer, s *model.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total deals:\t%d\n", s.TotalDeals)
	_, _ = fmt.Fprintf(w, "Stores:\t%d\n", s.UniqueStores)
	_, _ = fmt.Fprintf(w, "Categories:\t%d\n", s.UniqueCategories)
	_, _ = fmt.Fprintf(w, "Avg discount:\t%s\n", percent(s.AvgDiscount))
	_, _ = fmt.Fprintf(w, "Avg sale price:\t%s\n", money(s.AvgSalePrice))
	if s.EarliestDeal != nil && s.LatestDeal != nil {
		_, _ = fmt.Fprintf(w, "Window:\t%s..%s\n",
			s.EarliestDeal.Format(model.DateLayout), s.LatestDeal.Format(model.DateLayout))
	}
	_ = w.Flush()
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return "$" + d.StringFixed(2)
}

func percent(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2) + "%"
}

func init() {
	addFilterFlags(dealsListCmd)
	dealsListCmd.Flags().Bool("json", false, "print JSON instead of a table")

	dealsSearchCmd.Flags().Int("limit", model.DefaultListLimit, "max number of deals")
	dealsSearchCmd.Flags().Bool("json", false, "print JSON instead of a table")

	dealsStatsCmd.Flags().Bool("json", false, "print JSON instead of a table")

	addFilterFlags(dealsExportCmd)
	dealsExportCmd.Flags().String("out", "deals.xlsx", "output workbook path")

	dealsCmd.AddCommand(dealsListCmd)
	dealsCmd.AddCommand(dealsSearchCmd)
	dealsCmd.AddCommand(dealsShowCmd)
	dealsCmd.AddCommand(dealsStatsCmd)
	dealsCmd.AddCommand(dealsExportCmd)
	rootCmd.AddCommand(dealsCmd)
}
