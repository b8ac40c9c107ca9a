package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/grocery-etl/internal/model"
	"github.com/sells-group/grocery-etl/internal/store"
)

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "Manage the retailers deals are recorded against",
}

var storesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the store table",
	Long:  "Upserts the configured retailers by name. Existing stores keep their id and take the seeded website.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		seeds := store.DefaultStores
		if file != "" {
			var err error
			if seeds, err = loadStoreSeeds(file); err != nil {
				return err
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.SeedStores(ctx, seeds)
		if err != nil {
			return eris.Wrap(err, "stores init")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d stores (%d rows written)\n", len(seeds), n)
		return nil
	},
}

var storesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stores, err := st.ListStores(ctx)
		if err != nil {
			return eris.Wrap(err, "stores list")
		}
		if len(stores) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No stores. Run \"stores init\" first.")
			return nil
		}
		formatStores(cmd.OutOrStdout(), stores)
		return nil
	},
}

var storesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a store's name, location, or website",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var id int64
		if _, err := fmt.Sscan(args[0], &id); err != nil || id <= 0 {
			return eris.Errorf("invalid store id %q", args[0])
		}

		u := storeUpdateFromFlags(cmd)
		if u.Empty() {
			return eris.New("nothing to update: pass --name, --location, or --website")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		updated, err := st.UpdateStore(ctx, id, u)
		if eris.Is(err, store.ErrNotFound) {
			return eris.Errorf("store %d not found", id)
		}
		if err != nil {
			return eris.Wrap(err, "stores update")
		}
		formatStores(cmd.OutOrStdout(), []model.Store{*updated})
		return nil
	},
}

// storeSeedFile is the YAML layout accepted by "stores init --file".
type storeSeedFile struct {
	Stores []struct {
		Name     string `yaml:"name"`
		Location string `yaml:"location"`
		Website  string `yaml:"website"`
	} `yaml:"stores"`
}

func loadStoreSeeds(path string) ([]model.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read store seeds %s", path)
	}
	return parseStoreSeeds(data)
}

func parseStoreSeeds(data []byte) ([]model.Store, error) {
	var f storeSeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse store seeds")
	}
	if len(f.Stores) == 0 {
		return nil, eris.New("store seeds: no stores listed")
	}

	out := make([]model.Store, 0, len(f.Stores))
	for i, s := range f.Stores {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, eris.Errorf("store seeds: entry %d has no name", i+1)
		}
		out = append(out, model.Store{
			Name:     name,
			Location: strings.TrimSpace(s.Location),
			Website:  strings.TrimSpace(s.Website),
		})
	}
	return out, nil
}

func storeUpdateFromFlags(cmd *cobra.Command) model.StoreUpdate {
	var u model.StoreUpdate
	if cmd.Flags().Changed("name") {
		v, _ := cmd.Flags().GetString("name")
		u.Name = &v
	}
	if cmd.Flags().Changed("location") {
		v, _ := cmd.Flags().GetString("location")
		u.Location = &v
	}
	if cmd.Flags().Changed("website") {
		v, _ := cmd.Flags().GetString("website")
		u.Website = &v
	}
	return u
}

func formatStores(out io.Writer, stores []model.Store) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tLOCATION\tWEBSITE")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t-------")
	for _, s := range stores {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Name, orDash(s.Location), orDash(s.Website))
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	storesInitCmd.Flags().String("file", "", "YAML file with a stores: list (default: built-in retailers)")

	storesUpdateCmd.Flags().String("name", "", "new store name")
	storesUpdateCmd.Flags().String("location", "", "new location")
	storesUpdateCmd.Flags().String("website", "", "new website")

	storesCmd.AddCommand(storesInitCmd)
	storesCmd.AddCommand(storesListCmd)
	storesCmd.AddCommand(storesUpdateCmd)
	rootCmd.AddCommand(storesCmd)
}
