package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/storage"
	"github.com/spf13/cobra"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Record daily cost observations",
}

var costAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record one daily cost",
	RunE:  runCostAdd,
}

var costImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Record costs from a YAML file",
	RunE:  runCostImport,
}

var costListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded costs, newest first",
	RunE:  runCostList,
}

func init() {
	rootCmd.AddCommand(costCmd)
	costCmd.AddCommand(costAddCmd, costImportCmd, costListCmd)

	f := costAddCmd.Flags()
	f.StringP("tenant", "t", "", "Tenant ID")
	f.StringP("amount", "a", "", "Cost amount")
	f.StringP("date", "d", "", "Cost date YYYY-MM-DD (default: today, UTC)")
	f.StringP("service", "s", "", "Service name")
	f.String("account", "", "Cloud account")
	f.String("region", "", "Region")
	f.String("usage-type", "", "Usage type")
	f.String("currency", "USD", "Currency code")
	_ = costAddCmd.MarkFlagRequired("tenant")
	_ = costAddCmd.MarkFlagRequired("amount")
	_ = costAddCmd.MarkFlagRequired("service")

	costImportCmd.Flags().StringP("file", "f", "", "YAML file with a costs list")
	_ = costImportCmd.MarkFlagRequired("file")

	lf := costListCmd.Flags()
	lf.StringP("tenant", "t", "", "Tenant ID")
	lf.String("since", "", "First day to include, YYYY-MM-DD")
	lf.String("until", "", "Day after the last one to include, YYYY-MM-DD")
	lf.StringP("service", "s", "", "Only this service")
	lf.String("account", "", "Only this cloud account")
	lf.String("region", "", "Only this region")
	lf.IntP("limit", "n", 50, "Maximum records to show (0 = all)")
	_ = costListCmd.MarkFlagRequired("tenant")
}

func runCostAdd(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	entry := costEntry{}
	entry.TenantID, _ = f.GetString("tenant")
	entry.Cost, _ = f.GetString("amount")
	entry.Date, _ = f.GetString("date")
	entry.Service, _ = f.GetString("service")
	entry.AccountID, _ = f.GetString("account")
	entry.Region, _ = f.GetString("region")
	entry.UsageType, _ = f.GetString("usage-type")
	entry.Currency, _ = f.GetString("currency")
	if entry.Date == "" {
		entry.Date = time.Now().UTC().Format(time.DateOnly)
	}

	record, err := entry.toRecord()
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		if err := a.store.RecordCost(cmd.Context(), record); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded $%s for %s on %s (%s)\n",
			record.Cost.StringFixed(2), record.Service, entry.Date, record.TenantID)
		return nil
	})
}

func runCostImport(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	records, err := loadCostFile(path)
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		for _, r := range records {
			if err := a.store.RecordCost(cmd.Context(), r); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cost records from %s\n", len(records), path)
		return nil
	})
}

func runCostList(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	q := storage.CostQuery{}
	q.TenantID, _ = f.GetString("tenant")
	q.Filter.Service, _ = f.GetString("service")
	q.Filter.AccountID, _ = f.GetString("account")
	q.Filter.Region, _ = f.GetString("region")
	q.Limit, _ = f.GetInt("limit")

	var err error
	since, _ := f.GetString("since")
	if q.Window.Start, err = parseDay(since); err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	until, _ := f.GetString("until")
	if q.Window.End, err = parseDay(until); err != nil {
		return fmt.Errorf("invalid --until: %w", err)
	}

	return withApp(func(a *app) error {
		records, err := a.store.QueryCosts(cmd.Context(), q)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No cost records found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "DATE\tSERVICE\tACCOUNT\tREGION\tCOST\tCURRENCY\n")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Date.Format(time.DateOnly), r.Service, orDash(r.AccountID), orDash(r.Region),
				r.Cost.StringFixed(2), r.Currency,
			)
		}
		return w.Flush()
	})
}

// parseDay parses an optional YYYY-MM-DD flag value as a UTC midnight.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
