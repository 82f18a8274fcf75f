package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate budgets and send alerts that are due",
	Long: `Evaluate one budget (--budget) or every active budget of a tenant (--tenant)
and send an alert for each budget that crossed its threshold and has not been
alerted in the current period. The result is printed as JSON.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("budget", "b", "", "Budget ID")
	checkCmd.Flags().StringP("tenant", "t", "", "Tenant ID")
	checkCmd.MarkFlagsOneRequired("budget", "tenant")
	checkCmd.MarkFlagsMutuallyExclusive("budget", "tenant")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	budgetID, _ := cmd.Flags().GetString("budget")
	tenant, _ := cmd.Flags().GetString("tenant")

	return withApp(func(a *app) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if budgetID != "" {
			alert, err := a.manager.CheckAndAlert(cmd.Context(), budgetID)
			if err != nil {
				return err
			}
			if alert == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No alert issued.")
				return nil
			}
			return enc.Encode(alert)
		}

		result, err := a.manager.CheckAllAndAlert(cmd.Context(), tenant)
		if err != nil {
			return err
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
		if len(result.Failures) > 0 {
			return fmt.Errorf("%d of %d budgets failed", len(result.Failures), len(result.Statuses)+len(result.Failures))
		}
		return nil
	})
}
