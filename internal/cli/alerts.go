package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect issued alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a budget's alert history, newest first",
	RunE:  runAlertsList,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)

	alertsListCmd.Flags().StringP("budget", "b", "", "Budget ID")
	alertsListCmd.Flags().IntP("limit", "n", 20, "Maximum alerts to show")
	_ = alertsListCmd.MarkFlagRequired("budget")
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	budgetID, _ := cmd.Flags().GetString("budget")
	limit, _ := cmd.Flags().GetInt("limit")

	return withApp(func(a *app) error {
		history, err := a.manager.ListAlerts(cmd.Context(), budgetID, limit)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No alerts issued for this budget.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "CREATED\tTYPE\tPERIOD\tSPENT\tUSAGE\tSENT\tCHANNELS\n")
		for _, al := range history {
			channels := make([]string, len(al.ChannelsUsed))
			for i, c := range al.ChannelsUsed {
				channels[i] = string(c)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t$%s\t%s%%\t%t\t%s\n",
				al.CreatedAt.Format("2006-01-02 15:04"), al.AlertType, al.Window(),
				al.CurrentAmount.StringFixed(2), al.PercentageUsed.StringFixed(1),
				al.NotificationSent, strings.Join(channels, ","),
			)
		}
		return w.Flush()
	})
}
