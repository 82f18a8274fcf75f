package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/tracker"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage budgets",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a budget",
	RunE:  runBudgetSet,
}

var budgetImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create or update budgets from a YAML file",
	RunE:  runBudgetImport,
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List budgets",
	RunE:  runBudgetList,
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current budget status",
	RunE:  runBudgetStatus,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetSetCmd, budgetImportCmd, budgetListCmd, budgetStatusCmd)

	f := budgetSetCmd.Flags()
	f.String("id", "", "Budget ID (generated when empty)")
	f.StringP("tenant", "t", "", "Tenant ID")
	f.StringP("name", "n", "", "Budget name")
	f.String("description", "", "Budget description")
	f.StringP("amount", "a", "", "Budget amount in USD")
	f.StringP("period", "P", "monthly", "Budget period (daily, weekly, monthly, quarterly, annually)")
	f.Int("alert-at", model.DefaultThresholdPct, "Alert threshold percentage (1-100)")
	f.String("account", "", "Restrict to a cloud account")
	f.String("service", "", "Restrict to a service")
	f.String("region", "", "Restrict to a region")
	f.StringSlice("channel", nil, "Notification channel (email, slack, webhook); repeatable")
	f.StringSlice("email", nil, "Notification email address; repeatable")
	f.String("slack-url", "", "Slack incoming webhook URL")
	f.String("webhook-url", "", "Generic webhook URL")
	f.Bool("inactive", false, "Create the budget inactive")
	_ = budgetSetCmd.MarkFlagRequired("tenant")
	_ = budgetSetCmd.MarkFlagRequired("amount")

	budgetImportCmd.Flags().StringP("file", "f", "", "YAML file with a budgets list")
	_ = budgetImportCmd.MarkFlagRequired("file")

	budgetListCmd.Flags().StringP("tenant", "t", "", "Only list this tenant's budgets")

	budgetStatusCmd.Flags().StringP("budget", "b", "", "Budget ID")
	budgetStatusCmd.Flags().StringP("tenant", "t", "", "Show every active budget of a tenant")
	budgetStatusCmd.MarkFlagsOneRequired("budget", "tenant")
	budgetStatusCmd.MarkFlagsMutuallyExclusive("budget", "tenant")
}

func runBudgetSet(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	id, _ := f.GetString("id")
	tenant, _ := f.GetString("tenant")
	name, _ := f.GetString("name")
	description, _ := f.GetString("description")
	rawAmount, _ := f.GetString("amount")
	period, _ := f.GetString("period")
	alertAt, _ := f.GetInt("alert-at")
	account, _ := f.GetString("account")
	service, _ := f.GetString("service")
	region, _ := f.GetString("region")
	channels, _ := f.GetStringSlice("channel")
	emails, _ := f.GetStringSlice("email")
	slackURL, _ := f.GetString("slack-url")
	webhookURL, _ := f.GetString("webhook-url")
	inactive, _ := f.GetBool("inactive")

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", rawAmount, err)
	}

	budget := &model.Budget{
		ID:                 id,
		TenantID:           tenant,
		Name:               name,
		Description:        description,
		AccountID:          account,
		ServiceName:        service,
		Region:             region,
		Amount:             amount,
		Period:             model.BudgetPeriod(period),
		ThresholdPct:       alertAt,
		NotificationEmails: emails,
		SlackWebhookURL:    slackURL,
		WebhookURL:         webhookURL,
		IsActive:           !inactive,
	}
	for _, c := range channels {
		budget.Channels = append(budget.Channels, model.Channel(c))
	}
	budget.ApplyDefaults()
	if err := budget.Validate(); err != nil {
		return err
	}

	return withApp(func(a *app) error {
		if err := a.store.PutBudget(cmd.Context(), budget); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Budget set:\n")
		fmt.Fprintf(out, "  ID:        %s\n", budget.ID)
		fmt.Fprintf(out, "  Tenant:    %s\n", budget.TenantID)
		fmt.Fprintf(out, "  Name:      %s\n", budget.Name)
		fmt.Fprintf(out, "  Amount:    $%s\n", budget.Amount.StringFixed(2))
		fmt.Fprintf(out, "  Period:    %s\n", budget.Period)
		fmt.Fprintf(out, "  Alert at:  %d%%\n", budget.ThresholdPct)
		fmt.Fprintf(out, "  Channels:  %v\n", budget.Channels)
		return nil
	})
}

func runBudgetImport(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	budgets, err := loadBudgetFile(path)
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		for _, b := range budgets {
			if err := a.store.PutBudget(cmd.Context(), b); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d budgets from %s\n", len(budgets), path)
		return nil
	})
}

func runBudgetList(cmd *cobra.Command, _ []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")

	return withApp(func(a *app) error {
		budgets, err := a.store.ListBudgets(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("list budgets: %w", err)
		}
		if len(budgets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No budgets configured. Use 'cbg budget set' to create one.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID\tTENANT\tNAME\tPERIOD\tAMOUNT\tALERT AT\tCHANNELS\tACTIVE\n")
		for _, b := range budgets {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%s\t%d%%\t%v\t%t\n",
				b.ID, b.TenantID, b.Name, b.Period, b.Amount.StringFixed(2),
				b.ThresholdPct, b.Channels, b.IsActive,
			)
		}
		return w.Flush()
	})
}

func runBudgetStatus(cmd *cobra.Command, _ []string) error {
	budgetID, _ := cmd.Flags().GetString("budget")
	tenant, _ := cmd.Flags().GetString("tenant")

	return withApp(func(a *app) error {
		var statuses []*tracker.BudgetStatus
		if budgetID != "" {
			status, err := a.manager.Evaluate(cmd.Context(), budgetID)
			if err != nil {
				return err
			}
			statuses = append(statuses, status)
		} else {
			budgets, err := a.store.ListActiveBudgets(cmd.Context(), tenant)
			if err != nil {
				return fmt.Errorf("list budgets: %w", err)
			}
			for _, b := range budgets {
				status, err := a.manager.Evaluate(cmd.Context(), b.ID)
				if errors.Is(err, tracker.ErrBudgetInactive) {
					continue
				}
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}
		}

		if len(statuses) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active budgets.")
			return nil
		}
		return printStatuses(cmd.OutOrStdout(), statuses)
	})
}

func printStatuses(out io.Writer, statuses []*tracker.BudgetStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BUDGET\tPERIOD\tAMOUNT\tSPENT\tUSAGE\tPROJECTED\tDAY\tALERT AT\n")
	for _, s := range statuses {
		flag := ""
		switch {
		case s.IsOverBudget:
			flag = " [EXCEEDED]"
		case s.IsOverThreshold:
			flag = " [WARNING]"
		case s.WillExceedBudget:
			flag = " [TRENDING OVER]"
		}
		name := s.BudgetName
		if name == "" {
			name = s.BudgetID
		}
		fmt.Fprintf(w, "%s\t%s\t$%s\t$%s\t%s%%%s\t$%s\t%d/%d\t%d%%\n",
			name, s.Period, s.BudgetAmount.StringFixed(2), s.CurrentSpend.StringFixed(2),
			s.PercentageUsed.StringFixed(1), flag, s.ProjectedSpend.StringFixed(2),
			s.DaysElapsed, s.DaysTotal, s.ThresholdPct,
		)
	}
	return w.Flush()
}
