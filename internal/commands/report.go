package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"finai/internal/log"
	"finai/internal/services"
	"finai/internal/session"
)

type report struct {
	Summary    services.Summary    `json:"summary"`
	Projection services.Projection `json:"projection"`
	Sync       session.SyncStatus  `json:"sync"`
}

func newReportCommand(a *app) *cobra.Command {
	var (
		userID string
		months int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the monthly summary and cash flow projection as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.report(cmd.Context(), cmd.OutOrStdout(), userID, months)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().IntVar(&months, "months", 3, "months to project")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func (a *app) report(ctx context.Context, out io.Writer, userID string, months int) error {
	sess, closeSession, err := a.userSession(ctx, userID, "")
	if err != nil {
		return err
	}
	defer closeSession()

	projection, err := sess.Project(months)
	if err != nil {
		return err
	}
	return writeJSON(out, report{
		Summary:    sess.Summary(),
		Projection: projection,
		Sync:       sess.SyncStatus(),
	})
}

func newRecurringCommand(a *app) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Post this month's due fixed incomes and expenses as pending transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeSession, err := a.userSession(cmd.Context(), userID, "")
			if err != nil {
				return err
			}
			posted := sess.PostRecurring(cmd.Context())
			if err := closeSession(); err != nil {
				return err
			}
			a.logger.Info("Recurring run finished", log.FieldUserID, userID, "posted", posted)
			return writeJSON(cmd.OutOrStdout(), map[string]int{"posted": posted})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
