// internal/cmd/delivery.go
package cmd

import (
	"github.com/spf13/cobra"
)

func newDeliveryCommand() *cobra.Command {
	deliveryCmd := &cobra.Command{
		Use:   "delivery",
		Short: "Delivery schedule maintenance",
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check the calendar mirror and duplicate schedules",
		Long: `Compares each schedule with its calendar entry, looks for orders that
hold more than one live schedule, and reports schedules whose status and
color disagree. With --repair, duplicates are cancelled and the mirror is
rewritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repair, _ := cmd.Flags().GetBool(repairFlag)

			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			report, err := env.registry.Delivery.Reconcile(cmd.Context(), repair, nil)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !repair && !report.Clean() {
				return errUnclean
			}
			return nil
		},
	}
	reconcileCmd.Flags().Bool(repairFlag, false, "Cancel duplicate schedules and rewrite the calendar mirror")

	deliveryCmd.AddCommand(reconcileCmd)
	return deliveryCmd
}
