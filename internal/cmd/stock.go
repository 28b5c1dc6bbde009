// internal/cmd/stock.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/javajoker/sevenfour-backend/internal/services"
)

const (
	repairFlag    = "repair"
	productIDFlag = "product-id"
)

// errUnclean makes the process exit non-zero when a check finds drift
var errUnclean = errors.New("inconsistencies found; rerun with --repair to fix them")

var syncFlags = map[string]cobraflags.Flag{
	productIDFlag: &cobraflags.StringFlag{
		Name:  productIDFlag,
		Value: "",
		Usage: "Recompute totals for a single product barcode (default: all products)",
	},
}

func newStockCommand() *cobra.Command {
	stockCmd := &cobra.Command{
		Use:   "stock",
		Short: "Check and repair stock bookkeeping",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare variant counters and product totals against the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repair, _ := cmd.Flags().GetBool(repairFlag)

			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			check := env.registry.Stock.Verify
			if repair {
				check = func(ctx context.Context) (*services.StockReport, error) {
					return env.registry.Stock.Repair(ctx, nil)
				}
			}
			report, err := check(cmd.Context())
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
	verifyCmd.Flags().Bool(repairFlag, false, "Rewrite drifted counters and product totals")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Recompute product stock totals from their variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			if raw := syncFlags[productIDFlag].GetString(); raw != "" {
				productID, err := strconv.ParseUint(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid product id %q: %w", raw, err)
				}
				if err := env.registry.Stock.SyncProduct(cmd.Context(), productID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced product %d\n", productID)
				return nil
			}

			count, err := env.registry.Stock.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			logrus.WithField("products", count).Info("Stock totals synced")
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d products\n", count)
			return nil
		},
	}
	cobraflags.RegisterMap(syncCmd, syncFlags)

	stockCmd.AddCommand(verifyCmd, syncCmd)
	return stockCmd
}
