package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aristath/stocktrader/internal/database"
	"github.com/aristath/stocktrader/internal/di"
	"github.com/aristath/stocktrader/internal/modules/ledger"
)

func migrateCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the ledger schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.New(database.Config{
				Path:    a.cfg.LedgerDBPath,
				Profile: database.ProfileLedger,
				Name:    "ledger",
			})
			if err != nil {
				return err
			}
			defer db.Close()

			migrator := database.NewMigrator(db.Conn(), a.cfg.DefaultUserID, a.log)
			if dryRun {
				state, err := migrator.DetectState(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema: %s\n", state)
				return nil
			}

			result, err := migrator.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema: %s -> %s (%d rows migrated)\n",
				result.From, result.To, result.RowsMigrated)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report the detected schema state")
	return cmd
}

func priceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "price SYMBOL",
		Short: "Look up the current price of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *ledger.Service) error {
				quote, err := svc.GetQuote(cmd.Context(), args[0])
				if err != nil {
					return errors.New(ledger.FormatQuoteError(args[0], err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), ledger.FormatQuote(quote))
				return nil
			})
		},
	}
}

func buyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "buy SYMBOL QUANTITY",
		Short: "Record a purchase at the current price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := args[0]
			qty, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: must be a whole number", args[1])
			}

			return a.withService(func(svc *ledger.Service) error {
				res, err := svc.RecordPurchase(cmd.Context(), a.userID, symbol, qty)
				if err != nil {
					return errors.New(ledger.FormatPurchaseError(symbol, err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), ledger.FormatPurchase(res))
				return nil
			})
		},
	}
}

func reportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show the portfolio with live prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *ledger.Service) error {
				report, err := svc.PortfolioReport(cmd.Context(), a.userID)
				if err != nil {
					return errors.New(ledger.FormatReportError(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), ledger.FormatReport(report))
				return nil
			})
		},
	}
}

// withService wires the full container for one command and tears it down after.
func (a *app) withService(fn func(*ledger.Service) error) error {
	container, _, err := di.Wire(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer container.Close()

	return fn(container.LedgerService)
}
