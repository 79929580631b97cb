package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/stocktrader/internal/config"
	"github.com/aristath/stocktrader/pkg/logger"
)

// app carries what every subcommand needs once the root has parsed flags.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	userID string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var verbose bool

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect and update the position ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg

			level := cfg.LogLevel
			if verbose {
				level = "debug"
			}
			a.log = logger.New(logger.Config{
				Level:  level,
				Pretty: cfg.LogPretty,
				Output: cmd.ErrOrStderr(),
			})

			if a.userID == "" {
				a.userID = cfg.DefaultUserID
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.userID, "user", "u", "", "user id (defaults to DEFAULT_USER_ID)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		migrateCmd(a),
		priceCmd(a),
		buyCmd(a),
		reportCmd(a),
	)
	return root
}
