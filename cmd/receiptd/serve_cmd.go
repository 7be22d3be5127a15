package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"receiptd/internal/infra/db"
	httpinfra "receiptd/internal/infra/http"
	"receiptd/internal/logger"
)

func newServeCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Run the verification HTTP service",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Info("starting receiptd", "config", app.cfg.String())

			store, err := db.NewStore(*app.cfg)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer func() { _ = store.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := httpinfra.NewServer(*app.cfg, store)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server exited: %w", err)
			}
			return nil
		},
	}
}
