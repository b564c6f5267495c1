package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"event-checkout/internal/config"
	"event-checkout/internal/database"
	"event-checkout/internal/events"
	"event-checkout/internal/logger"
	"event-checkout/internal/redisx"
	"event-checkout/internal/repositories"
	"event-checkout/internal/services"
)

func sweepCmd() *cobra.Command {
	var noLock bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one stale payment reconciliation pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logr, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logr.Sync()

			db, err := database.NewConnection(cmd.Context(), database.ConfigFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer db.Close()

			var locker services.Locker
			if !noLock {
				rdb := redisx.New(cfg.Redis)
				defer rdb.Close()
				locker = redisx.NewLocker(rdb)
			}

			publisher := events.New(cfg.Kafka, logr)
			defer publisher.Close()

			sweeper := services.NewReconcileService(
				db,
				repositories.NewOrderRepository(),
				repositories.NewPaymentRepository(),
				repositories.NewTicketRepository(),
				services.NewPaystackService(cfg.Paystack, logr),
				publisher,
				locker,
				cfg.Reconcile,
				logr,
			)
			report, err := sweeper.Sweep(cmd.Context())
			sweeper.Wait()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().BoolVar(&noLock, "no-lock", false, "skip the Redis sweep lock (single-instance deployments)")
	return cmd
}
