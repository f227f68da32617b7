package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/repository"
	"github.com/noah-isme/school-suite-api/internal/service"
	"github.com/noah-isme/school-suite-api/pkg/database"
)

// newSweepCommand marks past-due invoices once, for hosts that prefer an external cron over the
// in-process scheduler.
func newSweepCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark unpaid invoices past their due date as OVERDUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.NewPostgres(rt.cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			cache, closeCache := openCache(rt, nil)
			defer closeCache()

			payments := service.NewPaymentService(
				repository.NewInvoiceRepository(db),
				repository.NewStudentRepository(db),
				nil, cache, nil, nil, rt.logger,
				service.PaymentServiceConfig{Currency: rt.cfg.Payments.Currency},
			)
			n, err := payments.SweepOverdue(cmd.Context())
			if err != nil {
				return err
			}
			rt.logger.Info("overdue sweep finished", zap.Int64("invoices", n))
			fmt.Fprintf(cmd.OutOrStdout(), "%d invoices marked overdue\n", n)
			return nil
		},
	}
}
