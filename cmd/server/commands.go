package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rental-receivables-recon/internal/config"
	"rental-receivables-recon/internal/importer"
	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/routes"
	service "rental-receivables-recon/internal/services/reconciliation"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := config.Migrate(a.db); err != nil {
				return err
			}

			if a.cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			r := gin.New()
			r.Use(gin.Recovery())
			r.Use(cors.New(cors.Config{
				AllowOrigins:     a.cfg.CORSOrigins,
				AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
				AllowHeaders:     []string{"Origin", "Content-Type"},
				ExposeHeaders:    []string{"Content-Length"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))

			routes.RegisterRoutes(r, routes.Dependencies{
				DB:      a.db,
				Config:  a.cfg,
				Service: a.service,
				Logger:  a.log,
			})

			srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-cmd.Context().Done():
			}

			a.log.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := config.Migrate(a.db); err != nil {
				return err
			}
			a.log.Info("schema migrated")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Stage a CSV or XLSX payment export as a new batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			batch, err := importer.New(a.batches, a.log).Import(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %d rows, total %s\n",
				batch.ID, batch.TotalRecords, batch.TotalAmount.StringFixed(2))
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "reconcile <batch-id>",
		Short: "Match the PENDING rows of a batch against receivables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch ID %q", args[0])
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			type result struct {
				ticket  *service.Ticket
				summary *service.RunSummary
				err     error
			}
			done := make(chan result, 1)
			go func() {
				t, s, err := a.service.Run(ctx, batchID)
				done <- result{t, s, err}
			}()

			var bar *progressbar.ProgressBar
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()

			var res result
		wait:
			for {
				select {
				case res = <-done:
					break wait
				case <-ticker.C:
					if quiet {
						continue
					}
					for _, run := range a.service.ActiveRuns(batchID) {
						if bar == nil {
							bar = newProgressBar(cmd, run.Selected)
						}
						_ = bar.Set(run.Done)
					}
				}
			}
			if res.err != nil {
				return res.err
			}
			if res.ticket.NothingToProcess {
				fmt.Fprintln(out, "nothing to process")
				return nil
			}
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "run %s: %d selected, %d skipped\n",
				res.summary.RunID, res.summary.Selected, res.summary.Skipped)

			report, err := a.service.Status(ctx, batchID)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not draw a progress bar")
	return cmd
}

func newProgressBar(cmd *cobra.Command, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(cmd.OutOrStdout()),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Reconciling"),
	)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Print the per-status counts of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch ID %q", args[0])
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.service.Status(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, r *service.StatusReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "batch %s (%s): %d rows, %s\n", r.BatchID, r.BatchStatus, r.Total, r.TotalAmount.StringFixed(2))
	statuses := append([]models.ProcessingStatus{models.StatusPending, models.StatusProcessing}, models.TerminalStatuses...)
	for _, st := range statuses {
		fmt.Fprintf(out, "  %-10s %6d  %14s\n", st, r.Counts[st], r.Amounts[st].StringFixed(2))
	}
	fmt.Fprintf(out, "resolved: %t\n", r.Resolved)
}

func resetCmd() *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "reset <batch-id>",
		Short: "Return terminal rows of the given statuses to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch ID %q", args[0])
			}
			parsed := make([]models.ProcessingStatus, 0, len(statuses))
			for _, raw := range statuses {
				st, ok := models.ParseProcessingStatus(raw)
				if !ok {
					return fmt.Errorf("invalid status %q", raw)
				}
				parsed = append(parsed, st)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.service.Reset(cmd.Context(), batchID, parsed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows reset (%s)\n", n, strings.Join(statuses, ", "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", []string{string(models.StatusNoMatch), string(models.StatusError)}, "statuses to reset")
	return cmd
}

func reclaimCmd() *cobra.Command {
	var batch string
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Release PROCESSING rows whose lease has expired",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var batchID *uuid.UUID
			if batch != "" {
				id, err := uuid.Parse(batch)
				if err != nil {
					return fmt.Errorf("invalid batch ID %q", batch)
				}
				batchID = &id
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.service.Reclaim(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows released\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "limit to one batch")
	return cmd
}
