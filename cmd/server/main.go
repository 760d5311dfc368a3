package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rental-receivables-recon/internal/config"
	"rental-receivables-recon/internal/events"
	"rental-receivables-recon/internal/logger"
	"rental-receivables-recon/internal/repository"
	"rental-receivables-recon/internal/services/matching"
	service "rental-receivables-recon/internal/services/reconciliation"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "recon",
		Short: "Reconcile staged rental payments against client receivables",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env and .env are always read)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(reclaimCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wiring shared by every command.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	publisher events.Publisher
	service   *service.ReconciliationService
	batches   *repository.UploadBatchRepository
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	db, err := config.InitDB(cfg, log)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("publishing reconciliation events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	batches := repository.NewUploadBatchRepository(db)
	svc := service.NewReconciliationService(
		repository.NewStagedPaymentRepository(db),
		repository.NewReceivableRepository(db, cfg.Recon.Tolerance),
		repository.NewClientRepository(db),
		batches,
		service.Options{
			Matcher: matching.NewMatcher(matching.Config{
				Tolerance:     cfg.Recon.Tolerance,
				MaxCandidates: cfg.Recon.MaxCandidates,
				MaxDepth:      cfg.Recon.MaxDepth,
			}),
			Publisher:    publisher,
			Logger:       log,
			Workers:      cfg.Recon.Workers,
			LeaseTimeout: cfg.Recon.LeaseTimeout,
		},
	)

	return &app{cfg: cfg, log: log, db: db, publisher: publisher, service: svc, batches: batches}, nil
}

func (a *app) close() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("closing event publisher", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
