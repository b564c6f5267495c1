package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"event-checkout/internal/config"
	"event-checkout/internal/database"
	"event-checkout/internal/events"
	"event-checkout/internal/logger"
	"event-checkout/internal/mailer"
	"event-checkout/internal/queue"
	"event-checkout/internal/redisx"
	"event-checkout/internal/repositories"
	"event-checkout/internal/services"
)

// The worker delivers queued emails and runs the scheduled payment sweep.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logr, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logr.Sync()

	if err := run(cfg, logr); err != nil {
		logr.Fatal("worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redisx.New(cfg.Redis)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	publisher := events.New(cfg.Kafka, logr)
	defer publisher.Close()

	reconcileService := services.NewReconcileService(
		db,
		repositories.NewOrderRepository(),
		repositories.NewPaymentRepository(),
		repositories.NewTicketRepository(),
		services.NewPaystackService(cfg.Paystack, logr),
		publisher,
		redisx.NewLocker(rdb),
		cfg.Reconcile,
		logr,
	)

	var mail queue.Mailer = mailer.NewLogMailer(logr)
	if cfg.Resend.APIKey != "" {
		mail = mailer.NewResendMailer(cfg.Resend, logr)
	} else {
		logr.Warn("RESEND_API_KEY not set; confirmation emails are logged, not sent")
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	sugar := logr.Named("asynq").Sugar()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			cfg.Queue.EmailQueue:       6,
			cfg.Queue.MaintenanceQueue: 1,
		},
		Logger: sugar,
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: sugar})
	entryID, err := queue.RegisterReconcile(scheduler, cfg.Queue, cfg.Reconcile)
	if err != nil {
		return err
	}
	logr.Info("reconcile sweep scheduled",
		zap.String("entry_id", entryID),
		zap.Duration("interval", cfg.Reconcile.Interval),
		zap.Duration("stale_after", cfg.Reconcile.StaleAfter),
	)

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	if err := srv.Start(queue.NewMux(mail, reconcileService, logr)); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	logr.Info("worker started", zap.Int("concurrency", cfg.Queue.Concurrency))

	<-ctx.Done()
	logr.Info("shutting down")
	srv.Shutdown()
	reconcileService.Wait()
	return nil
}
