package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"event-checkout/internal/config"
	"event-checkout/internal/database"
	"event-checkout/internal/events"
	"event-checkout/internal/handlers"
	"event-checkout/internal/logger"
	"event-checkout/internal/middleware"
	"event-checkout/internal/queue"
	"event-checkout/internal/repositories"
	"event-checkout/internal/services"
)

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
		logr.Fatal("server stopped", zap.Error(err))
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
	logr.Info("database connection established")

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer queueClient.Close()

	publisher := events.New(cfg.Kafka, logr)
	defer publisher.Close()

	userRepo := repositories.NewUserRepository()
	ticketRepo := repositories.NewTicketRepository()
	cartRepo := repositories.NewCartRepository()
	orderRepo := repositories.NewOrderRepository()
	paymentRepo := repositories.NewPaymentRepository()

	paystack := services.NewPaystackService(cfg.Paystack, logr)
	notifier := queue.NewNotifier(queueClient, cfg.Queue)

	userService := services.NewUserService(db, userRepo)
	cartService := services.NewCartService(db, cartRepo, ticketRepo, logr)
	checkoutService := services.NewCheckoutService(db, userRepo, cartRepo, ticketRepo, orderRepo, paymentRepo, paystack, cfg.Paystack.CallbackURL, logr)
	settlementService := services.NewSettlementService(db, cartRepo, orderRepo, paymentRepo, notifier, publisher, cfg.Paystack.SecretKey, logr)

	sessionStore := middleware.NewSessionStore(cfg.Auth.SessionSecret, cfg.IsProduction())

	checkoutLimiter := middleware.NewRateLimiter(cfg.Server.CheckoutLimit, cfg.Server.CheckoutWindow)
	defer checkoutLimiter.Stop()

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:            middleware.NewAuthenticator(cfg.Auth.JWTSecret, sessionStore, userService, logr),
		CheckoutLimiter: checkoutLimiter,
		Cart:            handlers.NewCartHandler(cartService, checkoutService, validator.New(), logr),
		Webhook:         handlers.NewWebhookHandler(settlementService, logr),
		Health:          handlers.NewHealthHandler(db, logr),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Log:             logr,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	settlementService.Wait()
	return err
}
