package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbakare/gromart/internal/application/assignment"
	"github.com/dbakare/gromart/internal/application/checkout"
	"github.com/dbakare/gromart/internal/application/expiry"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/application/lists"
	"github.com/dbakare/gromart/internal/bootstrap"
	"github.com/dbakare/gromart/internal/controller"
	infraRedis "github.com/dbakare/gromart/internal/infrastructure/redis"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/notify"
	"github.com/dbakare/gromart/internal/providers"
	"github.com/dbakare/gromart/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "gromart-api", "gromart")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	listRepo := postgres.NewShoppingListRepository(app.Pool)
	txnRepo := postgres.NewTransactionRepository(app.Pool)
	agentRepo := postgres.NewAgentRepository(app.Pool)
	trailRepo := postgres.NewTrailRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Infrastructure ---
	policy := jobs.RetryPolicy{
		MaxAttempts:    app.Config.Assignment.MaxAttempts,
		InitialBackoff: app.Config.Assignment.InitialBackoff,
		MaxBackoff:     app.Config.Assignment.MaxBackoff,
		Multiplier:     2.0,
	}
	queue := infraRedis.NewQueue(app.Redis, policy, app.Logger)
	providerFactory := providers.NewFactory()
	notifier := notify.NewLogNotifier(app.Logger)

	// --- Application ---
	lifecycleEngine := lifecycle.NewEngine(orderRepo, listRepo, txnRepo, trailRepo, txManager, app.Logger)
	expiryChecker := expiry.NewChecker(orderRepo, txnRepo, lifecycleEngine, providerFactory, queue, notifier, app.Config.Payment.TimeoutWindow, app.Logger)
	assignEngine := assignment.NewEngine(orderRepo, listRepo, agentRepo, trailRepo, txManager, queue, notifier, policy, app.Logger)
	listsUC := lists.NewUseCase(listRepo)
	checkoutUC := checkout.NewUseCase(
		orderRepo, listRepo, txnRepo, trailRepo, txManager,
		lifecycleEngine, expiryChecker, providerFactory,
		app.Config.Payment.ServiceFeeRate, app.Logger,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:         app.Pool,
		RedisClient:  app.Redis,
		OrderRepo:    orderRepo,
		ListRepo:     listRepo,
		TrailRepo:    trailRepo,
		Lists:        listsUC,
		Lifecycle:    lifecycleEngine,
		Checkout:     checkoutUC,
		AssignEngine: assignEngine,
		Scheduler:    queue,
		Metrics:      app.Metrics,
		ServerConfig: app.Config.Server,
		Logger:       app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
