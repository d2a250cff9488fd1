package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sciencenova/internal/app"
	"sciencenova/internal/http/handlers"
	httpapi "sciencenova/internal/http/httpapi"
	"sciencenova/internal/infra"
	"sciencenova/internal/jobs"
	"sciencenova/internal/queue/rabbitmq"
)

// jobDrainTimeout is how long shutdown waits for inline jobs before cancelling them.
const jobDrainTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build stack")
	}
	defer stack.Close()

	var (
		launcher  jobs.Launcher
		canceller handlers.Canceller
		inline    *jobs.InlineLauncher
	)
	switch cfg.JobDispatch {
	case infra.JobDispatchRabbitMQ:
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: rabbitmq publisher failed")
		}
		defer pub.Close()
		launcher = pub
	default:
		inline = jobs.NewInlineLauncher(stack.Runner, &logger)
		launcher, canceller = inline, inline
	}

	checks := make(map[string]handlers.HealthCheck, len(stack.Checks))
	for name, check := range stack.Checks {
		checks[name] = check
	}
	handlerApp := handlers.NewApp(handlers.Options{
		Images:    stack.Service,
		Jobs:      stack.Store,
		Launcher:  launcher,
		Canceller: canceller,
		Pages:     stack.Files,
		Checks:    checks,
		Logger:    &logger,
	})
	router := httpapi.NewRouter(handlerApp, httpapi.RouterOptions{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("store", cfg.JobStoreDriver).
			Str("breaker", cfg.BreakerBackend).
			Str("dispatch", cfg.JobDispatch).
			Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}

	if inline != nil {
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), jobDrainTimeout)
		defer cancelDrain()
		if err := inline.Shutdown(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("api: running jobs cancelled at shutdown")
		}
	}
	logger.Info().Msg("api: stopped")
}
