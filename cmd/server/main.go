package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/booking"
	"github.com/autoseers/carseer/internal/config"
	"github.com/autoseers/carseer/internal/database"
	"github.com/autoseers/carseer/internal/gemini"
	"github.com/autoseers/carseer/internal/handler"
	"github.com/autoseers/carseer/internal/identity"
	"github.com/autoseers/carseer/internal/logger"
	"github.com/autoseers/carseer/internal/metrics"
	"github.com/autoseers/carseer/internal/middleware"
	"github.com/autoseers/carseer/internal/queue"
	"github.com/autoseers/carseer/internal/recall"
	"github.com/autoseers/carseer/internal/repository"
	"github.com/autoseers/carseer/internal/router"
	"github.com/autoseers/carseer/internal/service"
	"github.com/autoseers/carseer/internal/verify"
)

func main() {
	log := logger.New("carseer")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	zerolog.SetGlobalLevel(logger.Level(cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx,
		database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName),
		database.Options{MaxOpenConns: cfg.DBMaxOpenConns, ConnMaxLifetime: cfg.DBConnMaxLife})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable; rate limiting and caches disabled")
	} else {
		defer rdb.Close()
	}
	m := metrics.New()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	vehicles := repository.NewVehicleRepo(db)
	recalls := repository.NewRecallRepo(db)
	bookings := repository.NewBookingRepo(db)

	provider := identity.NewProvider(cfg.JWTSecret, users)
	verifier := verify.New(provider, m, log)
	ai := gemini.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout)
	if !ai.Enabled() {
		log.Warn().Msg("GEMINI_API_KEY not set; reports, alerts, recommendations and recall titles disabled")
	}

	var (
		bookingPub booking.Publisher
		recallOpts = []recall.Option{recall.WithRecorder(m)}
	)
	if ai.Enabled() {
		recallOpts = append(recallOpts, recall.WithSummarizer(ai))
	}
	if cfg.RabbitURL != "" {
		pub := service.NewPublisher(cfg.RabbitURL, log)
		bookingPub = pub
		if cfg.RecallAsyncEnrichment {
			recallOpts = append(recallOpts, recall.WithPublisher(pub))
		}
	}
	reconciler := recall.NewReconciler(recalls, log, recallOpts...)
	var source recall.Source = recall.NewNHTSASource(cfg.RecallBaseURL, cfg.RecallTimeout)
	if rdb != nil {
		source = recall.NewCachedSource(source, rdb, cfg.RecallCacheTTL, log)
	}
	recallSvc := recall.NewService(source, recalls, reconciler, log)
	tracker := booking.NewTracker(bookings, vehicles, bookingPub, log)

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	vehicleH := handler.NewVehicleHandler(users, vehicles, ai, log).WithCache(cache)
	e := router.New(router.Deps{
		Log:            log,
		DB:             db,
		Redis:          rdb,
		RateLimit:      config.LoadRateLimitConfig(),
		Cache:          cache,
		Metrics:        m,
		MetricsHandler: m.Handler(),
		Verifier:       verifier,
		Auth:           handler.NewAuthHandler(cfg, users, tokens, provider, log),
		Account:        handler.NewAccountHandler(users, verifier, log),
		Vehicles:       vehicleH,
		Recalls:        handler.NewRecallHandler(vehicleH, recallSvc, reconciler, log),
		Bookings:       handler.NewBookingHandler(vehicleH, tracker, log),
	})

	var wg sync.WaitGroup
	if cfg.RabbitURL != "" {
		consumers := []*queue.Consumer{
			queue.NewConsumer(cfg.RabbitURL, queue.BookingStatusQueue, queue.BookingStatusHandler(tracker), log),
		}
		if cfg.RecallAsyncEnrichment {
			consumers = append(consumers,
				queue.NewConsumer(cfg.RabbitURL, queue.RecallDiscoveredQueue, queue.RecallDiscoveredHandler(reconciler), log))
		}
		for _, c := range consumers {
			c := c.WithObserver(m)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("consumer stopped")
				}
			}()
		}
	}

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
}
