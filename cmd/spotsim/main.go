package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/efreitasn/spotsim/internal/config"
	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/engine"
	"github.com/efreitasn/spotsim/internal/events"
	"github.com/efreitasn/spotsim/internal/handler"
	"github.com/efreitasn/spotsim/internal/journal"
	"github.com/efreitasn/spotsim/internal/marketdata"
	"github.com/efreitasn/spotsim/internal/service"
	"github.com/efreitasn/spotsim/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores and ledger.
	pairs := domain.NewPairRegistry(cfg.Markets.Pairs...)
	ledger := store.NewLedger()
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	if cfg.DefaultAccount != "" {
		if err := ledger.CreateAccount(cfg.DefaultAccount, cfg.Markets.DefaultBalances, time.Now().UTC()); err != nil {
			logger.Error("failed to fund default account", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Market data.
	tickers := marketdata.NewTickerCache()
	depth := marketdata.NewDepthManager()

	// Engine. The external depth book is the market orders' liquidity.
	books := engine.NewBookManager(cfg.MaxQueueDepth)
	matcher := engine.NewMatcher(books, depth, ledger, orderStore, tradeStore, pairs, engine.Options{
		TakerFee:    cfg.TakerFee,
		MakerFee:    cfg.MakerFee,
		MaxDepthAge: cfg.MaxDepthAge,
	})

	// Sinks.
	var j journal.Journal = journal.Nop{}
	if cfg.DatabaseURL != "" {
		pg, err := journal.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open journal", slog.String("error", err.Error()))
			os.Exit(1)
		}
		j = pg
		logger.Info("journal enabled", slog.String("driver", "postgres"))
	}
	defer j.Close()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("event publisher enabled",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("publisher close error", slog.String("error", err.Error()))
		}
	}()

	// Services and router.
	orderSvc := service.NewOrderService(matcher, ledger, tradeStore, pairs, j, publisher, logger)
	portfolioSvc := service.NewPortfolioService(ledger, tickers, cfg.Markets.Quote, cfg.Markets.DefaultBalances)
	marketSvc := service.NewMarketService(pairs, tickers, depth, books, matcher)
	router := handler.NewRouter(orderSvc, portfolioSvc, marketSvc, logger)

	// Feed adapters run until ctx is cancelled.
	var wg sync.WaitGroup
	if cfg.Feed.Enabled {
		symbols := pairs.Symbols()
		client := marketdata.NewRESTClient(cfg.Feed.APIBase, cfg.Feed.RequestsPerSecond, 10*time.Second)
		poller := marketdata.NewPoller(client, tickers, depth, symbols, cfg.Feed.PollInterval, cfg.Feed.DepthLimit, logger)
		stream := marketdata.NewStream(cfg.Feed.WSBase, symbols, tickers, depth, poller.RequestResync,
			cfg.Feed.ReconnectDelay, cfg.Feed.MaxRetries, logger)

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := poller.Run(ctx); err != nil {
				logger.Error("poller stopped", slog.String("error", err.Error()))
			}
		}()
		go func() {
			defer wg.Done()
			if err := stream.Run(ctx); err != nil {
				logger.Error("stream stopped", slog.String("error", err.Error()))
			}
		}()
		logger.Info("market feed started", slog.Int("pairs", len(symbols)))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	wg.Wait()

	logger.Info("server stopped")
}
