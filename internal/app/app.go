package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/adapter/email"
	mongoadapter "github.com/chgenberg/bolaxo-sub002/internal/adapter/mongo"
	natsadapter "github.com/chgenberg/bolaxo-sub002/internal/adapter/nats"
	redisadapter "github.com/chgenberg/bolaxo-sub002/internal/adapter/redis"
	"github.com/chgenberg/bolaxo-sub002/internal/adapter/storage"
	"github.com/chgenberg/bolaxo-sub002/internal/app/config"
	"github.com/chgenberg/bolaxo-sub002/internal/notification"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/metrics"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/tracer"
	"github.com/chgenberg/bolaxo-sub002/internal/port/httpapi"
	"github.com/chgenberg/bolaxo-sub002/internal/service"
)

const serviceName = "deal_service"

func Run(cfg *config.Config) {
	log, err := logger.NewZapLogger(logger.ZapLoggerConfig{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	log.Infof("Starting %s (env: %s)", serviceName, cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracer.Init(ctx, serviceName)
	if err != nil {
		log.Warnf("Tracing disabled: %v", err)
	} else {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Errorf("Failed to shut down tracer provider: %v", err)
			}
		}()
	}

	mongoClient, err := mongoadapter.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Errorf("Failed to disconnect MongoDB client: %v", err)
		}
	}()

	redisClient, err := redisadapter.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Errorf("Failed to close Redis client: %v", err)
		}
	}()

	natsConn, err := natsadapter.NewConnection(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()

	publisher, err := natsadapter.NewPublisher(natsConn)
	if err != nil {
		log.Fatalf("Failed to create NATS publisher: %v", err)
	}

	documentStore, err := storage.NewMinioStore(ctx, cfg.Minio, log)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}

	listingRepo := mongoadapter.NewListingRepository(mongoClient, cfg.MongoDB)
	profileRepo := mongoadapter.NewMatchProfileRepository(mongoClient, cfg.MongoDB)
	ndaRepo, err := mongoadapter.NewNDARequestRepository(ctx, mongoClient, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to initialize NDA repository: %v", err)
	}
	dealRepo, err := mongoadapter.NewDealRepository(ctx, mongoClient, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to initialize deal repository: %v", err)
	}

	metricsManager := metrics.NewManager(serviceName)
	go func() {
		if err := metrics.StartServer(cfg.Metrics.Port, log, metricsManager.Registry); err != nil {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()

	gate := service.NewDisclosureGate(ndaRepo)
	viewCache := redisadapter.NewPublicViewCache(redisClient)
	viewCounter := redisadapter.NewViewCounter(redisClient)

	listingService := service.NewListingService(listingRepo, profileRepo, gate, viewCache, cfg.ListingCache.TTL, viewCounter, log)
	ndaService := service.NewNDAService(ndaRepo, listingRepo, publisher, metricsManager, log)
	dealService := service.NewDealService(dealRepo, ndaRepo, listingRepo, documentStore, publisher, metricsManager, log)

	emailSender, err := email.NewSMTPSender(cfg.SMTP, log)
	if err != nil {
		log.Fatalf("Failed to initialize SMTP sender: %v", err)
	}
	dispatcher := notification.NewDispatcher(natsConn, emailSender, log)
	if err := dispatcher.Start(); err != nil {
		log.Fatalf("Failed to start notification dispatcher: %v", err)
	}
	defer dispatcher.Stop()

	if cfg.NDA.SweepInterval > 0 {
		go runExpirySweeper(ctx, ndaService, cfg.NDA, log)
	}

	handler := httpapi.NewHandler(listingService, ndaService, dealService, metricsManager, log)
	server := httpapi.NewServer(
		cfg.HTTPServer.Port,
		handler.Routes(cfg.Auth.JWTSecret),
		cfg.HTTPServer.ReadTimeout,
		cfg.HTTPServer.WriteTimeout,
		cfg.HTTPServer.IdleTimeout,
		log,
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("Received signal %v, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			log.Errorf("HTTP server error: %v", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.TimeoutGraceful)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Errorf("Graceful shutdown failed: %v", err)
	}
	log.Infof("%s stopped", serviceName)
}

// runExpirySweeper periodically flips stale NDA rows to expired so that
// listings, indexes, and notifications catch up with the clock. Reads do
// not depend on it; they recompute effective status themselves.
func runExpirySweeper(ctx context.Context, ndas service.NDAService, cfg config.NDAConfig, log logger.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := ndas.SweepExpired(ctx, cfg.SweepBatch)
			if err != nil {
				log.Errorf("NDA expiry sweep failed: %v", err)
				continue
			}
			if swept > 0 {
				log.Infof("NDA expiry sweep flipped %d requests", swept)
			}
		}
	}
}
