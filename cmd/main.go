package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"parimutuel-market/internal/archive"
	"parimutuel-market/internal/auth"
	"parimutuel-market/internal/config"
	"parimutuel-market/internal/database"
	"parimutuel-market/internal/events"
	"parimutuel-market/internal/handlers"
	"parimutuel-market/internal/jobs"
	"parimutuel-market/internal/logging"
	"parimutuel-market/internal/repository"
	"parimutuel-market/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Redis.Addr != "" {
		client, err := events.NewClient(ctx, events.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		publisher = events.NewRedisPublisher(client, cfg.Redis.Channel)
		log.WithField("channel", cfg.Redis.Channel).Info("Publishing market events to redis")
	}

	var archiver services.SnapshotArchiver
	if cfg.Archive.Bucket != "" {
		writer, err := archive.NewS3Writer(ctx, archive.ClientConfig{
			Bucket:         cfg.Archive.Bucket,
			Region:         cfg.Archive.Region,
			Endpoint:       cfg.Archive.Endpoint,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			log.Fatalf("Failed to configure snapshot archive: %v", err)
		}
		archiver = archive.NewSnapshotArchiver(writer, "")
		log.WithField("bucket", cfg.Archive.Bucket).Info("Archiving purged snapshots to s3")
	}

	// Initialize repository and services
	repo := repository.NewRepository(db)
	locks := services.NewMarketLocks()

	ledgerService := services.NewLedgerService(repo, locks, cfg.Fees, publisher, log)
	settlementService := services.NewSettlementService(repo, locks, cfg.Fees, publisher, log)
	snapshotService := services.NewSnapshotService(repo, archiver, services.SnapshotOptions{
		Retention:     cfg.Snapshot.Retention,
		Concurrency:   cfg.Snapshot.Concurrency,
		MarketTimeout: cfg.Snapshot.MarketTimeout,
	}, log)
	consensusService := services.NewConsensusService(repo, services.ConsensusOptions{
		Lookback:         cfg.Consensus.Lookback,
		TrendEpsilon:     cfg.Consensus.TrendEpsilon,
		ConfidenceFactor: cfg.Consensus.ConfidenceFactor,
	})

	tokens := auth.NewTokenManager(cfg.App.JWTSecret, 24*time.Hour)

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.Server.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.Server.FrontendURL)
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.Server.GinMode == gin.DebugMode {
		pprof.Register(router)
	}

	handlers.RegisterRoutes(router, handlers.Handlers{
		Markets:    handlers.NewMarketHandler(ledgerService, consensusService, snapshotService, log),
		Bets:       handlers.NewBetHandler(ledgerService, log),
		Settlement: handlers.NewSettlementHandler(settlementService, log),
	}, tokens, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	snapshotRecorder := jobs.NewSnapshotRecorder(snapshotService, cfg.Snapshot.Interval, log)
	marketCloser := jobs.NewMarketCloser(ledgerService, cfg.Market.CloseSweepInterval, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return snapshotRecorder.Run(gctx)
	})
	g.Go(func() error {
		return marketCloser.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		// Graceful shutdown with 5 second timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
	log.Info("Server exited")
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("Request handled")
	}
}
