package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/game"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/clock"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/config"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/firebase"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/store"
	wshub "github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/ws"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/ws"
)

func main() {
	setupZerolog()
	cfg := setupConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := setupDb(cfg)
	repo := setupRepository(cfg, db)
	agreedClock := setupClock(cfg, db)

	hub := wshub.NewNotificationHub()
	var client *pubsub.Client
	var publisher game.MessagePublisher
	if cfg.PubsubEnabled {
		var err error
		if client, err = pubsub.NewClient(ctx, cfg.GoogleProjectId); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize pub sub")
		}
		defer func() { _ = client.Close() }()
		publisher = client
	}
	bridge := game.NewEventBridge(hub, publisher, game.BridgeConfig{
		EventTopic:             cfg.EventTopic,
		PayoutTopic:            cfg.PayoutTopic,
		NotifyFromSubscription: client != nil && cfg.EventSubscription != "",
	})
	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	bridgeDone := make(chan struct{})
	if client != nil {
		go func() {
			bridge.Run(bridgeCtx)
			close(bridgeDone)
		}()
		if cfg.EventSubscription != "" {
			go subscribeToEvents(ctx, client, bridge, cfg)
		}
	}

	e, err := escrow.New(repo, agreedClock, cfg.Escrow(), escrow.WithPublisher(bridge))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid escrow configuration")
	}

	watcher := game.NewDeadlineWatcher(e, hub)
	if err := watcher.Start(cfg.DeadlineScanInterval, clockwork.NewRealClock()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start deadline watcher")
	}

	apiRouter := setupApiRouter(cfg, e, hub, setupAuth(ctx, cfg))
	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Port).Msg("Serving rps escrow api")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server stopped")
	}

	// in-flight requests may still commit events until Shutdown returns
	<-shutdownDone
	_ = watcher.Stop()
	stopBridge()
	if client != nil {
		<-bridgeDone
	}
	log.Info().Msg("Server stopped")
}

func setupConfig() config.Config {
	v := viper.GetViper()
	if err := config.Setup(v, "./.env"); err != nil {
		log.Fatal().Err(err).Msg("Failed to read configuration")
	}
	cfg, err := config.Load(v)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

func setupDb(cfg config.Config) *gorm.DB {
	var dialector gorm.Dialector
	switch cfg.StoreDriver {
	case config.StorePostgres:
		dialector = postgres.Open(cfg.DbUrl)
	case config.StoreSqlite:
		dialector = sqlite.Open(cfg.DbUrl)
	default:
		return nil
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	sqlDb, _ := db.DB()
	if cfg.StoreDriver == config.StoreSqlite {
		sqlDb.SetMaxOpenConns(1)
	} else {
		sqlDb.SetMaxOpenConns(50)
	}
	sqlDb.SetConnMaxLifetime(time.Minute * 10)

	return db
}

func setupRepository(cfg config.Config, db *gorm.DB) escrow.Repository {
	if db == nil {
		log.Warn().Msg("Using in-memory store, games are lost on restart")
		return escrow.NewMemoryRepository()
	}
	repo, err := store.New(db, cfg.CacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	if err := repo.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	return repo
}

// setupClock prefers the database clock so replicas agree on deadlines. The
// database clock is trusted as is; the escrow keeps the stored times of each
// game non-decreasing.
func setupClock(cfg config.Config, db *gorm.DB) escrow.Clock {
	if cfg.ClockSource == config.ClockDatabase {
		if db != nil {
			return clock.NewDatabase(db)
		}
		log.Warn().Str("store", cfg.StoreDriver).Msg("Database clock needs a database, using local clock")
	}
	return clock.NewMonotonic(clock.NewLocal(clockwork.NewRealClock()))
}

func setupAuth(ctx context.Context, cfg config.Config) gin.HandlerFunc {
	if cfg.AuthDisabled {
		log.Warn().Msg("Authentication disabled, bearer tokens are taken as account ids")
		return middleware.VerifyAuthToken(firebase.InsecureVerifier{})
	}
	client, err := firebase.NewAuthClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize firebase")
	}
	return middleware.VerifyAuthToken(client)
}

func subscribeToEvents(ctx context.Context, client *pubsub.Client, bridge *game.EventBridge, cfg config.Config) {
	err := client.Subscribe(ctx, pubsub.SubscriptionHandler{
		SubscriptionId: cfg.EventSubscription,
		TopicName:      cfg.EventTopic,
		Handler:        bridge.HandleEventMessage,
	})
	if err != nil {
		log.Error().Err(err).Str("subscription", cfg.EventSubscription).Msg("Event subscription stopped")
	}
}

func setupApiRouter(cfg config.Config, e *escrow.Escrow, hub *wshub.WebSocketNotificationHub, auth gin.HandlerFunc) *gin.Engine {
	apiRouter := gin.New()
	middleware.RegisterGlobalMiddleware(apiRouter, cfg.CorsOrigins)
	routerGroup := apiRouter.Group("/rps-api")

	ws.RegisterRoutes(routerGroup, hub, auth)
	game.RegisterRoutes(routerGroup, e, auth)

	return apiRouter
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
