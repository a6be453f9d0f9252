package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/cache"
	redisCache "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/cache/redis"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/gateway"
	httpHandler "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/handler/http"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/logging"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/persistant/postgresql"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/persistant/sqlite"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/registry"
	contactRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/contact"
	messageRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/message"
	tenantRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/tenant"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/secrets"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/service"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var (
	configFile = flag.String("config", "config.json", "config file path (.json, .yaml or .yml)")
)

func main() {
	// create root context
	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	// listen for terminate signal
	notifyCtx, stop := signal.NotifyContext(appCtx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	// parse flags
	flag.Parse()

	// a missing .env is fine
	_ = godotenv.Load()

	// parse config
	config, err := ReadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	// setup logger
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	logger := logging.New(logging.Config{Level: level, Format: config.LogFormat, Output: os.Stdout})
	slog.SetDefault(logger)

	// initialize external dependencies
	db, rCache, err := initExternalDependencies(notifyCtx, config)
	if err != nil {
		log.Fatalf("failed to initialize external dependencies: %v", err)
	}

	// init repositories
	msgRepo := messageRepo.NewMessageRepository(db)
	cntRepo := contactRepo.NewContactRepository(db)
	tntRepo := tenantRepo.NewTenantRepository(db)

	// init channel registry
	var secretResolver registry.SecretResolver
	if config.AwsSecretsEnabled {
		sm, err := secrets.NewSecretsManager(notifyCtx)
		if err != nil {
			log.Fatalf("failed to initialize secrets manager: %v", err)
		}
		secretResolver = sm
	}
	channelRegistry := registry.New(tntRepo, secretResolver)

	// init gateway client
	gwCfg := gateway.Config{
		BaseURL: config.GatewayBaseURL,
		Timeout: config.GatewayTimeout,
	}
	if config.GatewayMaxRetry > 0 {
		gwCfg.MaxRetry = &config.GatewayMaxRetry
	}
	gw, err := gateway.NewTwilioClient(gwCfg, logging.WithComponent(logger, "gateway"))
	if err != nil {
		log.Fatalf("failed to initiate gateway client: %v", err)
	}

	// init services
	dispatcher := service.NewDispatcher(
		msgRepo,
		cntRepo,
		channelRegistry,
		gw,
		logging.WithComponent(logger, "dispatcher"),
		config.SendTimeout,
	)

	var seen cache.Cache
	if rCache != nil {
		seen = rCache
	}
	ingestor := service.NewIngestor(
		msgRepo,
		cntRepo,
		tntRepo,
		channelRegistry,
		seen,
		logging.WithComponent(logger, "ingestor"),
		service.IngestorOptions{
			ValidateSignature: config.ValidateWebhookSignature,
			DedupeTTL:         config.InboundDedupeTTL,
		},
	)

	// init http handler
	httpHandler := httpHandler.NewHttpHandler(
		fmt.Sprintf(":%d", config.HttpPort),
		dispatcher,
		ingestor,
		logging.WithComponent(logger, "http"),
		httpHandler.Options{WebhookPublicURL: config.WebhookPublicURL},
	)

	wg := sync.WaitGroup{}
	// run http handler
	wg.Go(func() {
		logger.Info("http server listening", "port", config.HttpPort)
		if err := httpHandler.Run(); err != nil {
			logger.Error("http server encountered with an error and closed", "error", err.Error())
		}
		// cancel app context if http handler fails
		appCtxCancel()
	})

	// graceful shutdown
	wg.Go(func() {
		<-notifyCtx.Done()
		logger.Info("application shutting down...")

		shutDownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		if err := httpHandler.Shutdown(shutDownCtx); err != nil {
			logger.Error("failed to shut down http server", "error", err.Error())
		}
		if rCache != nil {
			_ = rCache.Close()
		}
		if err := postgresql.Close(db); err != nil {
			logger.Error("failed to close database", "error", err.Error())
		}
	})

	wg.Wait()
	os.Exit(0)
}

func initExternalDependencies(ctx context.Context, config *Config) (db *gorm.DB, rCache *redisCache.RedisCache, err error) {
	// initialize database
	switch config.DbDriver {
	case dbDriverSQLite:
		db, err = sqlite.Initialize(config.DbConnString, domain.Models())
	default:
		db, err = postgresql.Initialize(config.DbConnString, domain.Models())
	}
	if err != nil {
		return
	}

	// initialize cache
	if config.RedisAddr != "" {
		rCache, err = redisCache.NewRedisCache(ctx, config.RedisAddr)
	}

	return
}
