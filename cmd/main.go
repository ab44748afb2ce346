/**
 * @description
 * This is the main entry point for the payment service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, gateway adapters, collaborator clients, the message broker producer,
 * repositories, the core application services, the cron scheduler, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/api, internal/app, internal/config, internal/gateway, internal/store: Internal packages.
 * - pkg/catalogclient, pkg/profileclient, pkg/rabbitmq: Collaborator and broker clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fanvault/payment-service/internal/api"
	"github.com/fanvault/payment-service/internal/app"
	"github.com/fanvault/payment-service/internal/config"
	"github.com/fanvault/payment-service/internal/gateway"
	"github.com/fanvault/payment-service/internal/store"
	"github.com/fanvault/payment-service/pkg/catalogclient"
	"github.com/fanvault/payment-service/pkg/profileclient"
	"github.com/fanvault/payment-service/pkg/rabbitmq"
)

func main() {
	// Load .env for local development; in deployment the environment is injected.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, relying on environment variables\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish payment events. A dead broker must
	// not prevent the service from taking payments.
	var publisher rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &rabbitmq.NoopPublisher{}
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional redis-backed callback replay guard.
	var replayGuard app.ReplayGuard
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=info component=bootstrap msg=\"redis url missing; callback replay guard disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; callback replay guard disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; callback replay guard disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				replayGuard = app.NewRedisReplayGuard(redisClient, cfg.RedisReplayPrefix, time.Duration(cfg.CallbackReplayTTLSec)*time.Second)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the collaborator clients.
	catalogClient := catalogclient.NewClient(cfg.CatalogServiceURL, cfg.InternalAPIKey)
	profileClient := profileclient.NewClient(cfg.ProfileServiceURL, cfg.InternalAPIKey)

	// Construct one gateway adapter per configured provider. Unconfigured providers
	// stay registered and answer with "temporarily unavailable".
	registry := gateway.NewRegistry(
		gateway.NewWalletAAdapter(gateway.WalletAConfig{
			AppID:     cfg.WalletAAppID,
			Secret:    cfg.WalletASecret,
			BaseURL:   cfg.WalletABaseURL,
			NotifyURL: cfg.WalletANotifyURL,
		}, nil),
		gateway.NewWalletBAdapter(gateway.WalletBConfig{
			MerchantID: cfg.WalletBMerchantID,
			Secret:     cfg.WalletBSecret,
			GatewayURL: cfg.WalletBGatewayURL,
			NotifyURL:  cfg.WalletBNotifyURL,
		}, nil),
		gateway.NewCardAdapter(gateway.CardConfig{
			PublicKey:     cfg.CardPublicKey,
			WebhookSecret: cfg.CardWebhookSecret,
			BaseURL:       cfg.CardBaseURL,
			CheckoutURL:   cfg.CardCheckoutURL,
		}, nil),
		gateway.NewIAPAdapter(gateway.IAPConfig{
			ProductionURL: cfg.IAPVerifyURL,
			SandboxURL:    cfg.IAPSandboxVerifyURL,
			SharedSecret:  cfg.IAPSharedSecret,
			BundleID:      cfg.IAPBundleID,
		}, nil),
	)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	settings := app.Settings{
		Currency:               cfg.DefaultCurrency,
		DefaultSharingRatioBps: cfg.DefaultSharingRatioBps,
		TipPlatformFeeBps:      int32(math.Round(cfg.TipPlatformFeePercent * 100)),
		MinWithdrawalAmount:    cfg.MinWithdrawalAmount,
		EarningsMaturityDays:   cfg.EarningsMaturityDays,
		OrderExpiry:            time.Duration(cfg.OrderExpiryMinutes) * time.Minute,
		Plans:                  cfg.Plans,
	}

	// Initialize the core application services with their dependencies.
	paymentService := app.NewService(repository, registry, catalogClient, profileClient, publisher, replayGuard, settings)
	ledger := app.NewLedger(repository, settings)

	// Start the cron scheduler for settlement maturation and order expiry.
	jobLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(repository, jobLogger, settings)
	scheduler := app.NewScheduler(jobs, jobLogger, app.Schedules{
		SettlementPromotion: cfg.SettlementPromotionSchedule,
		OrderExpiry:         cfg.OrderExpirySchedule,
	})
	scheduler.Start()

	// Initialize the API handlers and router.
	handlers := api.NewPaymentHandlers(paymentService, ledger)
	router := api.PaymentRoutes(handlers, cfg.AuthJWKSURL, cfg.InternalAPIKey)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Let in-flight cron jobs finish.
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
