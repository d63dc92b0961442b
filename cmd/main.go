/**
 * @description
 * This is the main entry point for the treegar-orchestration-service. It is
 * responsible for initializing all components of the service, including
 * configuration, database connection, the Meridian BaaS client, the message
 * broker, the read-model cache, the core application service, the resolution
 * sweeper, and the HTTP server. It wires everything together and starts the
 * service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Redis client for read-model cache invalidation.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/meridianclient: Client for the Meridian BaaS API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
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

	"github.com/tamfolio/treegar-orchestration-service/internal/api"
	"github.com/tamfolio/treegar-orchestration-service/internal/app"
	"github.com/tamfolio/treegar-orchestration-service/internal/config"
	"github.com/tamfolio/treegar-orchestration-service/internal/payout"
	"github.com/tamfolio/treegar-orchestration-service/internal/store"
	"github.com/tamfolio/treegar-orchestration-service/pkg/meridianclient"
	"github.com/tamfolio/treegar-orchestration-service/pkg/rabbitmq"
)

func main() {
	// Load .env for local development; in deployed environments the variables
	// come from the process environment.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, relying on environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.MeridianAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"meridian api key must be configured\" env=MERIDIAN_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting treegar-orchestration-service\" port=%s exchange=%s", cfg.ServerPort, cfg.IntentEventExchange)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind pgbouncer.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer used for intent and verification events.
	// The service still boots without the broker; events degrade to warnings.
	var eventProducer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventProducer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the Meridian BaaS API.
	meridianClient := meridianclient.NewClient(cfg.MeridianAPIBaseURL, cfg.MeridianAPIKey)

	// The Redis read-model cache is optional. When Redis is unreachable the
	// service falls back to a no-op cache and settled transfers simply skip
	// invalidation.
	var readCache payout.ReadCache = &app.NoopReadCache{}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; read cache invalidation disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; read cache invalidation disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; read cache invalidation disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				readCache = app.NewRedisReadCache(redisClient, cfg.RedisViewCachePrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	service := app.NewService(
		repository,
		meridianClient,
		eventProducer,
		readCache,
		cfg.IntentEventExchange,
		time.Duration(cfg.ResolutionDebounceMS)*time.Millisecond,
		time.Duration(cfg.VerificationRefreshMS)*time.Millisecond,
	)
	defer service.Close()

	// Start the cron sweeper that fails resolutions stuck in flight.
	sweeper := app.NewSweeper(service, cfg.ResolutionSweepSchedule, time.Duration(cfg.ResolutionStuckAfterSec)*time.Second)
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize the API handlers and routes.
	handlers := api.NewHandlers(service)
	router := api.Routes(handlers, cfg.JWKSURL)

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

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
