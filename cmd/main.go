package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/handypro/membership/internal/config"
	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/infrastructure/eventbus"
	"github.com/handypro/membership/internal/repository"
	"github.com/handypro/membership/internal/server"
	"github.com/handypro/membership/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Starting Marketplace Membership Service...")

	ctx := context.Background()

	otelProvider, err := telemetry.Initialize(ctx, telemetry.FromAppConfig(cfg.OTEL))
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	}
	if otelProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			otelProvider.Shutdown(shutdownCtx)
		}()
	}

	metrics, err := telemetry.NewMembershipMetrics()
	if err != nil {
		log.Printf("Warning: Failed to create membership metrics: %v", err)
	}

	// Connect to MongoDB with OpenTelemetry instrumentation
	ctxMongo, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoOpts := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.OTEL.Enabled {
		mongoOpts.SetMonitor(otelmongo.NewMonitor())
	}

	mongoClient, err := mongo.Connect(ctxMongo, mongoOpts)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := mongoClient.Ping(ctxMongo, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("✓ MongoDB connected")

	mongoDB := mongoClient.Database(cfg.MongoDB.Database)

	// The one-active-term index must exist before any purchase is applied
	if err := repository.NewMongoMembershipRepository(mongoDB).EnsureIndexes(ctxMongo); err != nil {
		log.Fatalf("Failed to ensure membership indexes: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("✓ Redis connected")

	// Receipt archive (optional)
	var archive domain.ReceiptArchive
	if cfg.S3.Enabled {
		s3Archive, err := repository.NewS3ReceiptArchive(ctx, cfg.S3)
		if err != nil {
			log.Printf("Warning: Receipt archive disabled: %v", err)
		} else {
			archive = s3Archive
			log.Printf("✓ Receipt archive ready (bucket %s)", cfg.S3.Bucket)
		}
	}

	// Event bus
	var publisher interface {
		domain.EventPublisher
		Close() error
	} = eventbus.NewNoopPublisher()
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQ.URL)
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, membership events will not be published: %v", err)
		} else {
			publisher = rabbit
			log.Println("✓ RabbitMQ connected")
		}
	}
	defer publisher.Close()

	app := server.NewApp(server.AppDependencies{
		Config:         cfg,
		MongoDB:        mongoDB,
		RedisClient:    redisClient,
		Publisher:      publisher,
		ReceiptArchive: archive,
		Metrics:        metrics,
	})

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	log.Printf("🚀 Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
