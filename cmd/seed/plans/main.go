package main

import (
	"context"
	"log"
	"time"

	"github.com/handypro/membership/internal/config"
	"github.com/handypro/membership/internal/repository"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB.Database)

	if err := repository.NewMongoMembershipRepository(db).EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to ensure membership indexes: %v", err)
	}

	if err := repository.NewMongoPlanRepository(db).SeedDefaultPlans(ctx); err != nil {
		log.Fatalf("Failed to seed plans: %v", err)
	}

	log.Println("Plan seeding completed.")
}
