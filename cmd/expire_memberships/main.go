package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/handypro/membership/internal/config"
	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/infrastructure/eventbus"
	"github.com/handypro/membership/internal/repository"
	"github.com/handypro/membership/internal/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Marks every active term whose end date has passed as expired.
// Safe to run while the API is serving: conflicting terms are skipped.
func main() {
	dryRun := flag.Bool("dry-run", false, "list lapsed terms without changing them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB.Database)

	var publisher domain.EventPublisher = eventbus.NewNoopPublisher()
	if cfg.RabbitMQ.URL != "" && !*dryRun {
		rabbit, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQ.URL)
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, expiry events will not be published: %v", err)
		} else {
			defer rabbit.Close()
			publisher = rabbit
		}
	}

	// No cache here: the API's active-term cache entries age out on their own TTL
	svc := service.NewMembershipService(
		repository.NewMongoMembershipRepository(db),
		repository.NewMongoPlanRepository(db),
		nil,
		publisher,
		nil,
		service.MembershipServiceConfig{MaxWriteAttempts: cfg.Membership.MaxWriteAttempts},
	)

	if *dryRun {
		lapsed, err := svc.ListLapsedMemberships(ctx)
		if err != nil {
			log.Fatalf("Failed to list lapsed memberships: %v", err)
		}
		for _, m := range lapsed {
			log.Printf("[DRY RUN] Would expire %s (user %s, plan %s, ended %s)",
				m.ID, m.UserID, m.PlanID, m.EndDate.Format(time.RFC3339))
		}
		log.Printf("[DRY RUN] %d memberships would be expired", len(lapsed))
		return
	}

	count, err := svc.ExpireLapsedMemberships(ctx)
	if err != nil {
		log.Fatalf("Failed to expire memberships: %v", err)
	}
	log.Printf("Expired %d memberships", count)
}
