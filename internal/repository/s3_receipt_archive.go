package repository

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/handypro/membership/internal/config"
	"github.com/sony/gobreaker/v2"
)

// S3ReceiptArchive implements domain.ReceiptArchive on an S3-compatible store.
// Writes go through a circuit breaker so a slow store cannot stall webhooks.
type S3ReceiptArchive struct {
	client  *s3.Client
	bucket  string
	breaker *gobreaker.CircuitBreaker[any]
	now     func() time.Time
}

// NewS3ReceiptArchive creates the archive and makes sure the bucket exists
func NewS3ReceiptArchive(ctx context.Context, cfg appConfig.S3Config) (*S3ReceiptArchive, error) {
	// SeaweedFS/MinIO accept any static credentials but still require a signature
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("any", "any", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	archive := &S3ReceiptArchive{
		client:  client,
		bucket:  cfg.Bucket,
		breaker: newArchiveBreaker(cfg.Bucket),
		now:     time.Now,
	}

	if err := archive.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return archive, nil
}

func newArchiveBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "s3:" + name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[ReceiptArchive] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// ReceiptKey returns the object key for a webhook payload received at t
func ReceiptKey(eventID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("webhooks/%04d/%02d/%s.json", t.Year(), int(t.Month()), eventID)
}

// Archive stores the raw webhook payload under a date-partitioned key
func (a *S3ReceiptArchive) Archive(ctx context.Context, eventID string, payload []byte) error {
	key := ReceiptKey(eventID, a.now())

	_, err := a.breaker.Execute(func() (any, error) {
		return a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String("application/json"),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to archive receipt %s: %w", key, err)
	}
	return nil
}

// ensureBucket checks if bucket exists, creating it if necessary
func (a *S3ReceiptArchive) ensureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(a.bucket),
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}
