package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "membership-service"

// MembershipMetrics counts membership lifecycle changes.
// A nil *MembershipMetrics is valid and records nothing.
type MembershipMetrics struct {
	created   metric.Int64Counter
	upgraded  metric.Int64Counter
	expired   metric.Int64Counter
	conflicts metric.Int64Counter
	leads     metric.Int64Counter
}

// NewMembershipMetrics registers the counters on the global meter provider
func NewMembershipMetrics() (*MembershipMetrics, error) {
	meter := otel.Meter(meterName)

	created, err := meter.Int64Counter("membership.created",
		metric.WithDescription("Fresh membership terms activated"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	upgraded, err := meter.Int64Counter("membership.upgraded",
		metric.WithDescription("Membership terms replaced by an upgrade"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	expired, err := meter.Int64Counter("membership.expired",
		metric.WithDescription("Lapsed terms retired by the expiry sweep"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	conflicts, err := meter.Int64Counter("membership.write_conflicts",
		metric.WithDescription("Conditional membership writes that lost a race"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	leads, err := meter.Int64Counter("membership.leads_consumed",
		metric.WithDescription("Contractor leads charged against an allowance"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &MembershipMetrics{
		created:   created,
		upgraded:  upgraded,
		expired:   expired,
		conflicts: conflicts,
		leads:     leads,
	}, nil
}

func (m *MembershipMetrics) RecordCreated(ctx context.Context, planID string) {
	if m == nil {
		return
	}
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.String("plan_id", planID)))
}

func (m *MembershipMetrics) RecordUpgraded(ctx context.Context, fromPlanID, toPlanID string) {
	if m == nil {
		return
	}
	m.upgraded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from_plan_id", fromPlanID),
		attribute.String("to_plan_id", toPlanID),
	))
}

func (m *MembershipMetrics) RecordExpired(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.expired.Add(ctx, int64(count))
}

func (m *MembershipMetrics) RecordConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *MembershipMetrics) RecordLeadConsumed(ctx context.Context, planID string) {
	if m == nil {
		return
	}
	m.leads.Add(ctx, 1, metric.WithAttributes(attribute.String("plan_id", planID)))
}
