package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/handypro/membership/internal/config"
	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/handler"
	"github.com/handypro/membership/internal/repository"
	"github.com/handypro/membership/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret     = "test-secret-key-123"
	webhookSecret = "whsec_test"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func checkoutEvent(eventID string, metadata map[string]string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": handler.EventCheckoutCompleted,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             "cs_" + eventID,
				"payment_status": "paid",
				"metadata":       metadata,
			},
		},
	})
	return body
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestMembershipGoldenPath(t *testing.T) {
	// 1. Setup Infrastructure
	db, cleanupDB := testutil.SetupTestDB(t)
	defer cleanupDB()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	ctx := context.Background()
	membershipRepo := repository.NewMongoMembershipRepository(db)
	require.NoError(t, membershipRepo.EnsureIndexes(ctx))
	require.NoError(t, repository.NewMongoPlanRepository(db).SeedDefaultPlans(ctx))

	cfg := &config.Config{}
	cfg.Server.BodyLimitKB = 512
	cfg.JWT.Secret = jwtSecret
	cfg.Webhook.Secret = webhookSecret
	cfg.OTEL.ServiceName = "membership-service"
	cfg.Membership.MaxWriteAttempts = 2
	cfg.Membership.ActiveCacheTTLSeconds = 60
	cfg.Membership.PlanCacheTTLSeconds = 600

	// 2. Initialize App
	app := NewApp(AppDependencies{
		Config:      cfg,
		MongoDB:     db,
		RedisClient: redisClient,
	})

	contractorToken := testutil.AccessToken(t, jwtSecret, "contractor-1", domain.RoleContractor)
	adminToken := testutil.AccessToken(t, jwtSecret, "admin-1", domain.RoleAdmin)

	request := func(method, path, token string, body []byte, headers map[string]string) (int, envelope) {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, _ := http.NewRequest(method, path, bodyReader)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)

		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return resp.StatusCode, env
	}

	webhook := func(body []byte) (int, envelope) {
		return request("POST", "/v1/payments/webhook", "", body, map[string]string{
			handler.SignatureHeader: sign(body),
		})
	}

	// ==========================================
	// STEP 1: Public plan catalogue
	// ==========================================
	status, env := request("GET", "/v1/plans?audience=contractor", "", nil, nil)
	require.Equal(t, 200, status)
	var plans []domain.Plan
	require.NoError(t, json.Unmarshal(env.Data, &plans))
	assert.Len(t, plans, 3)

	// ==========================================
	// STEP 2: Fresh purchase via webhook
	// ==========================================
	fresh := checkoutEvent("evt_fresh", map[string]string{
		"userId":        "contractor-1",
		"planId":        "plan_contractor_basic",
		"billingPeriod": "monthly",
		"isUpgrade":     "false",
	})

	status, _ = request("POST", "/v1/payments/webhook", "", fresh, map[string]string{
		handler.SignatureHeader: "deadbeef",
	})
	assert.Equal(t, 401, status)

	status, env = webhook(fresh)
	require.Equal(t, 200, status, env.Error)
	assert.Equal(t, "payment processed", env.Message)

	var applied struct {
		MembershipID string    `json:"membership_id"`
		StartDate    time.Time `json:"start_date"`
		EndDate      time.Time `json:"end_date"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &applied))
	assert.InDelta(t, 30, applied.EndDate.Sub(applied.StartDate).Hours()/24, 1)

	// Redelivery is acknowledged without a second term
	status, env = webhook(fresh)
	assert.Equal(t, 200, status)
	assert.Equal(t, "already processed", env.Message)

	// ==========================================
	// STEP 3: Member reads the active term
	// ==========================================
	status, env = request("GET", "/v1/me/membership", contractorToken, nil, nil)
	require.Equal(t, 200, status, env.Error)
	var overview struct {
		Membership    domain.Membership `json:"membership"`
		Plan          domain.Plan       `json:"plan"`
		RemainingDays int               `json:"remaining_days"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	assert.Equal(t, applied.MembershipID, overview.Membership.ID)
	assert.Equal(t, "plan_contractor_basic", overview.Plan.ID)
	assert.Equal(t, 30, overview.RemainingDays)

	// ==========================================
	// STEP 4: Upgrade preview and upgrade
	// ==========================================
	status, env = request("GET", "/v1/me/membership/upgrade-preview?plan_id=plan_contractor_premium&billing_period=monthly", contractorToken, nil, nil)
	require.Equal(t, 200, status, env.Error)
	var quote struct {
		IsUpgrade       bool `json:"is_upgrade"`
		CarriedOverDays int  `json:"carried_over_days"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.True(t, quote.IsUpgrade)
	assert.Equal(t, 30, quote.CarriedOverDays)

	status, env = webhook(checkoutEvent("evt_upgrade", map[string]string{
		"userId":              "contractor-1",
		"planId":              "plan_contractor_premium",
		"billingPeriod":       "monthly",
		"isUpgrade":           "true",
		"currentMembershipId": applied.MembershipID,
		"fromPlanId":          "plan_contractor_basic",
		"toPlanId":            "plan_contractor_premium",
	}))
	require.Equal(t, 200, status, env.Error)

	var upgraded struct {
		MembershipID string    `json:"membership_id"`
		StartDate    time.Time `json:"start_date"`
		EndDate      time.Time `json:"end_date"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &upgraded))
	assert.True(t, applied.StartDate.Equal(upgraded.StartDate))
	assert.InDelta(t, 60, upgraded.EndDate.Sub(upgraded.StartDate).Hours()/24, 1)

	status, env = request("GET", "/v1/me/memberships", contractorToken, nil, nil)
	require.Equal(t, 200, status)
	var history []domain.Membership
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 2)
	active := 0
	for _, m := range history {
		if m.Status == domain.MembershipStatusActive {
			active++
			assert.Equal(t, upgraded.MembershipID, m.ID)
		} else {
			assert.Equal(t, domain.MembershipStatusCancelled, m.Status)
		}
	}
	assert.Equal(t, 1, active)

	// ==========================================
	// STEP 5: Leads with idempotent retries
	// ==========================================
	leadHeaders := map[string]string{"X-Correlation-ID": "lead-req-1"}
	status, first := request("POST", "/v1/me/membership/leads", contractorToken, nil, leadHeaders)
	require.Equal(t, 201, status, first.Error)
	status, replay := request("POST", "/v1/me/membership/leads", contractorToken, nil, leadHeaders)
	require.Equal(t, 201, status)
	assert.JSONEq(t, string(first.Data), string(replay.Data))

	customerToken := testutil.AccessToken(t, jwtSecret, "customer-1", domain.RoleCustomer)
	status, _ = request("POST", "/v1/me/membership/leads", customerToken, nil, nil)
	assert.Equal(t, 403, status)

	// ==========================================
	// STEP 6: Admin
	// ==========================================
	status, env = request("GET", "/v1/admin/users/contractor-1/memberships", adminToken, nil, nil)
	require.Equal(t, 200, status)
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 2)

	status, _ = request("GET", "/v1/admin/users/contractor-1/memberships", contractorToken, nil, nil)
	assert.Equal(t, 403, status)

	status, env = request("POST", "/v1/admin/memberships/expire", adminToken, nil, nil)
	require.Equal(t, 200, status)
	assert.JSONEq(t, `{"expired":0}`, string(env.Data))

	invalidPlan, _ := json.Marshal(map[string]interface{}{"id": "plan_bad", "name": "Bad", "audience": "landlord"})
	status, _ = request("POST", "/v1/admin/plans", adminToken, invalidPlan, nil)
	assert.Equal(t, 400, status)
}

func TestWebhookPurchaseEdgeCases(t *testing.T) {
	db, cleanupDB := testutil.SetupTestDB(t)
	defer cleanupDB()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	ctx := context.Background()
	require.NoError(t, repository.NewMongoMembershipRepository(db).EnsureIndexes(ctx))
	require.NoError(t, repository.NewMongoPlanRepository(db).Create(ctx, &domain.Plan{
		ID:                  "plan_monthly_only",
		Name:                "Monthly only",
		Audience:            domain.AudienceCustomer,
		MonthlyDurationDays: 30,
		IsActive:            true,
	}))

	cfg := &config.Config{}
	cfg.Server.BodyLimitKB = 512
	cfg.JWT.Secret = jwtSecret
	cfg.Webhook.Secret = webhookSecret
	cfg.Membership.MaxWriteAttempts = 2

	app := NewApp(AppDependencies{Config: cfg, MongoDB: db, RedisClient: redisClient})

	send := func(body []byte) int {
		req, _ := http.NewRequest("POST", "/v1/payments/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(handler.SignatureHeader, sign(body))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	// Yearly has no duration on this plan
	assert.Equal(t, 422, send(checkoutEvent("evt_yearly", map[string]string{
		"userId": "customer-1", "planId": "plan_monthly_only", "billingPeriod": "yearly",
	})))

	// The failed event was released, so a fixed retry is not treated as a duplicate
	assert.Equal(t, 422, send(checkoutEvent("evt_yearly", map[string]string{
		"userId": "customer-1", "planId": "plan_monthly_only", "billingPeriod": "yearly",
	})))

	assert.Equal(t, 400, send(checkoutEvent("evt_bad_meta", map[string]string{
		"planId": "plan_monthly_only", "billingPeriod": "monthly",
	})))

	assert.Equal(t, 422, send(checkoutEvent("evt_unknown_plan", map[string]string{
		"userId": "customer-1", "planId": "plan_gone", "billingPeriod": "monthly",
	})))

	// An upgrade checkout with no term to replace still activates the paid plan
	assert.Equal(t, 200, send(checkoutEvent("evt_upgrade_no_current", map[string]string{
		"userId": "customer-1", "planId": "plan_monthly_only", "billingPeriod": "monthly",
		"isUpgrade": "true", "autoRenew": "true",
	})))

	terms, err := repository.NewMongoMembershipRepository(db).ListByUserID(ctx, "customer-1")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, domain.MembershipStatusActive, terms[0].Status)
	assert.Equal(t, "plan_monthly_only", terms[0].PlanID)
	assert.True(t, terms[0].IsAutoRenew)
}
