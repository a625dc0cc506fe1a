package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/handypro/membership/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, userID string, roles ...string) string {
	t.Helper()
	claims := domain.AccessClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenAndAuthorizeRole(t *testing.T) {
	app := fiber.New()
	app.Get("/me", VerifyToken(testSecret), AuthorizeRole(domain.RoleContractor), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c))
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing token", "", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", "u1", domain.RoleContractor), fiber.StatusUnauthorized},
		{"wrong role", "Bearer " + signToken(t, testSecret, "u1", domain.RoleCustomer), fiber.StatusForbidden},
		{"ok", "Bearer " + signToken(t, testSecret, "u1", domain.RoleContractor), fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "u1", string(body))
			}
		})
	}
}

func TestIdempotencyMiddlewareReplays(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	calls := 0
	app := fiber.New()
	app.Use(VerifyToken(testSecret))
	app.Post("/leads", IdempotencyMiddleware(rdb, time.Minute), func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "calls": calls})
	})

	token := "Bearer " + signToken(t, testSecret, "u1", domain.RoleContractor)
	send := func(correlationID string) (int, string, string) {
		req := httptest.NewRequest("POST", "/leads", nil)
		req.Header.Set("Authorization", token)
		if correlationID != "" {
			req.Header.Set(IdempotencyHeader, correlationID)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body), resp.Header.Get("X-Idempotent-Replay")
	}

	status, first, replay := send("req-1")
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Empty(t, replay)

	status, second, replay := send("req-1")
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, first, second)
	assert.Equal(t, "true", replay)
	assert.Equal(t, 1, calls)

	send("req-2")
	send("")
	assert.Equal(t, 3, calls)
}
