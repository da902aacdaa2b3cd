package middleware

import (
	"net/http/httptest"
	"testing"

	"evalsurvey/backend/config"
	"evalsurvey/backend/models"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Use(LoggingMiddleware(utils.NopLogger()))
	app.Get("/me", AuthMiddleware(cfg), func(c *fiber.Ctx) error {
		claims, _ := utils.ClaimsFromContext(c)
		return c.SendString(claims.Email)
	})
	app.Get("/admin", AuthMiddleware(cfg), AdminMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func token(t *testing.T, cfg *config.Config, role string) string {
	t.Helper()
	tok, err := utils.GenerateJWTToken(&models.UserProfile{ID: uuid.New(), Email: "u@example.com", Role: role}, cfg)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	app := newApp(cfg)

	req := httptest.NewRequest("GET", "/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", token(t, cfg, models.RoleUser))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	other := &config.Config{JWTSecret: "other"}
	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", token(t, other, models.RoleUser))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAdminMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	app := newApp(cfg)

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", token(t, cfg, models.RoleUser))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", token(t, cfg, models.RoleAdmin))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
