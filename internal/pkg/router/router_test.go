package router

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiv1 "github.com/sbsbridge/claimbridge/internal/api/v1"
)

type pingOnly struct {
	apiv1.ServerInterface
}

func (pingOnly) GetPing(c *fiber.Ctx) error { return c.JSON(apiv1.Pong{Ping: "pong"}) }

func newApp(cfg ApiConfig) *fiber.App {
	app := fiber.New()
	InstallRouter(app, NewApiRouter(cfg, pingOnly{}))
	return app
}

func get(t *testing.T, app *fiber.App, path string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestApiRouter_RequiresKeyOnV1(t *testing.T) {
	app := newApp(ApiConfig{APIKeys: []string{"secret"}})

	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/", nil))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/api/v1/ping", nil))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", map[string]string{"X-API-Key": "secret"}))
}

func TestApiRouter_RateLimit(t *testing.T) {
	app := newApp(ApiConfig{RateLimitMax: 2, RateLimitWindow: time.Minute})

	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", nil))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", nil))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/api/v1/ping", nil))
}

func TestLoadApiConfigDefaults(t *testing.T) {
	t.Setenv("API_KEY", "a,b")
	cfg := LoadApiConfig()
	assert.Equal(t, []string{"a", "b"}, cfg.APIKeys)
	assert.Equal(t, 120, cfg.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}
