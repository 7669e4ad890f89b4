package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/observability"
	"github.com/spec-kit/property-backoffice/pkg/util"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 5*time.Second)

	app.Get("/conflict", func(c *fiber.Ctx) error {
		return util.NewConflict("request is in a terminal state", map[string]any{"state": "APPROVED"})
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return util.NewNotFound("service request", nil)
	})
	app.Get("/unprocessable", func(c *fiber.Ctx) error {
		return util.NewUnprocessable("unsupported work order state", nil)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("unexpected")
	})
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": "fine"})
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestErrorMiddlewareMapsDomainErrors(t *testing.T) {
	app := newTestApp()

	status, body := doRequest(t, app, "/conflict")
	assert.Equal(t, 409, status)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "CONFLICT", errBody["code"])

	status, body = doRequest(t, app, "/missing")
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	status, body = doRequest(t, app, "/unprocessable")
	assert.Equal(t, 422, status)
	assert.Equal(t, "UNPROCESSABLE", body["error"].(map[string]any)["code"])
}

func TestErrorMiddlewareRecoversPanics(t *testing.T) {
	app := newTestApp()

	status, body := doRequest(t, app, "/boom")
	assert.Equal(t, 500, status)
	assert.Equal(t, "INTERNAL_ERROR", body["error"].(map[string]any)["code"])
}

func TestErrorMiddlewarePassesSuccessThrough(t *testing.T) {
	app := newTestApp()

	status, body := doRequest(t, app, "/ok")
	assert.Equal(t, 200, status)
	assert.Equal(t, "fine", body["data"])
}
