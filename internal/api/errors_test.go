package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"malformed token", fmt.Errorf("%w: bad base64", session.ErrInvalidToken), 400, CodeInvalidFragment},
		{"invalid state", fmt.Errorf("%w: unknown view", session.ErrInvalidState), 400, CodeInvalidState},
		{"no compiler", compiler.ErrNoCompiler, 503, CodeCompilerMissing},
		{"wrapped no compiler", fmt.Errorf("compile: %w", compiler.ErrNoCompiler), 503, CodeCompilerMissing},
		{"not started", pipeline.ErrNotStarted, 503, CodePipelineStopped},
		{"stopped", pipeline.ErrStopped, 503, CodePipelineStopped},
		{"bad optimizer output", fmt.Errorf("%w: eof", compiler.ErrInvalidResult), 502, CodeCompilerResult},
		{"deadline", context.DeadlineExceeded, 504, CodeTimeout},
		{"unknown", errors.New("boom"), 500, CodeInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := classifyError(tc.err)
			assert.Equal(t, tc.expectedStatus, status)
			assert.Equal(t, tc.expectedCode, code)
		})
	}
}

func TestHandlePipelineError(t *testing.T) {
	app := fiber.New()
	app.Get("/bad", func(c *fiber.Ctx) error {
		return handlePipelineError(c, fmt.Errorf("%w: minify", session.ErrInvalidState), "set options")
	})
	app.Get("/internal", func(c *fiber.Ctx) error {
		return handlePipelineError(c, errors.New("secret detail"), "set options")
	})

	req := httptest.NewRequest("GET", "/bad", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var er ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, CodeInvalidState, er.Code)
	assert.Contains(t, er.Error, "minify")
	assert.Equal(t, "req-42", er.RequestID)

	resp, err = app.Test(httptest.NewRequest("GET", "/internal", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, string(body), "Failed to set options")
	assert.NotContains(t, string(body), "secret detail")
}

func TestCustomErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: customErrorHandler})
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.ErrUpgradeRequired })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/fiber", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/plain", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Internal Server Error","code":500}`, string(body))
}
