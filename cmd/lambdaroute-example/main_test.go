package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prognoshealth/lambdaroute/config"
	"github.com/prognoshealth/lambdaroute/proxy"
)

func request(method, path, body string) proxy.EventView {
	return proxy.NewLambdaFunctionURLEvent(events.LambdaFunctionURLRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"content-type": "application/json"},
		RequestContext: events.LambdaFunctionURLRequestContext{
			HTTP: events.LambdaFunctionURLRequestContextHTTPDescription{Method: method},
		},
	})
}

func TestNewApp(t *testing.T) {
	cfg := config.Default()
	cfg.Validation = true
	cfg.StripPrefixes = []string{"/api"}

	app := newApp(cfg, zap.NewNop(), newStore())
	require.NoError(t, app.BuildErrors())

	ctx := context.Background()

	env := app.Resolve(ctx, request("GET", "/api/health", ""))
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, "ok", env.Body)

	env = app.Resolve(ctx, request("POST", "/items", `{"name":"widget"}`))
	require.Equal(t, http.StatusCreated, env.StatusCode)

	var created item
	require.NoError(t, json.Unmarshal([]byte(env.Body), &created))
	assert.Equal(t, "widget", created.Name)
	_, err := uuid.Parse(created.ID)
	assert.NoError(t, err)

	env = app.Resolve(ctx, request("GET", "/items/"+created.ID, ""))
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.JSONEq(t, `{"id":"`+created.ID+`","name":"widget"}`, env.Body)

	env = app.Resolve(ctx, request("GET", "/items", ""))
	assert.JSONEq(t, `[{"id":"`+created.ID+`","name":"widget"}]`, env.Body)

	env = app.Resolve(ctx, request("DELETE", "/items/"+created.ID, ""))
	assert.Equal(t, http.StatusNoContent, env.StatusCode)

	env = app.Resolve(ctx, request("GET", "/items/"+created.ID, ""))
	assert.Equal(t, http.StatusNotFound, env.StatusCode)
}

func TestNewApp_errors(t *testing.T) {
	app := newApp(config.Default(), zap.NewNop(), newStore())
	ctx := context.Background()

	env := app.Resolve(ctx, request("POST", "/items", `{}`))
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)

	env = app.Resolve(ctx, request("POST", "/items", `{`))
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)

	env = app.Resolve(ctx, request("PUT", "/items", ""))
	assert.Equal(t, http.StatusMethodNotAllowed, env.StatusCode)
	assert.Equal(t, "GET, POST", env.Headers["Allow"])
}

func TestNewApp_invalidID(t *testing.T) {
	cfg := config.Default()
	cfg.Validation = true

	app := newApp(cfg, zap.NewNop(), newStore())

	env := app.Resolve(context.Background(), request("GET", "/items/not-a-uuid", ""))
	assert.Equal(t, http.StatusUnprocessableEntity, env.StatusCode)
}

func TestNewApp_lock(t *testing.T) {
	cfg := config.Default()
	cfg.Lock.Table = "locks"

	app := newApp(cfg, zap.NewNop(), newStore())

	var post *proxy.Route
	for _, route := range app.Routes() {
		if route.Rule == "/items" && route.Allows(proxy.POST) {
			post = route
		}
	}

	require.NotNil(t, post)
	assert.Len(t, post.Middlewares, 1)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(zap.WarnLevel)
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}
