package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/prognoshealth/lambdaroute/lambdautils"
)

// RouteContext contains all the request information for a route when matched.
// A new RouteContext is created for every dispatch.
type RouteContext struct {
	Context context.Context

	// Event is the trigger specific view of the current event.
	Event EventView

	// PathParameters holds the bound path parameters keyed by placeholder
	// name. It is empty, never nil, for routes without placeholders.
	PathParameters map[string]interface{}

	Route  *Route
	Lambda lambdautils.LambdaMetaData

	items map[string]interface{}
}

// RawEvent returns the aws-lambda-go request the event was decoded into.
func (ctx *RouteContext) RawEvent() interface{} {
	if ctx.Event == nil {
		return nil
	}
	return ctx.Event.Raw()
}

// Param returns the path parameter name formatted as a string, or "" when
// absent.
func (ctx *RouteContext) Param(name string) string {
	v, ok := ctx.PathParameters[name]
	if !ok {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

// Query returns the query string parameter name.
func (ctx *RouteContext) Query(name string) string {
	return ctx.Event.QueryStringParameters()[name]
}

// Header returns the request header name, matched case-insensitively.
func (ctx *RouteContext) Header(name string) string {
	return ctx.Event.Header(name)
}

// Set stores value under key for later middlewares and the handler.
func (ctx *RouteContext) Set(key string, value interface{}) {
	if ctx.items == nil {
		ctx.items = make(map[string]interface{})
	}
	ctx.items[key] = value
}

// Get returns the value stored under key.
func (ctx *RouteContext) Get(key string) (interface{}, bool) {
	v, ok := ctx.items[key]
	return v, ok
}

// Body returns a string representation of the request body
func (ctx *RouteContext) Body() (string, error) {
	if ctx.Event.IsBase64Encoded() {
		b, err := base64.StdEncoding.DecodeString(ctx.Event.RawBody())
		if err != nil {
			return "", errors.Wrapf(err, "unable to decode request body for request %s", ctx.Event.RequestID())
		}

		return string(b), nil
	}

	return ctx.Event.RawBody(), nil
}

// DecodeJSON unmarshals the request body into v. Malformed bodies are
// reported as a 400 ServiceError.
func (ctx *RouteContext) DecodeJSON(v interface{}) error {
	body, err := ctx.Body()
	if err != nil {
		return BadRequestError(err.Error())
	}

	if err := json.Unmarshal([]byte(body), v); err != nil {
		return BadRequestError(fmt.Sprintf("invalid json body: %v", err))
	}

	return nil
}

// FormParams parses an application/x-www-form-urlencoded POST body. Requests
// that are not form posts return an empty map.
func (ctx *RouteContext) FormParams() (map[string]string, error) {
	params := map[string]string{}

	if ctx.Event.Method() != POST {
		return params, nil
	}

	if !strings.HasPrefix(ctx.Header("content-type"), "application/x-www-form-urlencoded") {
		return params, nil
	}

	body, err := ctx.Body()
	if err != nil {
		return nil, err
	}

	if body == "" {
		return params, nil
	}

	for _, pair := range strings.Split(body, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("invalid key/value pair '%s'", pair)
		}

		key, err := url.QueryUnescape(kv[0])
		if err != nil {
			return nil, errors.Wrapf(err, "unable to decode key '%s'", kv[0])
		}

		value, err := url.QueryUnescape(kv[1])
		if err != nil {
			return nil, errors.Wrapf(err, "unable to decode value '%s'", kv[1])
		}

		params[key] = value
	}

	return params, nil
}
