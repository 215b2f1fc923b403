package proxy

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type familyCase struct {
	name      string
	router    func() *Router
	resolver  func(...ResolverOption) *Resolver
	file      string
	eventType EventView
}

var familyCases = []familyCase{
	{"alb", NewALBRouter, NewALBResolver, "albEvent.json", &ALBEvent{}},
	{"rest", NewAPIGatewayRouter, NewAPIGatewayRestResolver, "apiGatewayProxyEvent.json", &APIGatewayProxyEvent{}},
	{"http", NewAPIGatewayHttpRouter, NewAPIGatewayHttpResolver, "apiGatewayProxyV2Event_GET.json", &APIGatewayProxyEventV2{}},
	{"function-url", NewLambdaFunctionURLRouter, NewLambdaFunctionURLResolver, "lambdaFunctionUrlEvent.json", &LambdaFunctionURLEvent{}},
}

func TestResolver_routerEventType(t *testing.T) {
	cases := []struct {
		familyCase
		rule   string
		method HttpMethod
		file   string
	}{
		{familyCases[0], "/lambda", GET, "albEvent.json"},
		{familyCases[1], "/my/path", GET, "apiGatewayProxyEvent.json"},
		{familyCases[2], "/my/path", POST, "apiGatewayProxyV2Event.json"},
		{familyCases[3], "/", GET, "lambdaFunctionUrlEvent.json"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			app := c.resolver()
			router := c.router()

			var seen EventView
			router.Route(c.rule, []HttpMethod{c.method}, func(*RouteContext) (interface{}, error) {
				seen = router.CurrentEvent()
				return NewResponse(200, "routed"), nil
			})

			app.Include(router, "")
			resp := invoke(t, app, loadEvent(t, c.file))

			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, "routed", resp.Body)
			assert.IsType(t, c.eventType, seen)
			assert.IsType(t, c.eventType, app.CurrentEvent())
		})
	}
}

func TestResolver_pathParametersInContext(t *testing.T) {
	for _, c := range familyCases {
		t.Run(c.name, func(t *testing.T) {
			app := c.resolver(WithValidation(true))
			router := c.router()

			expected := map[string]interface{}{"str_param": "str_value", "int_param": 3}

			var seen map[string]interface{}
			bar := func(ctx *RouteContext, next NextFunc) (Response, error) {
				seen = ctx.PathParameters
				return next(ctx)
			}

			router.GET("/<str_param>/<int_param>", testHandler,
				Use(bar),
				Params(StringParam("str_param"), IntParam("int_param")),
			)

			app.Include(router, "")
			resp := invoke(t, app, loadEventWithPath(t, c.file, "/str_value/3"))

			assert.Equal(t, "routed", resp.Body)
			assert.Equal(t, expected, seen)
		})
	}
}

func TestResolver_pathParametersStaticPath(t *testing.T) {
	for _, c := range familyCases {
		t.Run(c.name, func(t *testing.T) {
			app := c.resolver(WithValidation(true))
			router := c.router()

			var seen map[string]interface{}
			bar := func(ctx *RouteContext, next NextFunc) (Response, error) {
				seen = ctx.PathParameters
				return next(ctx)
			}

			router.GET("/static", testHandler, Use(bar))

			app.Include(router, "")
			resp := invoke(t, app, loadEventWithPath(t, c.file, "/static"))

			assert.Equal(t, "routed", resp.Body)
			assert.NotNil(t, seen)
			assert.Empty(t, seen)
		})
	}
}

func TestResolver_validationDisabledKeepsStrings(t *testing.T) {
	app := NewAPIGatewayHttpResolver()

	var seen map[string]interface{}
	app.GET("/<str_param>/<int_param>", func(ctx *RouteContext) (interface{}, error) {
		seen = ctx.PathParameters
		return nil, nil
	}, Params(IntParam("int_param")))

	env := app.Resolve(testContext(), testRequest(GET, "/str_value/3"))

	assert.Equal(t, http.StatusNoContent, env.StatusCode)
	assert.Equal(t, map[string]interface{}{"str_param": "str_value", "int_param": "3"}, seen)
}

func TestResolver_validationFailure(t *testing.T) {
	called := false
	app := NewAPIGatewayHttpResolver(WithValidation(true))
	app.GET("/items/<id>", func(*RouteContext) (interface{}, error) {
		called = true
		return nil, nil
	}, Params(IntParam("id")))

	env := app.Resolve(testContext(), testRequest(GET, "/items/abc"))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnprocessableEntity, env.StatusCode)
	assert.Equal(t, ContentTypeJSON, env.Headers["Content-Type"])
	assert.JSONEq(t, `{
		"statusCode": 422,
		"detail": [{
			"loc": ["path", "id"],
			"type": "int_parsing",
			"msg": "Input should be a valid integer, unable to parse string as an integer"
		}]
	}`, env.Body)
}

func TestResolver_notFound(t *testing.T) {
	app := NewAPIGatewayHttpResolver()
	app.GET("/my/path", testHandler)

	env := app.Resolve(testContext(), testRequest(GET, "/other"))

	assert.Equal(t, http.StatusNotFound, env.StatusCode)
	assert.JSONEq(t, `{"statusCode":404,"message":"Not found"}`, env.Body)
}

func TestResolver_methodNotAllowed(t *testing.T) {
	app := NewAPIGatewayHttpResolver()
	app.GET("/my/path", testHandler)
	app.PUT("/my/path", testHandler)

	env := app.Resolve(testContext(), testRequest(POST, "/my/path"))

	assert.Equal(t, http.StatusMethodNotAllowed, env.StatusCode)
	assert.Equal(t, "GET, PUT", env.Headers["Allow"])
	assert.JSONEq(t, `{"statusCode":405,"message":"Method not allowed"}`, env.Body)
}

func TestResolver_middlewareOrder(t *testing.T) {
	var trace []string

	app := NewAPIGatewayHttpResolver()
	app.Use(tracing("A", &trace))

	router := NewRouter()
	router.Use(tracing("B", &trace))
	router.GET("/", func(*RouteContext) (interface{}, error) {
		trace = append(trace, "H")
		return "ok", nil
	}, Use(tracing("C", &trace)))

	app.Include(router, "/x")

	env := app.Resolve(testContext(), testRequest(GET, "/x"))

	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, []string{"A", "B", "C", "H", "C", "B", "A"}, trace)
}

func TestResolver_raisingMiddleware(t *testing.T) {
	called := false

	app := NewAPIGatewayHttpResolver()
	app.Use(func(ctx *RouteContext, next NextFunc) (Response, error) {
		return Response{}, UnauthorizedError("missing api key")
	})
	app.GET("/", func(*RouteContext) (interface{}, error) {
		called = true
		return nil, nil
	})

	env := app.Resolve(testContext(), testRequest(GET, "/"))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, env.StatusCode)
	assert.JSONEq(t, `{"statusCode":401,"message":"missing api key"}`, env.Body)
}

func TestResolver_handlerFault(t *testing.T) {
	cases := []struct {
		name    string
		debug   bool
		handler HandlerFunc
		detail  string
	}{
		{"error", false, func(*RouteContext) (interface{}, error) { return nil, errors.New("db down") }, ""},
		{"error debug", true, func(*RouteContext) (interface{}, error) { return nil, errors.New("db down") }, "db down"},
		{"panic", false, func(*RouteContext) (interface{}, error) { panic("boom") }, ""},
		{"panic debug", true, func(*RouteContext) (interface{}, error) { panic("boom") }, "panic: boom"},
		{"unmarshalable", false, func(*RouteContext) (interface{}, error) { return make(chan int), nil }, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			app := NewAPIGatewayHttpResolver(WithDebug(c.debug))
			app.GET("/", c.handler)

			env := app.Resolve(testContext(), testRequest(GET, "/"))
			assert.Equal(t, http.StatusInternalServerError, env.StatusCode)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(env.Body), &body))
			assert.Equal(t, "Internal server error", body["message"])

			if c.detail == "" {
				assert.NotContains(t, body, "detail")
			} else {
				assert.Equal(t, c.detail, body["detail"])
			}
		})
	}
}

func TestResolver_errorHandler(t *testing.T) {
	app := NewAPIGatewayHttpResolver(WithErrorHandler(func(ctx *RouteContext, err error) Response {
		return NewResponse(http.StatusBadGateway, "upstream: "+err.Error())
	}))
	app.GET("/", func(*RouteContext) (interface{}, error) { return nil, errors.New("timeout") })
	app.GET("/service", func(*RouteContext) (interface{}, error) { return nil, ForbiddenError("nope") })

	env := app.Resolve(testContext(), testRequest(GET, "/"))
	assert.Equal(t, http.StatusBadGateway, env.StatusCode)
	assert.Equal(t, "upstream: timeout", env.Body)

	env = app.Resolve(testContext(), testRequest(GET, "/service"))
	assert.Equal(t, http.StatusForbidden, env.StatusCode)
}

func TestResolver_errorHandlerPanics(t *testing.T) {
	app := NewAPIGatewayHttpResolver(WithErrorHandler(func(*RouteContext, error) Response {
		panic("worse")
	}))
	app.GET("/", func(*RouteContext) (interface{}, error) { return nil, errors.New("bad") })

	env := app.Resolve(testContext(), testRequest(GET, "/"))
	assert.Equal(t, http.StatusInternalServerError, env.StatusCode)
}

func TestResolver_notFoundHandler(t *testing.T) {
	app := NewAPIGatewayHttpResolver(WithNotFoundHandler(func(ctx *RouteContext) (interface{}, error) {
		if ctx.Event.Path() == "/fail" {
			return nil, errors.New("broken")
		}
		return NewResponse(http.StatusNotFound, "missing "+ctx.Event.Path()), nil
	}))

	env := app.Resolve(testContext(), testRequest(GET, "/nowhere"))
	assert.Equal(t, http.StatusNotFound, env.StatusCode)
	assert.Equal(t, "missing /nowhere", env.Body)

	env = app.Resolve(testContext(), testRequest(GET, "/fail"))
	assert.Equal(t, http.StatusInternalServerError, env.StatusCode)
}

func TestResolver_stripPrefixes(t *testing.T) {
	app := NewAPIGatewayHttpResolver(WithStripPrefixes("/api/", "/v1"))
	app.GET("/", bodyHandler("root"))
	app.GET("/users", bodyHandler("users"))

	cases := map[string]string{
		"/api/users": "users",
		"/v1/users":  "users",
		"/api":       "root",
		"/users":     "users",
	}

	for path, expected := range cases {
		env := app.Resolve(testContext(), testRequest(GET, path))
		assert.Equal(t, expected, env.Body, path)
	}

	env := app.Resolve(testContext(), testRequest(GET, "/apix/users"))
	assert.Equal(t, http.StatusNotFound, env.StatusCode)
}

func TestResolver_idempotentDispatch(t *testing.T) {
	app := NewAPIGatewayHttpResolver(WithValidation(true))
	app.GET("/items/<id>", func(ctx *RouteContext) (interface{}, error) {
		return map[string]interface{}{"id": ctx.PathParameters["id"]}, nil
	}, Params(IntParam("id")))

	event := testRequest(GET, "/items/7")
	first := app.Resolve(testContext(), event)
	second := app.Resolve(testContext(), event)

	assert.Equal(t, first, second)
	assert.JSONEq(t, `{"id":7}`, first.Body)
}

func TestResolver_sameRuleDifferentMethods(t *testing.T) {
	app := NewAPIGatewayHttpResolver()
	app.GET("/my/path", func(*RouteContext) (interface{}, error) { return "get", nil })
	app.POST("/my/path", func(*RouteContext) (interface{}, error) { return "post", nil })

	require.NoError(t, app.BuildErrors())

	env := app.Resolve(testContext(), testRequest(POST, "/my/path"))
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, "post", env.Body)

	env = app.Resolve(testContext(), testRequest(GET, "/my/path"))
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, "get", env.Body)
}

func TestResolver_Use_notCarriedByInclude(t *testing.T) {
	var trace []string

	inner := NewAPIGatewayHttpResolver()
	inner.Use(tracing("global", &trace))
	inner.Router.Use(tracing("router", &trace))
	inner.GET("/", testHandler)

	outer := NewAPIGatewayHttpResolver()
	outer.Include(inner.Router, "/inner")
	require.NoError(t, outer.BuildErrors())

	env := outer.Resolve(testContext(), testRequest(GET, "/inner"))
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, []string{"router", "router"}, trace)
}

func TestResolver_nilEvent(t *testing.T) {
	app := NewAPIGatewayHttpResolver()
	app.GET("/", testHandler)

	var env Envelope
	require.NotPanics(t, func() { env = app.Resolve(testContext(), nil) })

	assert.Equal(t, http.StatusBadRequest, env.StatusCode)
	assert.JSONEq(t, `{"statusCode":400,"message":"Invalid event"}`, env.Body)
	assert.Nil(t, app.CurrentEvent())
}

func TestResolver_nilTypedEvent(t *testing.T) {
	app := NewAPIGatewayHttpResolver()
	app.GET("/", testHandler)

	var event *APIGatewayProxyEventV2

	var env Envelope
	require.NotPanics(t, func() { env = app.Resolve(testContext(), event) })

	assert.Equal(t, http.StatusInternalServerError, env.StatusCode)
}

func TestResolver_frozenAfterDispatch(t *testing.T) {
	app := NewAPIGatewayHttpResolver()
	app.GET("/", testHandler)
	app.Resolve(testContext(), testRequest(GET, "/"))

	assert.Panics(t, func() { app.GET("/late", testHandler) })
}

func TestResolver_concurrentResolve(t *testing.T) {
	app := NewAPIGatewayHttpResolver(WithValidation(true))
	app.GET("/items/<id>", func(ctx *RouteContext) (interface{}, error) {
		return ctx.Param("id"), nil
	}, Params(IntParam("id")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env := app.Resolve(testContext(), testRequest(GET, "/items/5"))
			assert.Equal(t, "5", env.Body)
		}()
	}
	wg.Wait()
}

func TestResolver_Invoke_anyFamily(t *testing.T) {
	app := NewResolver(AnyFamily)
	app.GET("/lambda", bodyHandler("alb"))
	app.GET("/my/path", bodyHandler("path"))
	app.GET("/", bodyHandler("root"))

	cases := []struct {
		file     string
		expected string
	}{
		{"albEvent.json", "alb"},
		{"apiGatewayProxyEvent.json", "path"},
		{"apiGatewayProxyV2Event_GET.json", "path"},
		{"lambdaFunctionUrlEvent.json", "root"},
	}

	for _, c := range cases {
		resp := invoke(t, app, loadEvent(t, c.file))
		assert.Equal(t, c.expected, resp.Body, c.file)
	}

	_, err := app.Invoke(testContext(), []byte(`{"Records": []}`))
	assert.True(t, errors.Is(err, ErrInvalidEvent))
}

func TestResolver_Invoke_responseShape(t *testing.T) {
	alb := NewALBResolver()
	alb.GET("/lambda", func(*RouteContext) (interface{}, error) {
		return Response{StatusCode: 200, Body: "ok", Cookies: []string{"a=1"}}, nil
	})

	resp := invoke(t, alb, loadEvent(t, "albMultiValueEvent.json"))
	assert.Equal(t, "200 OK", resp.StatusDescription)
	assert.Nil(t, resp.Headers)
	assert.Equal(t, []string{"a=1"}, resp.MultiValueHeaders["Set-Cookie"])

	v2 := NewAPIGatewayHttpResolver()
	v2.POST("/my/path", func(ctx *RouteContext) (interface{}, error) {
		var in struct {
			Username string `json:"username"`
		}
		if err := ctx.DecodeJSON(&in); err != nil {
			return nil, err
		}
		return Response{StatusCode: 201, Body: in.Username, Cookies: []string{"a=1"}}, nil
	})

	resp = invoke(t, v2, loadEvent(t, "apiGatewayProxyV2Event.json"))
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "tom", resp.Body)
	assert.Equal(t, []string{"a=1"}, resp.Cookies)
}

func TestResolver_Invoke_familyMismatch(t *testing.T) {
	app := NewALBResolver()
	app.GET("/my/path", testHandler)

	_, err := app.Invoke(testContext(), loadEvent(t, "apiGatewayProxyEvent.json"))
	assert.True(t, errors.Is(err, ErrInvalidEvent))

	url := NewLambdaFunctionURLResolver()
	url.GET("/my/path", testHandler)

	resp := invoke(t, url, loadEvent(t, "apiGatewayProxyV2Event_GET.json"))
	assert.Equal(t, "routed", resp.Body)
}

func TestResolver_Invoke_buildErrors(t *testing.T) {
	app := NewAPIGatewayHttpResolver()
	app.GET("no-slash", testHandler)

	_, err := app.Invoke(testContext(), loadEvent(t, "apiGatewayProxyV2Event_GET.json"))
	assert.Error(t, err)
}

func TestResolver_Invoke_invalidPayload(t *testing.T) {
	app := NewAPIGatewayHttpResolver()

	_, err := app.Invoke(testContext(), []byte(`{"version": "2.0", "rawPath": 5}`))
	assert.True(t, errors.Is(err, ErrInvalidEvent))
}

func TestResolver_Include_familyMismatch(t *testing.T) {
	app := NewAPIGatewayRestResolver()
	app.Include(NewALBRouter(), "/")

	assert.False(t, app.Valid())
}

func TestResolver_logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	app := NewAPIGatewayHttpResolver(WithLogger(zap.New(core)))
	app.GET("/ok", testHandler)
	app.GET("/fail", func(*RouteContext) (interface{}, error) { return nil, errors.New("boom") })

	app.Resolve(testContext(), testRequest(GET, "/ok"))
	app.Resolve(testContext(), testRequest(GET, "/missing"))
	app.Resolve(testContext(), testRequest(GET, "/fail"))

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "dispatched", entries[0].Message)
	assert.Equal(t, "/ok", entries[0].ContextMap()["path"])
	assert.Equal(t, int64(200), entries[0].ContextMap()["status"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "route not found", entries[1].Message)

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "GET /fail", entries[2].ContextMap()["route"])
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestResolver_restEvent(t *testing.T) {
	app := NewAPIGatewayRestResolver()
	app.GET("/users/<id>", func(ctx *RouteContext) (interface{}, error) {
		return ctx.Param("id") + ":" + ctx.Query("q"), nil
	})

	env := app.Resolve(testContext(), NewAPIGatewayProxyEvent(events.APIGatewayProxyRequest{
		HTTPMethod:            "GET",
		Path:                  "/users/9",
		QueryStringParameters: map[string]string{"q": "x"},
	}))

	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, "9:x", env.Body)
	assert.Equal(t, ContentTypeText, env.Headers["Content-Type"])
}
