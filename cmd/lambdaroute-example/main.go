package main

import (
	"context"
	"net/http"
	"os"
	"sort"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gcottom/go-zaplog"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prognoshealth/lambdaroute/config"
	"github.com/prognoshealth/lambdaroute/proxy"
)

func main() {
	cfg := config.MustLoad(os.Getenv("LAMBDAROUTE_CONFIG"))

	level, _ := cfg.ZapLevel()
	logger, err := newLogger(level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	app := newApp(cfg, logger, newStore())
	if err := app.BuildErrors(); err != nil {
		logger.Fatal("invalid routes", zap.Error(err))
	}

	ctx := zaplog.CreateAndInject(context.Background())
	zaplog.InfoC(ctx, "starting lambda", zap.Int("routes", len(app.Routes())))

	lambda.Start(app)
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// newApp builds the resolver. It accepts every trigger family so the same
// function can sit behind an ALB, API Gateway or a Function URL.
func newApp(cfg *config.Config, logger *zap.Logger, items *store) *proxy.Resolver {
	app := proxy.NewResolver(proxy.AnyFamily,
		proxy.WithLogger(logger),
		proxy.WithDebug(cfg.Debug),
		proxy.WithValidation(cfg.Validation),
		proxy.WithStripPrefixes(cfg.StripPrefixes...),
	)

	app.Use(requestLogger)

	app.GET("/health", func(*proxy.RouteContext) (interface{}, error) {
		return "ok", nil
	})

	api := proxy.NewRouter()

	var create []proxy.RouteOption
	if lock := cfg.RequestLock(); lock != nil {
		create = append(create, proxy.Use(proxy.Idempotent(lock)))
	}

	api.GET("/", items.list)
	api.POST("/", items.create, create...)
	api.GET("/<id>", items.get, proxy.Params(proxy.UUIDParam("id")))
	api.DELETE("/<id>", items.delete, proxy.Params(proxy.UUIDParam("id")))

	app.Include(api, "/items")

	return app
}

// requestLogger injects a zaplog logger into the request context.
func requestLogger(ctx *proxy.RouteContext, next proxy.NextFunc) (proxy.Response, error) {
	ctx.Context = zaplog.CreateAndInject(ctx.Context)
	zaplog.InfoC(ctx.Context, "request received",
		zap.String("method", ctx.Event.Method().String()),
		zap.String("path", ctx.Event.Path()),
	)

	resp, err := next(ctx)
	if err != nil {
		zaplog.ErrorC(ctx.Context, "request failed", zap.Error(err))
	}

	return resp, err
}

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type store struct {
	mu    sync.Mutex
	items map[string]item
}

func newStore() *store {
	return &store{items: map[string]item{}}
}

func (s *store) list(*proxy.RouteContext) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]item, 0, len(s.items))
	for _, i := range s.items {
		list = append(list, i)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Name < list[b].Name })

	return list, nil
}

func (s *store) create(ctx *proxy.RouteContext) (interface{}, error) {
	var in item
	if err := ctx.DecodeJSON(&in); err != nil {
		return nil, err
	}

	if in.Name == "" {
		return nil, proxy.BadRequestError("name is required")
	}

	in.ID = uuid.NewString()

	s.mu.Lock()
	s.items[in.ID] = in
	s.mu.Unlock()

	return proxy.JSONResponse(http.StatusCreated, in)
}

func (s *store) get(ctx *proxy.RouteContext) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.items[ctx.Param("id")]
	if !ok {
		return nil, proxy.NotFoundError("item not found")
	}

	return i, nil
}

func (s *store) delete(ctx *proxy.RouteContext) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, ctx.Param("id"))
	return nil, nil
}
