package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/prognoshealth/lambdaroute/lambdautils"
)

var _ lambda.Handler = (*Resolver)(nil)

// ErrorHandler builds the response for an error that is not a ServiceError
// and was not handled by a middleware.
type ErrorHandler func(ctx *RouteContext, err error) Response

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for dispatch logging. Defaults to a no-op
// logger.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithValidation enables typed binding and validation of declared path
// parameters.
func WithValidation(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.validation = enabled
	}
}

// WithValidator replaces the default go-playground based Validator.
func WithValidator(v Validator) ResolverOption {
	return func(r *Resolver) {
		r.validator = v
	}
}

// WithDebug includes error details in 500 responses.
func WithDebug(debug bool) ResolverOption {
	return func(r *Resolver) {
		r.debug = debug
	}
}

// WithStripPrefixes removes the first matching base path from the request
// path before route matching.
func WithStripPrefixes(prefixes ...string) ResolverOption {
	return func(r *Resolver) {
		r.stripPrefixes = append(r.stripPrefixes, prefixes...)
	}
}

// WithNotFoundHandler replaces the default 404 response.
func WithNotFoundHandler(handler HandlerFunc) ResolverOption {
	return func(r *Resolver) {
		r.notFound = handler
	}
}

// WithErrorHandler replaces the default 500 response.
func WithErrorHandler(handler ErrorHandler) ResolverOption {
	return func(r *Resolver) {
		r.onError = handler
	}
}

// Resolver dispatches Lambda HTTP events to the routes registered on it and
// produces exactly one response per event. It implements lambda.Handler so
// it can be passed directly to lambda.Start.
type Resolver struct {
	*Router

	global        []Middleware
	logger        *zap.Logger
	validation    bool
	validator     Validator
	debug         bool
	stripPrefixes []string
	notFound      HandlerFunc
	onError       ErrorHandler
}

// NewResolver returns a Resolver for family. AnyFamily resolvers detect the
// family of each payload passed to Invoke.
func NewResolver(family Family, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		Router:    newRouter(family),
		logger:    zap.NewNop(),
		validator: NewValidator(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewALBResolver returns a Resolver for Application Load Balancer events.
func NewALBResolver(opts ...ResolverOption) *Resolver {
	return NewResolver(FamilyALB, opts...)
}

// NewAPIGatewayRestResolver returns a Resolver for API Gateway REST events.
func NewAPIGatewayRestResolver(opts ...ResolverOption) *Resolver {
	return NewResolver(FamilyAPIGatewayREST, opts...)
}

// NewAPIGatewayHttpResolver returns a Resolver for API Gateway HTTP API
// events.
func NewAPIGatewayHttpResolver(opts ...ResolverOption) *Resolver {
	return NewResolver(FamilyAPIGatewayHTTP, opts...)
}

// NewLambdaFunctionURLResolver returns a Resolver for Lambda Function URL
// events.
func NewLambdaFunctionURLResolver(opts ...ResolverOption) *Resolver {
	return NewResolver(FamilyFunctionURL, opts...)
}

// Use appends middlewares that run ahead of every route, outermost first.
// They belong to the Resolver, not its embedded Router: including
// r.Router into another router carries the routes and Router.Use
// middlewares but not these.
func (r *Resolver) Use(middlewares ...Middleware) {
	r.global = append(r.global, middlewares...)
}

// Invoke decodes payload, resolves it and encodes the trigger's response
// type. It fails without dispatching while the resolver has build errors.
//
// Once an event is decoded every failure is returned as an error response.
// A payload that can not be detected or decoded, or whose family the
// resolver does not serve, never reaches dispatch and is returned as an
// error to the Lambda runtime.
func (r *Resolver) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	if err := r.BuildErrors(); err != nil {
		return nil, err
	}

	family, err := Detect(payload)
	if err != nil {
		if r.family == AnyFamily {
			return nil, err
		}
		family = r.family
	}

	if r.family != AnyFamily {
		if !compatible(r.family, family) {
			return nil, errors.Wrapf(ErrInvalidEvent, "expected %s event, received %s", r.family, family)
		}
		family = r.family
	}

	event, err := DecodeEvent(family, payload)
	if err != nil {
		r.logger.Error("failed decoding event", zap.String("family", family.String()), zap.Error(err))
		return nil, err
	}

	env := r.Resolve(ctx, event)

	b, err := json.Marshal(event.encode(env))
	if err != nil {
		return nil, errors.Wrapf(err, "failed encoding %s response", family)
	}

	return b, nil
}

// Resolve dispatches event to its route and returns the response. Every
// failure along the way becomes an error response.
func (r *Resolver) Resolve(ctx context.Context, event EventView) (env Envelope) {
	log := r.logger

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("recovered while building response", zap.Any("panic", rec))
			env = errorResponse(http.StatusInternalServerError, "Internal server error").envelope()
		}
	}()

	if event == nil {
		log.Warn("invalid event")
		return errorResponse(http.StatusBadRequest, "Invalid event").envelope()
	}

	r.frozen.Store(true)
	r.setCurrentEvent(event)

	meta := lambdautils.GetLambdaMetaData(ctx)
	path := r.stripPrefix(event.Path())

	log = r.logger.With(
		zap.String("family", event.Family().String()),
		zap.String("method", event.Method().String()),
		zap.String("path", path),
		zap.String("requestId", event.RequestID()),
	).With(meta.Fields()...)

	rctx := &RouteContext{
		Context:        ctx,
		Event:          event,
		PathParameters: map[string]interface{}{},
		Lambda:         meta,
	}

	route, raw, err := r.table.Find(event.Method(), path)
	if err != nil {
		return r.handleError(rctx, err, log).envelope()
	}

	rctx.Route = route
	log = log.With(zap.String("route", route.String()))

	params, err := bindParams(route.Params, raw, r.validation, r.validator)
	if err != nil {
		return r.handleError(rctx, err, log).envelope()
	}
	rctx.PathParameters = params

	middlewares := make([]Middleware, 0, len(r.global)+len(route.Middlewares))
	middlewares = append(middlewares, r.global...)
	middlewares = append(middlewares, route.Middlewares...)

	resp, err := r.run(rctx, chain(middlewares, route.Handler))
	if err != nil {
		return r.handleError(rctx, err, log).envelope()
	}

	env = resp.envelope()
	log.Debug("dispatched", zap.Int("status", env.StatusCode))

	return env
}

// CurrentEvent returns the event most recently dispatched by the resolver.
func (r *Resolver) CurrentEvent() EventView {
	return r.Router.CurrentEvent()
}

// run calls next and converts a panic into an error.
func (r *Resolver) run(rctx *RouteContext, next NextFunc) (resp Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.WithStack(&panicError{value: rec})
		}
	}()

	return next(rctx)
}

func (r *Resolver) handleError(rctx *RouteContext, err error, log *zap.Logger) Response {
	var (
		notAllowed *MethodNotAllowedError
		invalid    *ValidationError
	)

	switch {
	case errors.Is(err, ErrRouteNotFound):
		log.Warn("route not found")
		if r.notFound == nil {
			return errorResponse(http.StatusNotFound, "Not found")
		}

		resp, herr := r.run(rctx, chain(nil, r.notFound))
		if herr != nil {
			return r.failure(rctx, herr, log)
		}
		return resp

	case errors.As(err, &notAllowed):
		log.Warn("method not allowed", zap.String("allow", notAllowed.allow()))
		resp := errorResponse(http.StatusMethodNotAllowed, "Method not allowed")
		resp.Headers = map[string]string{"Allow": notAllowed.allow()}
		return resp

	case errors.As(err, &invalid):
		log.Warn("invalid path parameters", zap.Error(err))
		return validationResponse(invalid)
	}

	return r.failure(rctx, err, log)
}

// failure maps ServiceErrors to their status and everything else to a 500.
func (r *Resolver) failure(rctx *RouteContext, err error, log *zap.Logger) Response {
	var serr *ServiceError
	if errors.As(err, &serr) {
		if serr.StatusCode >= http.StatusInternalServerError {
			log.Error("service error", zap.Int("status", serr.StatusCode), zap.Error(err))
		} else {
			log.Warn("service error", zap.Int("status", serr.StatusCode), zap.String("message", serr.Message))
		}
		return errorResponse(serr.StatusCode, serr.Message)
	}

	log.Error("request failed", zap.Error(err))

	if r.onError != nil {
		if resp, ok := r.customError(rctx, err, log); ok {
			return resp
		}
	}

	resp := errorResponse(http.StatusInternalServerError, "Internal server error")
	if r.debug {
		resp.Body, _ = sjson.Set(resp.Body, "detail", err.Error())
	}

	return resp
}

func (r *Resolver) customError(rctx *RouteContext, err error, log *zap.Logger) (resp Response, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("error handler panicked", zap.Any("panic", rec))
			ok = false
		}
	}()

	return r.onError(rctx, err), true
}

func (r *Resolver) stripPrefix(path string) string {
	for _, prefix := range r.stripPrefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}

		if path == prefix {
			return "/"
		}

		if strings.HasPrefix(path, prefix+"/") {
			return path[len(prefix):]
		}
	}

	return path
}
