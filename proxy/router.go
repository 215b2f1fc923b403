package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Router groups routes so they can be registered separately and merged into
// a Resolver with Include.
//
// A Router keeps a reference to the event currently being dispatched through
// it. The resolver updates it on every dispatch so handlers that closed over
// the Router can inspect the in-flight event. It is a convenience for a single
// invocation, not a channel between concurrent invocations.
//
// Example:
//
//	users := proxy.NewAPIGatewayRouter()
//	users.GET("/<id>", getUser, proxy.Params(proxy.IntParam("id")))
//
//	app := proxy.NewAPIGatewayRestResolver()
//	app.Include(users, "/users")
//
//	lambda.Start(app)
type Router struct {
	family      Family
	table       *RouteTable
	middlewares []Middleware
	included    []*Router
	errors      []error
	frozen      atomic.Bool

	mu           sync.Mutex
	currentEvent EventView
}

// NewRouter returns a Router that can be included into any resolver.
func NewRouter() *Router {
	return newRouter(AnyFamily)
}

// NewALBRouter returns a Router for Application Load Balancer events.
func NewALBRouter() *Router {
	return newRouter(FamilyALB)
}

// NewAPIGatewayRouter returns a Router for API Gateway REST events.
func NewAPIGatewayRouter() *Router {
	return newRouter(FamilyAPIGatewayREST)
}

// NewAPIGatewayHttpRouter returns a Router for API Gateway HTTP API events.
func NewAPIGatewayHttpRouter() *Router {
	return newRouter(FamilyAPIGatewayHTTP)
}

// NewLambdaFunctionURLRouter returns a Router for Lambda Function URL events.
func NewLambdaFunctionURLRouter() *Router {
	return newRouter(FamilyFunctionURL)
}

func newRouter(family Family) *Router {
	return &Router{family: family, table: NewRouteTable()}
}

// Family returns the event family the router accepts.
func (router *Router) Family() Family {
	return router.family
}

// Routes returns the registered routes in registration order.
func (router *Router) Routes() []*Route {
	return router.table.Routes()
}

// Valid returns true if the routers' routes have all been built successfully.
// Otherwise false.
func (router *Router) Valid() bool {
	return len(router.errors) == 0
}

// AddRoute inserts route into the router's table. Rule and method pairs that
// are already registered are recorded as build errors.
//
// AddRoute panics once the router has started dispatching.
func (router *Router) AddRoute(route *Route) {
	if router.frozen.Load() {
		panic("proxy: route " + route.String() + " registered after dispatch started")
	}

	if err := router.table.Insert(route); err != nil {
		router.AddBuildError(err)
	}
}

// AddBuildError appends an error to the list of router errors.
func (router *Router) AddBuildError(err error) {
	router.errors = append(router.errors, err)
}

// BuildErrors returns a single error that encapsulates all the route errors
// found during router construction, or nil when there are none.
func (router *Router) BuildErrors() error {
	if router.Valid() {
		return nil
	}

	topError := errors.New("failed building router")

	for _, err := range router.errors {
		topError = errors.Wrap(topError, err.Error())
	}

	return topError
}

// AddRouteIfNoError appends the provided route if no error is present.
// Otherwise it adds the error to the build errors.
//
// This method is provided to simplify router construction with many routes by
// reducing error checking boilerplate.
func (router *Router) AddRouteIfNoError(route *Route, err error) {
	if err != nil {
		router.AddBuildError(err)
	} else {
		router.AddRoute(route)
	}
}

// Route registers handler for rule and methods and returns the new route, or
// nil when it could not be built. Failures are available via BuildErrors.
func (router *Router) Route(rule string, methods []HttpMethod, handler HandlerFunc, opts ...RouteOption) *Route {
	route, err := NewRoute(rule, methods, handler, opts...)
	router.AddRouteIfNoError(route, err)
	if err != nil {
		return nil
	}
	return route
}

// GET adds a new GET route with the specified rule and handler.
func (router *Router) GET(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{GET}, handler, opts...)
}

// HEAD adds a new HEAD route with the specified rule and handler.
func (router *Router) HEAD(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{HEAD}, handler, opts...)
}

// POST adds a new POST route with the specified rule and handler.
func (router *Router) POST(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{POST}, handler, opts...)
}

// PUT adds a new PUT route with the specified rule and handler.
func (router *Router) PUT(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{PUT}, handler, opts...)
}

// DELETE adds a new DELETE route with the specified rule and handler.
func (router *Router) DELETE(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{DELETE}, handler, opts...)
}

// CONNECT adds a new CONNECT route with the specified rule and handler.
func (router *Router) CONNECT(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{CONNECT}, handler, opts...)
}

// OPTIONS adds a new OPTIONS route with the specified rule and handler.
func (router *Router) OPTIONS(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{OPTIONS}, handler, opts...)
}

// TRACE adds a new TRACE route with the specified rule and handler.
func (router *Router) TRACE(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{TRACE}, handler, opts...)
}

// PATCH adds a new PATCH route with the specified rule and handler.
func (router *Router) PATCH(rule string, handler HandlerFunc, opts ...RouteOption) *Route {
	return router.Route(rule, []HttpMethod{PATCH}, handler, opts...)
}

// Use appends middlewares that are applied to every route of this router when
// it is included into another router or resolver. Call it before Include.
func (router *Router) Use(middlewares ...Middleware) {
	router.middlewares = append(router.middlewares, middlewares...)
}

// Include copies every route of sub into router, prepending prefix to the
// rules and sub's middlewares to the route middlewares. sub keeps working
// independently; routes added to it afterwards are not copied.
func (router *Router) Include(sub *Router, prefix string) {
	if sub == router {
		router.AddBuildError(errors.New("a router can not include itself"))
		return
	}

	if !router.family.accepts(sub.family) {
		router.AddBuildError(errors.Errorf("can not include %s router into %s router", sub.family, router.family))
		return
	}

	router.errors = append(router.errors, sub.errors...)

	for _, route := range sub.table.Routes() {
		router.AddRouteIfNoError(route.withPrefix(prefix, sub.middlewares))
	}

	router.included = append(router.included, sub)
}

// CurrentEvent returns the event most recently dispatched through the router.
func (router *Router) CurrentEvent() EventView {
	router.mu.Lock()
	defer router.mu.Unlock()
	return router.currentEvent
}

// setCurrentEvent updates router and every router included into it.
func (router *Router) setCurrentEvent(event EventView) {
	router.mu.Lock()
	router.currentEvent = event
	included := router.included
	router.mu.Unlock()

	for _, sub := range included {
		sub.setCurrentEvent(event)
	}
}
