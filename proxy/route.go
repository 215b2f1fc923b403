package proxy

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/prognoshealth/lambdaroute/pattern"
)

// HandlerFunc defines the function interface the route uses to execute a
// request when the route is matched. The result is normalized into a
// Response: Response and *Response are used as is, strings become text/plain,
// []byte becomes a base64 encoded binary body, nil becomes 204 and anything
// else is marshalled to json.
type HandlerFunc func(*RouteContext) (interface{}, error)

// Route defines the HttpMethods and Pattern that are used in combination for
// matching against an incoming request. When a match occurs the configured
// handler is called through the route's middlewares.
type Route struct {
	Rule        string
	Pattern     *pattern.Pattern
	Methods     []HttpMethod
	Handler     HandlerFunc
	Middlewares []Middleware
	Params      []ParamSpec
}

// RouteOption configures a Route at registration.
type RouteOption func(*Route)

// Use appends middlewares to the route. They run after resolver and router
// middlewares, in the order given.
func Use(middlewares ...Middleware) RouteOption {
	return func(route *Route) {
		route.Middlewares = append(route.Middlewares, middlewares...)
	}
}

// Params declares typed path parameters for the route.
func Params(specs ...ParamSpec) RouteOption {
	return func(route *Route) {
		route.Params = append(route.Params, specs...)
	}
}

// NewRoute returns a Route for the specified rule, methods and handler.
func NewRoute(rule string, methods []HttpMethod, handler HandlerFunc, opts ...RouteOption) (*Route, error) {
	p, err := pattern.Compile(rule)
	if err != nil {
		return nil, errors.Wrapf(err, "failed compiling route '%s'", rule)
	}

	if len(methods) == 0 {
		return nil, errors.Errorf("route '%s' has no methods", rule)
	}

	if handler == nil {
		return nil, errors.Errorf("route '%s' has no handler", rule)
	}

	route := &Route{
		Rule:    p.String(),
		Pattern: p,
		Handler: handler,
	}

	seen := map[HttpMethod]bool{}
	for _, m := range methods {
		m = ParseHttpMethod(m.String())
		if !seen[m] {
			seen[m] = true
			route.Methods = append(route.Methods, m)
		}
	}

	for _, opt := range opts {
		opt(route)
	}

	names := map[string]bool{}
	for _, name := range p.Names() {
		names[name] = true
	}

	for _, spec := range route.Params {
		if !names[spec.Name] {
			return nil, errors.Errorf("route '%s' declares parameter '%s' that is not in the rule", rule, spec.Name)
		}
	}

	return route, nil
}

// String returns a string representation of this route.
func (route *Route) String() string {
	methods := make([]string, len(route.Methods))
	for i, m := range route.Methods {
		methods[i] = m.String()
	}
	return fmt.Sprintf("%s %s", strings.Join(methods, ","), route.Rule)
}

// Allows returns true if the route accepts method.
func (route *Route) Allows(method HttpMethod) bool {
	for _, m := range route.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// withPrefix returns a copy of the route with prefix prepended to its rule and
// middlewares placed ahead of the route's own.
func (route *Route) withPrefix(prefix string, middlewares []Middleware) (*Route, error) {
	rule := route.Rule
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix != "" {
		if rule == "/" {
			rule = prefix
		} else {
			rule = prefix + rule
		}
	}

	p, err := pattern.Compile(rule)
	if err != nil {
		return nil, errors.Wrapf(err, "failed compiling route '%s'", rule)
	}

	mws := make([]Middleware, 0, len(middlewares)+len(route.Middlewares))
	mws = append(mws, middlewares...)
	mws = append(mws, route.Middlewares...)

	return &Route{
		Rule:        p.String(),
		Pattern:     p,
		Methods:     append([]HttpMethod(nil), route.Methods...),
		Handler:     route.Handler,
		Middlewares: mws,
		Params:      append([]ParamSpec(nil), route.Params...),
	}, nil
}
