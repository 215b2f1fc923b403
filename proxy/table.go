package proxy

import (
	"github.com/pkg/errors"
)

// RouteTable stores routes for lookup by method and path.
//
// Static routes are indexed by their exact path. Dynamic routes are checked
// in the order they were inserted and the first match wins, so when two
// patterns overlap the one registered first handles the request.
//
// A RouteTable is not safe for concurrent modification. Lookups may run
// concurrently once all routes have been inserted.
type RouteTable struct {
	routes  []*Route
	static  map[string][]*Route
	dynamic []*Route
}

// NewRouteTable returns an empty RouteTable.
func NewRouteTable() *RouteTable {
	return &RouteTable{static: map[string][]*Route{}}
}

// Routes returns every route in insertion order.
func (t *RouteTable) Routes() []*Route {
	return append([]*Route(nil), t.routes...)
}

// Len returns the number of routes in the table.
func (t *RouteTable) Len() int {
	return len(t.routes)
}

// Insert adds route to the table. Registering a rule and method pair that is
// already present is rejected with ErrDuplicateRoute.
func (t *RouteTable) Insert(route *Route) error {
	for _, existing := range t.routes {
		if existing.Rule != route.Rule {
			continue
		}

		for _, m := range route.Methods {
			if existing.Allows(m) {
				return errors.Wrapf(ErrDuplicateRoute, "'%s %s' already registered", m, route.Rule)
			}
		}
	}

	t.routes = append(t.routes, route)

	if route.Pattern.IsStatic() {
		t.static[route.Rule] = append(t.static[route.Rule], route)
	} else {
		t.dynamic = append(t.dynamic, route)
	}

	return nil
}

// Find returns the route for method and path along with the raw placeholder
// captures. When the path matches but no matching route accepts method a
// *MethodNotAllowedError is returned, otherwise ErrRouteNotFound.
func (t *RouteTable) Find(method HttpMethod, path string) (*Route, map[string]string, error) {
	path = normalizePath(path)

	var allowed []HttpMethod

	for _, route := range t.static[path] {
		if route.Allows(method) {
			return route, map[string]string{}, nil
		}
		allowed = appendMethods(allowed, route.Methods)
	}

	for _, route := range t.dynamic {
		params, ok := route.Pattern.Match(path)
		if !ok {
			continue
		}

		if route.Allows(method) {
			return route, params, nil
		}
		allowed = appendMethods(allowed, route.Methods)
	}

	if len(allowed) > 0 {
		return nil, nil, &MethodNotAllowedError{Method: method, Path: path, Allowed: allowed}
	}

	return nil, nil, errors.Wrapf(ErrRouteNotFound, "'%s %s' not found", method, path)
}

func appendMethods(dst []HttpMethod, methods []HttpMethod) []HttpMethod {
	for _, m := range methods {
		found := false
		for _, d := range dst {
			if d == m {
				found = true
				break
			}
		}

		if !found {
			dst = append(dst, m)
		}
	}
	return dst
}
