package proxy

// NextFunc is the continuation handed to a middleware: the rest of the chain,
// ending with the route handler.
type NextFunc func(*RouteContext) (Response, error)

// Middleware intercepts a request. It may call next and return its result,
// post-process the Response next returns, or skip next and return its own
// Response. Returning an error unwinds the chain and becomes an error
// response unless an outer middleware handles it. next must be called at most
// once; a second call returns ErrNextCalledTwice.
//
// Example:
//
//	func requireAPIKey(ctx *proxy.RouteContext, next proxy.NextFunc) (proxy.Response, error) {
//		if ctx.Header("x-api-key") == "" {
//			return proxy.Response{}, proxy.UnauthorizedError("missing api key")
//		}
//		return next(ctx)
//	}
type Middleware func(ctx *RouteContext, next NextFunc) (Response, error)

// chain builds the call tree for one dispatch. The first middleware runs
// outermost and the handler innermost.
func chain(middlewares []Middleware, handler HandlerFunc) NextFunc {
	next := func(ctx *RouteContext) (Response, error) {
		result, err := handler(ctx)
		if err != nil {
			return Response{}, err
		}
		return toResponse(result)
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		next = wrap(middlewares[i], next)
	}

	return next
}

func wrap(mw Middleware, next NextFunc) NextFunc {
	return func(ctx *RouteContext) (Response, error) {
		called := false
		once := func(c *RouteContext) (Response, error) {
			if called {
				return Response{}, ErrNextCalledTwice
			}
			called = true
			return next(c)
		}

		return mw(ctx, once)
	}
}
