package proxy

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/prognoshealth/lambdaroute/lambdautils"
)

// IdempotencyKeyHeader is the request header read by Idempotent.
const IdempotencyKeyHeader = "Idempotency-Key"

// Locker reports whether a key is free to be processed and claims it when it
// is. Release frees a claimed key. lambdautils.RequestLock satisfies it.
type Locker interface {
	Available(key string) (bool, error)
	Release(key string) error
}

var _ Locker = (*lambdautils.RequestLock)(nil)

// Idempotent returns a Middleware that rejects a request whose
// Idempotency-Key header was already seen with a 409. Requests without the
// header pass through. The key is scoped to the matched route.
//
// A claimed key is released when the rest of the chain fails with an error, a
// panic or a 5xx response.
func Idempotent(lock Locker) Middleware {
	return func(ctx *RouteContext, next NextFunc) (resp Response, err error) {
		key := ctx.Header(IdempotencyKeyHeader)
		if key == "" {
			return next(ctx)
		}

		scope := key
		if ctx.Route != nil {
			scope = ctx.Route.String() + " " + key
		}

		available, err := lock.Available(scope)
		if err != nil {
			return Response{}, errors.Wrapf(err, "failed checking idempotency key '%s'", key)
		}

		if !available {
			return Response{}, NewServiceError(http.StatusConflict, "Request already processed")
		}

		completed := false
		defer func() {
			if !completed {
				_ = lock.Release(scope)
			}
		}()

		resp, err = next(ctx)
		completed = true

		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}

		if rerr := lock.Release(scope); rerr != nil && err == nil {
			err = errors.Wrapf(rerr, "failed releasing idempotency key '%s'", key)
		}

		return resp, err
	}
}
