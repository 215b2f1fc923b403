package proxy

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrRouteNotFound is returned by a RouteTable when no route matches the
	// requested path.
	ErrRouteNotFound = errors.New("route not found")

	// ErrDuplicateRoute is recorded as a build error when a rule and method
	// pair is registered twice.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrNextCalledTwice is returned when a middleware invokes its
	// continuation more than once.
	ErrNextCalledTwice = errors.New("middleware called next more than once")

	// ErrInvalidEvent is returned by Invoke when the payload can not be
	// decoded into the resolver's event family.
	ErrInvalidEvent = errors.New("invalid event")
)

// MethodNotAllowedError is returned when the path matches a route but none of
// the matching routes accepts the request method.
type MethodNotAllowedError struct {
	Method  HttpMethod
	Path    string
	Allowed []HttpMethod
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("'%s %s' method not allowed, allowed: %s", e.Method, e.Path, e.allow())
}

func (e *MethodNotAllowedError) allow() string {
	names := make([]string, len(e.Allowed))
	for i, m := range e.Allowed {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}

// FieldError describes a single path parameter that failed binding.
type FieldError struct {
	Location string
	Name     string
	Type     string
	Message  string
}

// ValidationError carries every field that failed binding or validation for
// a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = fmt.Sprintf("%s.%s: %s", f.Location, f.Name, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ServiceError lets handlers and middlewares respond with a specific status
// code and message by returning it as an error.
type ServiceError struct {
	StatusCode int
	Message    string
}

// NewServiceError returns a ServiceError for status and msg.
func NewServiceError(status int, msg string) *ServiceError {
	return &ServiceError{StatusCode: status, Message: msg}
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// BadRequestError returns a 400 ServiceError.
func BadRequestError(msg string) *ServiceError {
	return NewServiceError(http.StatusBadRequest, msg)
}

// UnauthorizedError returns a 401 ServiceError.
func UnauthorizedError(msg string) *ServiceError {
	return NewServiceError(http.StatusUnauthorized, msg)
}

// ForbiddenError returns a 403 ServiceError.
func ForbiddenError(msg string) *ServiceError {
	return NewServiceError(http.StatusForbidden, msg)
}

// NotFoundError returns a 404 ServiceError.
func NotFoundError(msg string) *ServiceError {
	return NewServiceError(http.StatusNotFound, msg)
}

// InternalServerError returns a 500 ServiceError.
func InternalServerError(msg string) *ServiceError {
	return NewServiceError(http.StatusInternalServerError, msg)
}

// panicError wraps a value recovered from a panicking handler or middleware.
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
