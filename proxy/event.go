package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"

	"github.com/prognoshealth/lambdaroute/pattern"
)

// Family identifies the Lambda trigger that produced an event.
type Family int

const (
	// AnyFamily is used by routers and resolvers that accept every family.
	AnyFamily Family = iota
	FamilyALB
	FamilyAPIGatewayREST
	FamilyAPIGatewayHTTP
	FamilyFunctionURL
)

func (f Family) String() string {
	switch f {
	case FamilyALB:
		return "alb"
	case FamilyAPIGatewayREST:
		return "apigateway-rest"
	case FamilyAPIGatewayHTTP:
		return "apigateway-http"
	case FamilyFunctionURL:
		return "function-url"
	default:
		return "any"
	}
}

// accepts reports whether an event or router of family other can be used
// where f is expected.
func (f Family) accepts(other Family) bool {
	return f == AnyFamily || other == AnyFamily || f == other
}

// EventView is the trigger specific view of the event being dispatched. The
// set of implementations is closed: ALBEvent, APIGatewayProxyEvent,
// APIGatewayProxyEventV2 and LambdaFunctionURLEvent.
type EventView interface {
	Family() Family
	Method() HttpMethod
	Path() string
	Headers() map[string]string
	Header(name string) string
	QueryStringParameters() map[string]string
	RawBody() string
	IsBase64Encoded() bool
	RequestID() string

	// Raw returns the underlying aws-lambda-go request value.
	Raw() interface{}

	encode(env Envelope) interface{}
}

// ALBEvent wraps an Application Load Balancer target group request.
type ALBEvent struct {
	Request events.ALBTargetGroupRequest
}

// NewALBEvent returns the view for request.
func NewALBEvent(request events.ALBTargetGroupRequest) *ALBEvent {
	return &ALBEvent{Request: request}
}

func (e *ALBEvent) Family() Family     { return FamilyALB }
func (e *ALBEvent) Method() HttpMethod { return ParseHttpMethod(e.Request.HTTPMethod) }
func (e *ALBEvent) Path() string       { return normalizePath(e.Request.Path) }
func (e *ALBEvent) RawBody() string    { return e.Request.Body }
func (e *ALBEvent) Raw() interface{}   { return e.Request }

func (e *ALBEvent) IsBase64Encoded() bool {
	return e.Request.IsBase64Encoded
}

// Headers returns the single value headers, falling back to the last value of
// each multi value header when the target group has multi value headers
// enabled.
func (e *ALBEvent) Headers() map[string]string {
	if len(e.Request.Headers) > 0 || len(e.Request.MultiValueHeaders) == 0 {
		return e.Request.Headers
	}
	return flatten(e.Request.MultiValueHeaders)
}

func (e *ALBEvent) Header(name string) string {
	return headerValue(e.Headers(), name)
}

func (e *ALBEvent) QueryStringParameters() map[string]string {
	if len(e.Request.QueryStringParameters) > 0 || len(e.Request.MultiValueQueryStringParameters) == 0 {
		return e.Request.QueryStringParameters
	}
	return flatten(e.Request.MultiValueQueryStringParameters)
}

// RequestID returns the load balancer trace id; ALB events carry no request id.
func (e *ALBEvent) RequestID() string {
	return e.Header("X-Amzn-Trace-Id")
}

func (e *ALBEvent) encode(env Envelope) interface{} {
	response := events.ALBTargetGroupResponse{
		StatusCode:        env.StatusCode,
		StatusDescription: fmt.Sprintf("%d %s", env.StatusCode, http.StatusText(env.StatusCode)),
		Body:              env.Body,
		IsBase64Encoded:   env.IsBase64Encoded,
	}

	if len(e.Request.MultiValueHeaders) > 0 {
		response.MultiValueHeaders = env.multiValueHeaders()
		return response
	}

	response.Headers = env.Headers
	if len(env.Cookies) > 0 {
		response.Headers = copyHeaders(env.Headers)
		response.Headers["Set-Cookie"] = env.Cookies[len(env.Cookies)-1]
	}

	return response
}

// APIGatewayProxyEvent wraps an API Gateway REST (v1 payload) request.
type APIGatewayProxyEvent struct {
	Request events.APIGatewayProxyRequest
}

// NewAPIGatewayProxyEvent returns the view for request.
func NewAPIGatewayProxyEvent(request events.APIGatewayProxyRequest) *APIGatewayProxyEvent {
	return &APIGatewayProxyEvent{Request: request}
}

func (e *APIGatewayProxyEvent) Family() Family     { return FamilyAPIGatewayREST }
func (e *APIGatewayProxyEvent) Method() HttpMethod { return ParseHttpMethod(e.Request.HTTPMethod) }
func (e *APIGatewayProxyEvent) Path() string       { return normalizePath(e.Request.Path) }
func (e *APIGatewayProxyEvent) RawBody() string    { return e.Request.Body }
func (e *APIGatewayProxyEvent) RequestID() string  { return e.Request.RequestContext.RequestID }
func (e *APIGatewayProxyEvent) Raw() interface{}   { return e.Request }

func (e *APIGatewayProxyEvent) IsBase64Encoded() bool {
	return e.Request.IsBase64Encoded
}

func (e *APIGatewayProxyEvent) Headers() map[string]string {
	if len(e.Request.Headers) > 0 || len(e.Request.MultiValueHeaders) == 0 {
		return e.Request.Headers
	}
	return flatten(e.Request.MultiValueHeaders)
}

func (e *APIGatewayProxyEvent) Header(name string) string {
	return headerValue(e.Headers(), name)
}

func (e *APIGatewayProxyEvent) QueryStringParameters() map[string]string {
	return e.Request.QueryStringParameters
}

func (e *APIGatewayProxyEvent) encode(env Envelope) interface{} {
	response := events.APIGatewayProxyResponse{
		StatusCode:      env.StatusCode,
		Headers:         env.Headers,
		Body:            env.Body,
		IsBase64Encoded: env.IsBase64Encoded,
	}

	if len(env.Cookies) > 0 {
		response.MultiValueHeaders = map[string][]string{"Set-Cookie": env.Cookies}
	}

	return response
}

// APIGatewayProxyEventV2 wraps an API Gateway HTTP API (v2 payload) request.
type APIGatewayProxyEventV2 struct {
	Request events.APIGatewayV2HTTPRequest
}

// NewAPIGatewayProxyEventV2 returns the view for request.
func NewAPIGatewayProxyEventV2(request events.APIGatewayV2HTTPRequest) *APIGatewayProxyEventV2 {
	return &APIGatewayProxyEventV2{Request: request}
}

func (e *APIGatewayProxyEventV2) Family() Family    { return FamilyAPIGatewayHTTP }
func (e *APIGatewayProxyEventV2) RawBody() string   { return e.Request.Body }
func (e *APIGatewayProxyEventV2) RequestID() string { return e.Request.RequestContext.RequestID }
func (e *APIGatewayProxyEventV2) Raw() interface{}  { return e.Request }

func (e *APIGatewayProxyEventV2) Method() HttpMethod {
	return ParseHttpMethod(e.Request.RequestContext.HTTP.Method)
}

// Path returns the raw path with a named stage prefix removed. The $default
// stage is not part of the path.
func (e *APIGatewayProxyEventV2) Path() string {
	path := e.Request.RawPath
	stage := e.Request.RequestContext.Stage

	if stage != "" && stage != "$default" {
		if path == "/"+stage {
			path = "/"
		} else {
			path = strings.TrimPrefix(path, "/"+stage+"/")
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
		}
	}

	return normalizePath(path)
}

func (e *APIGatewayProxyEventV2) IsBase64Encoded() bool {
	return e.Request.IsBase64Encoded
}

func (e *APIGatewayProxyEventV2) Headers() map[string]string {
	return e.Request.Headers
}

func (e *APIGatewayProxyEventV2) Header(name string) string {
	return headerValue(e.Request.Headers, name)
}

func (e *APIGatewayProxyEventV2) QueryStringParameters() map[string]string {
	return e.Request.QueryStringParameters
}

func (e *APIGatewayProxyEventV2) encode(env Envelope) interface{} {
	return events.APIGatewayV2HTTPResponse{
		StatusCode:      env.StatusCode,
		Headers:         env.Headers,
		Body:            env.Body,
		IsBase64Encoded: env.IsBase64Encoded,
		Cookies:         env.Cookies,
	}
}

// LambdaFunctionURLEvent wraps a Lambda Function URL request.
type LambdaFunctionURLEvent struct {
	Request events.LambdaFunctionURLRequest
}

// NewLambdaFunctionURLEvent returns the view for request.
func NewLambdaFunctionURLEvent(request events.LambdaFunctionURLRequest) *LambdaFunctionURLEvent {
	return &LambdaFunctionURLEvent{Request: request}
}

func (e *LambdaFunctionURLEvent) Family() Family    { return FamilyFunctionURL }
func (e *LambdaFunctionURLEvent) Path() string      { return normalizePath(e.Request.RawPath) }
func (e *LambdaFunctionURLEvent) RawBody() string   { return e.Request.Body }
func (e *LambdaFunctionURLEvent) RequestID() string { return e.Request.RequestContext.RequestID }
func (e *LambdaFunctionURLEvent) Raw() interface{}  { return e.Request }

func (e *LambdaFunctionURLEvent) Method() HttpMethod {
	return ParseHttpMethod(e.Request.RequestContext.HTTP.Method)
}

func (e *LambdaFunctionURLEvent) IsBase64Encoded() bool {
	return e.Request.IsBase64Encoded
}

func (e *LambdaFunctionURLEvent) Headers() map[string]string {
	return e.Request.Headers
}

func (e *LambdaFunctionURLEvent) Header(name string) string {
	return headerValue(e.Request.Headers, name)
}

func (e *LambdaFunctionURLEvent) QueryStringParameters() map[string]string {
	return e.Request.QueryStringParameters
}

func (e *LambdaFunctionURLEvent) encode(env Envelope) interface{} {
	return events.LambdaFunctionURLResponse{
		StatusCode:      env.StatusCode,
		Headers:         env.Headers,
		Body:            env.Body,
		IsBase64Encoded: env.IsBase64Encoded,
		Cookies:         env.Cookies,
	}
}

// DecodeEvent unmarshals payload into the request type of family and returns
// its view.
func DecodeEvent(family Family, payload []byte) (EventView, error) {
	var (
		view   EventView
		target interface{}
	)

	switch family {
	case FamilyALB:
		e := &ALBEvent{}
		view, target = e, &e.Request
	case FamilyAPIGatewayREST:
		e := &APIGatewayProxyEvent{}
		view, target = e, &e.Request
	case FamilyAPIGatewayHTTP:
		e := &APIGatewayProxyEventV2{}
		view, target = e, &e.Request
	case FamilyFunctionURL:
		e := &LambdaFunctionURLEvent{}
		view, target = e, &e.Request
	default:
		return nil, errors.Wrapf(ErrInvalidEvent, "unable to decode event of family '%s'", family)
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return nil, errors.Wrapf(ErrInvalidEvent, "failed decoding %s event: %v", family, err)
	}

	return view, nil
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return pattern.Normalize(path)
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}

	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}

	return ""
}

func flatten(multi map[string][]string) map[string]string {
	single := make(map[string]string, len(multi))
	for k, values := range multi {
		if len(values) > 0 {
			single[k] = values[len(values)-1]
		}
	}
	return single
}
