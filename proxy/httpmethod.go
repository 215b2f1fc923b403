package proxy

import "strings"

// HttpMethod is an enum of the standard Http Methods.
type HttpMethod string

const (
	GET     HttpMethod = "GET"
	HEAD    HttpMethod = "HEAD"
	POST    HttpMethod = "POST"
	PUT     HttpMethod = "PUT"
	DELETE  HttpMethod = "DELETE"
	CONNECT HttpMethod = "CONNECT"
	OPTIONS HttpMethod = "OPTIONS"
	TRACE   HttpMethod = "TRACE"
	PATCH   HttpMethod = "PATCH"
)

// String returns the method name.
func (m HttpMethod) String() string {
	return string(m)
}

// ParseHttpMethod upper-cases method so it can be compared against the
// registered route methods.
func ParseHttpMethod(method string) HttpMethod {
	return HttpMethod(strings.ToUpper(strings.TrimSpace(method)))
}
