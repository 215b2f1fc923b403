package proxy

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// Response is returned by handlers and middlewares.
type Response struct {
	StatusCode      int
	Body            string
	Headers         map[string]string
	ContentType     string
	Cookies         []string
	IsBase64Encoded bool
}

// NewResponse returns a Response with the given status and body.
func NewResponse(status int, body string) Response {
	return Response{StatusCode: status, Body: body}
}

// JSONResponse marshals v into the body of a json Response.
func JSONResponse(status int, v interface{}) (Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Response{}, errors.Wrapf(err, "failed marshalling response body %T", v)
	}

	return Response{StatusCode: status, Body: string(b), ContentType: ContentTypeJSON}, nil
}

// Envelope is the trigger independent reply for a single invocation. Each
// EventView encodes it into its own aws-lambda-go response type.
type Envelope struct {
	StatusCode      int               `json:"statusCode"`
	Body            string            `json:"body"`
	Headers         map[string]string `json:"headers"`
	Cookies         []string          `json:"cookies,omitempty"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

func (r Response) envelope() Envelope {
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	headers := copyHeaders(r.Headers)
	if r.ContentType != "" {
		headers["Content-Type"] = r.ContentType
	}

	return Envelope{
		StatusCode:      status,
		Body:            r.Body,
		Headers:         headers,
		Cookies:         r.Cookies,
		IsBase64Encoded: r.IsBase64Encoded,
	}
}

func (e Envelope) multiValueHeaders() map[string][]string {
	multi := make(map[string][]string, len(e.Headers)+1)
	for k, v := range e.Headers {
		multi[k] = []string{v}
	}

	if len(e.Cookies) > 0 {
		multi["Set-Cookie"] = e.Cookies
	}

	return multi
}

// toResponse normalizes a handler result into a Response.
func toResponse(result interface{}) (Response, error) {
	switch v := result.(type) {
	case Response:
		return v, nil
	case *Response:
		if v == nil {
			return Response{StatusCode: http.StatusNoContent}, nil
		}
		return *v, nil
	case nil:
		return Response{StatusCode: http.StatusNoContent}, nil
	case string:
		return Response{StatusCode: http.StatusOK, Body: v, ContentType: ContentTypeText}, nil
	case []byte:
		return Response{
			StatusCode:      http.StatusOK,
			Body:            base64.StdEncoding.EncodeToString(v),
			ContentType:     ContentTypeBinary,
			IsBase64Encoded: true,
		}, nil
	default:
		return JSONResponse(http.StatusOK, v)
	}
}

// errorResponse builds the json body used for every error the resolver
// produces on its own: {"statusCode": status, "message": msg}.
func errorResponse(status int, msg string) Response {
	body, _ := sjson.Set("{}", "statusCode", status)
	body, _ = sjson.Set(body, "message", msg)

	return Response{StatusCode: status, Body: body, ContentType: ContentTypeJSON}
}

func validationResponse(verr *ValidationError) Response {
	body, _ := sjson.Set("{}", "statusCode", http.StatusUnprocessableEntity)
	body, _ = sjson.SetRaw(body, "detail", "[]")

	for _, f := range verr.Fields {
		body, _ = sjson.Set(body, "detail.-1", map[string]interface{}{
			"loc":  []string{f.Location, f.Name},
			"type": f.Type,
			"msg":  f.Message,
		})
	}

	return Response{StatusCode: http.StatusUnprocessableEntity, Body: body, ContentType: ContentTypeJSON}
}

func copyHeaders(headers map[string]string) map[string]string {
	c := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		c[k] = v
	}
	return c
}
