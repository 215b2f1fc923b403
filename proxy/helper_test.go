package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"
)

func testHandler(*RouteContext) (interface{}, error) {
	return NewResponse(200, "routed"), nil
}

func bodyHandler(body string) HandlerFunc {
	return func(*RouteContext) (interface{}, error) {
		return NewResponse(200, body), nil
	}
}

func testRequest(method HttpMethod, path string) *APIGatewayProxyEventV2 {
	return NewAPIGatewayProxyEventV2(events.APIGatewayV2HTTPRequest{
		RawPath: path,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method: method.String(),
			},
			Stage: "$default",
		},
		Headers: map[string]string{},
	})
}

// loadEvent returns the raw fixture testdata/events/<name>.
func loadEvent(t *testing.T, name string) []byte {
	t.Helper()

	b, err := os.ReadFile(fmt.Sprintf("testdata/events/%s", name))
	require.NoError(t, err)

	return b
}

// loadEventWithPath returns the fixture with both the v1 and v2 path fields
// replaced by path.
func loadEventWithPath(t *testing.T, name string, path string) []byte {
	t.Helper()

	raw := loadEvent(t, name)

	s, err := sjson.Set(string(raw), "path", path)
	require.NoError(t, err)

	s, err = sjson.Set(s, "rawPath", path)
	require.NoError(t, err)

	return []byte(s)
}

func decodeEvent(t *testing.T, family Family, payload []byte) EventView {
	t.Helper()

	view, err := DecodeEvent(family, payload)
	require.NoError(t, err)

	return view
}

func testContext() context.Context {
	return context.Background()
}

// invokeResponse is the family agnostic shape of an encoded response.
type invokeResponse struct {
	StatusCode        int                 `json:"statusCode"`
	StatusDescription string              `json:"statusDescription"`
	Headers           map[string]string   `json:"headers"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders"`
	Body              string              `json:"body"`
	Cookies           []string            `json:"cookies"`
	IsBase64Encoded   bool                `json:"isBase64Encoded"`
}

func invoke(t *testing.T, r *Resolver, payload []byte) invokeResponse {
	t.Helper()

	b, err := r.Invoke(testContext(), payload)
	require.NoError(t, err)

	var resp invokeResponse
	require.NoError(t, json.Unmarshal(b, &resp))

	return resp
}
