package proxy

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// detector reports whether a raw payload belongs to family.
type detector struct {
	family Family
	match  func(raw []byte) bool
}

// detectors are evaluated in order. ALB events carry httpMethod too, so they
// are checked ahead of API Gateway REST events.
var detectors = []detector{
	{FamilyALB, func(raw []byte) bool {
		return gjson.GetBytes(raw, "requestContext.elb").Exists()
	}},
	{FamilyAPIGatewayREST, func(raw []byte) bool {
		return gjson.GetBytes(raw, "httpMethod").Exists()
	}},
	{FamilyFunctionURL, func(raw []byte) bool {
		return isV2(raw) && strings.Contains(gjson.GetBytes(raw, "requestContext.domainName").String(), ".lambda-url.")
	}},
	{FamilyAPIGatewayHTTP, isV2},
}

func isV2(raw []byte) bool {
	return gjson.GetBytes(raw, "version").String() == "2.0" || gjson.GetBytes(raw, "requestContext.http.method").Exists()
}

// Detect inspects a raw Lambda payload and returns the trigger family it was
// sent by.
func Detect(payload []byte) (Family, error) {
	if !gjson.ValidBytes(payload) {
		return AnyFamily, errors.Wrap(ErrInvalidEvent, "payload is not valid json")
	}

	for _, d := range detectors {
		if d.match(payload) {
			return d.family, nil
		}
	}

	return AnyFamily, errors.Wrap(ErrInvalidEvent, "unable to detect event family")
}

// compatible returns true if an event detected as got can be decoded as want.
// HTTP API and Function URL payloads share a shape and a Function URL behind
// a custom domain is indistinguishable from an HTTP API event.
func compatible(want, got Family) bool {
	if want == got {
		return true
	}

	v2 := func(f Family) bool { return f == FamilyAPIGatewayHTTP || f == FamilyFunctionURL }
	return v2(want) && v2(got)
}
