package lambdautils

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
)

// LambdaMetaData stored details about the current lambda context.
type LambdaMetaData struct {
	FunctionName    string
	FunctionVersion string
	LogGroupName    string
	LogStreamName   string
	MemoryLimitInMB int
	Context         *lambdacontext.LambdaContext
}

// GetLambdaMetaData returns MetaData extracted from the current lambda context.
func GetLambdaMetaData(ctx context.Context) LambdaMetaData {
	lm := LambdaMetaData{
		FunctionName:    lambdacontext.FunctionName,
		FunctionVersion: lambdacontext.FunctionVersion,
		LogGroupName:    lambdacontext.LogGroupName,
		LogStreamName:   lambdacontext.LogStreamName,
		MemoryLimitInMB: lambdacontext.MemoryLimitInMB,
	}

	if ctx != nil {
		lm.Context, _ = lambdacontext.FromContext(ctx)
	}
	return lm
}

// AwsRequestID returns the id of the current invocation, or "" outside of
// lambda.
func (lm LambdaMetaData) AwsRequestID() string {
	if lm.Context == nil {
		return ""
	}
	return lm.Context.AwsRequestID
}

// Alias returns the alias or version qualifier the function was invoked
// with, or "" when it was invoked unqualified.
func (lm LambdaMetaData) Alias() string {
	if lm.Context == nil {
		return ""
	}

	// arn:aws:lambda:region:account:function:name[:qualifier]
	parts := strings.Split(lm.Context.InvokedFunctionArn, ":")
	if len(parts) < 8 {
		return ""
	}
	return parts[7]
}

// Fields returns the metadata as zap fields. Empty values are omitted.
func (lm LambdaMetaData) Fields() []zap.Field {
	var fields []zap.Field

	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}

	add("function", lm.FunctionName)
	add("functionVersion", lm.FunctionVersion)
	add("alias", lm.Alias())
	add("awsRequestId", lm.AwsRequestID())

	return fields
}
