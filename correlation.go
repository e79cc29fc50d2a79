package blobcast

import (
	"context"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
)

type correlationIDKey struct{}

// WithCorrelationID returns a context carrying the given invocation
// correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the correlation identifier for the current
// invocation. On Lambda the request id is used; otherwise an identifier set
// with WithCorrelationID, or "-" when none is set.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok && id != "" {
		return id
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return "-"
}

func newCorrelationID() string {
	uuidObj, err := uuid.NewRandom()
	if err != nil {
		return "-"
	}
	return uuidObj.String()
}
