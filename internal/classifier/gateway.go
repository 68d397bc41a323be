// Package classifier connects the detection pipeline to the external image
// classification service.
package classifier

import (
	"context"

	"github.com/bearwatch/bearwatch/internal/detection"
)

// Gateway classifies a single image.
//
// Every failure is returned as a *detection.Error of kind
// ClassificationFailure with one of the detection.Reason* values.
// A failed call never yields a usable verdict.
type Gateway interface {
	Classify(ctx context.Context, image []byte) (detection.Verdict, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, image []byte) (detection.Verdict, error)

// Classify calls f.
func (f GatewayFunc) Classify(ctx context.Context, image []byte) (detection.Verdict, error) {
	return f(ctx, image)
}
