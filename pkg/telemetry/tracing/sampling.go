package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler samples a ratio of root spans by trace ID. Children follow
// their parent's decision, so attempt events never outlive their decision
// span.
//
//	telemetry:
//	  tracing:
//	    sample_ratio: 0.1  # trace 10% of decisions
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	switch {
	case ratio < 0.0 || ratio > 1.0:
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	case ratio == 1.0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case ratio == 0.0:
		return sdktrace.ParentBased(sdktrace.NeverSample()), nil
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)), nil
	}
}
