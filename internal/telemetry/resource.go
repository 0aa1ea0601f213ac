package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// AttrDataplaneName names the dataplane this launcher serves
const AttrDataplaneName = attribute.Key("launcher.dataplane.name")

// Identity describes the launcher process on every exported span and metric.
// Empty fields are left off the resource.
type Identity struct {
	ServiceName    string
	ServiceVersion string
	DataplaneName  string
	Namespace      string
}

func (id Identity) withDefaults() Identity {
	if id.ServiceName == "" {
		id.ServiceName = DefaultServiceName
	}
	if id.ServiceVersion == "" {
		id.ServiceVersion = "unknown"
	}
	return id
}

func (id Identity) attributes() []attribute.KeyValue {
	id = id.withDefaults()
	attrs := []attribute.KeyValue{
		semconv.ServiceName(id.ServiceName),
		semconv.ServiceVersion(id.ServiceVersion),
	}
	if id.DataplaneName != "" {
		attrs = append(attrs, AttrDataplaneName.String(id.DataplaneName))
	}
	if id.Namespace != "" {
		attrs = append(attrs, semconv.K8SNamespaceName(id.Namespace))
	}
	return attrs
}

// NewResource builds the shared resource for the tracer and meter providers
func NewResource(ctx context.Context, id Identity) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(id.attributes()...),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
