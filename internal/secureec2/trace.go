package secureec2

import (
	"context"

	"github.com/avishayil/secure-ec2/internal/o11y"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/avishayil/secure-ec2/internal/secureec2")

func (p *Provisioner) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(o11y.AttrRegion, p.Region),
		attribute.String(o11y.AttrUsername, p.Username),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
