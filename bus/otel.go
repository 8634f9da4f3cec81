package bus

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowforge/enginecore/engine"
)

// OTel turns each engine.Event into a zero-duration OpenTelemetry span:
// span name is the event type, attributes carry executionId/flowId/stepId
// and any Meta fields that are strings, ints, or bools; an "error" meta
// key marks the span as errored.
type OTel struct {
	tracer trace.Tracer
}

func NewOTel(tracer trace.Tracer) *OTel {
	return &OTel{tracer: tracer}
}

func (o *OTel) Publish(event engine.Event) {
	event = stampIfZero(event)
	attrs := []attribute.KeyValue{
		attribute.String("executionId", event.ExecutionID),
		attribute.String("flowId", event.FlowID),
	}
	if event.StepID != "" {
		attrs = append(attrs, attribute.String("stepId", event.StepID))
	}
	for k, v := range event.Meta {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		}
	}

	_, span := o.tracer.Start(context.Background(), string(event.Type), trace.WithTimestamp(time.UnixMilli(event.TimestampUnixMs).UTC()))
	span.SetAttributes(attrs...)
	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}

func (o *OTel) PublishBatch(_ context.Context, events []engine.Event) error {
	for _, e := range events {
		o.Publish(e)
	}
	return nil
}

func (o *OTel) Flush(context.Context) error { return nil }
