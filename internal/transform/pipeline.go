package transform

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Output is the result of running a pipeline.
type Output struct {
	Result

	// Applied lists the identifiers of the transformers that ran, in order.
	Applied []types.Identifier
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTracer sets the tracer used for per-transformer spans.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithMeter sets the meter that counts transformer applications.
func WithMeter(meter metric.Meter) PipelineOption {
	return func(p *Pipeline) {
		p.meter = meter
	}
}

// Pipeline applies transformers strictly in order, each output feeding the
// next. An unsupported data type stops the pipeline; nothing is skipped or
// coerced.
type Pipeline struct {
	transformers []Transformer
	logger       *slog.Logger
	tracer       trace.Tracer
	meter        metric.Meter
	applied      metric.Int64Counter
}

// NewPipeline creates a pipeline over transformers. An empty pipeline passes
// content through unchanged.
func NewPipeline(transformers []Transformer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		transformers: transformers,
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("crucible/transform"),
		meter:        metricnoop.NewMeterProvider().Meter("crucible/transform"),
	}
	for _, opt := range opts {
		opt(p)
	}

	counter, err := p.meter.Int64Counter("crucible.transform.applications",
		metric.WithDescription("Number of transformer applications"))
	if err != nil {
		p.logger.Warn("failed to create transform counter", "error", err)
		counter, _ = metricnoop.NewMeterProvider().Meter("crucible/transform").Int64Counter("crucible.transform.applications")
	}
	p.applied = counter
	return p
}

// Len returns the number of transformers.
func (p *Pipeline) Len() int {
	return len(p.transformers)
}

// Identifiers returns the identifiers of every transformer in order.
func (p *Pipeline) Identifiers() []types.Identifier {
	ids := make([]types.Identifier, len(p.transformers))
	for i, t := range p.transformers {
		ids[i] = t.Identifier()
	}
	return ids
}

// Run passes content through every transformer.
func (p *Pipeline) Run(ctx context.Context, content string, dt types.DataType) (Output, error) {
	out := Output{Result: Result{Output: content, DataType: dt}}

	for i, t := range p.transformers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !t.Supports(out.DataType) {
			return out, NewUnsupportedInputError(t.Name(), out.DataType)
		}

		res, err := p.apply(ctx, i, t, out.Result)
		if err != nil {
			return out, fmt.Errorf("transformer %s failed: %w", t.Name(), err)
		}

		out.Result = res
		out.Applied = append(out.Applied, t.Identifier())
	}

	return out, nil
}

func (p *Pipeline) apply(ctx context.Context, index int, t Transformer, in Result) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "transform.apply",
		trace.WithAttributes(
			attribute.String("transformer", t.Name()),
			attribute.Int("index", index),
			attribute.String("data_type", in.DataType.String()),
		))
	defer span.End()

	res, err := t.Apply(ctx, in.Output, in.DataType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if res.DataType == "" {
		res.DataType = in.DataType
	}

	p.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("transformer", t.Name())))
	p.logger.Debug("applied transformer",
		"transformer", t.Name(),
		"index", index,
		"input_type", in.DataType,
		"output_type", res.DataType,
	)
	return res, nil
}
