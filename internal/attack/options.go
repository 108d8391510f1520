package attack

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/score"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/transform"
	"github.com/zero-day-ai/crucible/internal/verbose"
)

// AttackerMode selects how an attacker model is prompted.
type AttackerMode string

const (
	// AttackerChat uses a free-form red teaming system prompt; the whole
	// attacker reply is the next attack prompt.
	AttackerChat AttackerMode = "chat"

	// AttackerCrescendo asks for a JSON object and takes its
	// generated_question. Malformed replies are retried under the retry
	// policy.
	AttackerCrescendo AttackerMode = "crescendo"
)

// IsValid checks if the mode is a known value
func (m AttackerMode) IsValid() bool {
	return m == AttackerChat || m == AttackerCrescendo
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithTracer sets the tracer for run and turn spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithMeter sets the meter for run and turn metrics.
func WithMeter(meter metric.Meter) Option {
	return func(o *Orchestrator) {
		o.meter = meter
	}
}

// WithEvents attaches a live feed of attack and turn events.
func WithEvents(events verbose.Emitter) Option {
	return func(o *Orchestrator) {
		o.events = events
	}
}

// WithPipeline sets the transformers applied to every attack prompt.
func WithPipeline(p *transform.Pipeline) Option {
	return func(o *Orchestrator) {
		o.pipeline = p
	}
}

// WithAttacker makes an attacker model write the attack prompts.
func WithAttacker(attacker target.Target, mode AttackerMode) Option {
	return func(o *Orchestrator) {
		o.attacker = attacker
		o.attackerMode = mode
	}
}

// WithPromptTemplate replaces the template rendered when no attacker is
// configured. It receives "objective" and "feedback".
func WithPromptTemplate(tmpl *prompt.SeedPrompt) Option {
	return func(o *Orchestrator) {
		o.template = tmpl
	}
}

// WithRefusalScorer enables backtracking: a reply the scorer marks "True"
// is dropped and the run continues in a copy of the conversation without
// it, at most maxBacktracks times per run.
func WithRefusalScorer(s score.Scorer, maxBacktracks int) Option {
	return func(o *Orchestrator) {
		o.refusal = s
		o.maxBacktracks = maxBacktracks
	}
}

// WithThreshold sets the float_scale success threshold.
func WithThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		o.threshold = threshold
	}
}

// WithRetryPolicy sets the policy for malformed attacker replies.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithLabels sets labels copied onto every persisted piece.
func WithLabels(labels map[string]string) Option {
	return func(o *Orchestrator) {
		o.labels = labels
	}
}

// WithTargetSystemPrompt sets a system prompt on every target conversation.
func WithTargetSystemPrompt(text string) Option {
	return func(o *Orchestrator) {
		o.targetSystemPrompt = text
	}
}
