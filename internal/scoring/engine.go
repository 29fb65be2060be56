package scoring

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"doubtdesk/internal/featureflags"
	"doubtdesk/internal/inference"
	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTimeout bounds one primary scoring call.
const DefaultTimeout = 8 * time.Second

// Engine scores feedback with a primary strategy and falls back to a
// deterministic one whenever the primary cannot produce a number.
type Engine struct {
	primary  Strategy
	fallback Strategy
	flags    *featureflags.Manager
	timeout  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithFallback replaces the FallbackStrategy.
func WithFallback(s Strategy) Option {
	return func(e *Engine) { e.fallback = s }
}

// WithFlags gates the primary strategy behind featureflags.AIScoring.
func WithFlags(m *featureflags.Manager) Option {
	return func(e *Engine) { e.flags = m }
}

// WithTimeout sets the primary call budget. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine returns an Engine. primary may be nil, in which case every call
// uses the fallback.
func NewEngine(primary Strategy, opts ...Option) *Engine {
	e := &Engine{
		primary:  primary,
		fallback: FallbackStrategy{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score validates fb and returns its points. The only error it returns is a
// validation error; primary failures are absorbed by the fallback.
func (e *Engine) Score(ctx context.Context, fb models.Feedback) (Result, error) {
	return e.ScoreFor(ctx, 0, fb)
}

// ScoreFor is Score with the feature flag evaluated for userID.
func (e *Engine) ScoreFor(ctx context.Context, userID uint, fb models.Feedback) (Result, error) {
	if err := Validate(fb); err != nil {
		return Result{}, err
	}

	if e.primary == nil {
		return e.useFallback(ctx, fb, observability.ScoringPathDisabled)
	}
	if e.flags != nil && !e.flags.Enabled(featureflags.AIScoring, userID) {
		return e.useFallback(ctx, fb, observability.ScoringPathDisabled)
	}

	v, err := e.callPrimary(ctx, fb)
	if err != nil {
		reason := failureReason(err)
		observability.Logger.WarnContext(ctx, "primary scoring failed, using fallback",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		observability.ScoringPrimaryFailures.WithLabelValues(reason).Inc()
		return e.useFallback(ctx, fb, observability.ScoringPathFallback)
	}

	observability.ScoringTotal.WithLabelValues(observability.ScoringPathAI).Inc()
	return Result{Points: Clamp(v), Strategy: e.primary.Name()}, nil
}

func (e *Engine) callPrimary(ctx context.Context, fb models.Feedback) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := observability.Tracer.Start(ctx, "scoring.primary")
	defer span.End()
	span.SetAttributes(
		attribute.String("scoring.strategy", e.primary.Name()),
		attribute.Int("feedback.rating", fb.Rating),
	)

	type outcome struct {
		v   float64
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		v, err := e.primary.Score(ctx, fb)
		done <- outcome{v: v, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}
	observability.ScoringLatency.Observe(time.Since(start).Seconds())

	if out.err == nil && (math.IsNaN(out.v) || math.IsInf(out.v, 0)) {
		out.err = ErrInvalidResponse
	}
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		return 0, out.err
	}
	span.SetAttributes(attribute.Float64("scoring.raw_points", out.v))
	return out.v, nil
}

// useFallback scores fb with the fallback and counts it under path.
func (e *Engine) useFallback(ctx context.Context, fb models.Feedback, path string) (Result, error) {
	v, err := e.fallback.Score(ctx, fb)
	if err != nil {
		return Result{}, models.NewInternalError(err)
	}
	observability.ScoringTotal.WithLabelValues(path).Inc()
	return Result{Points: Clamp(v), UsedFallback: true, Strategy: e.fallback.Name()}, nil
}

func failureReason(err error) string {
	var statusErr *inference.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, inference.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrInvalidResponse), errors.Is(err, inference.ErrEmptyResponse):
		return "invalid_response"
	case errors.As(err, &statusErr):
		return "status"
	default:
		return "transport"
	}
}
