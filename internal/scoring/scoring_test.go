package scoring

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"doubtdesk/internal/featureflags"
	"doubtdesk/internal/inference"
	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStrategy returns a fixed value or error and counts calls.
type stubStrategy struct {
	value float64
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Score(ctx context.Context, _ models.Feedback) (float64, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.value, s.err
}

// stubCompleter returns a canned completion.
type stubCompleter struct {
	reply string
	err   error
	last  inference.CompletionRequest
}

func (c *stubCompleter) Complete(_ context.Context, req inference.CompletionRequest) (string, error) {
	c.last = req
	return c.reply, c.err
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		fb   models.Feedback
		ok   bool
	}{
		{"valid", models.Feedback{Rating: 3, Review: "ok"}, true},
		{"rating zero", models.Feedback{Rating: 0, Review: "ok"}, false},
		{"rating six", models.Feedback{Rating: 6, Review: "ok"}, false},
		{"blank review", models.Feedback{Rating: 4, Review: "   "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.fb)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, models.HasCode(err, models.CodeValidation))
			}
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 15, Clamp(37))
	assert.Equal(t, 0, Clamp(-4))
	assert.Equal(t, 13, Clamp(12.5))
	assert.Equal(t, 12, Clamp(12.4))
	assert.Equal(t, 0, Clamp(math.NaN()))
}

func TestFallbackTable(t *testing.T) {
	e := NewEngine(nil)
	for rating, want := range map[int]int{1: 2, 2: 4, 3: 6, 4: 8, 5: 10} {
		res, err := e.Score(context.Background(), models.Feedback{Rating: rating, Review: "r"})
		require.NoError(t, err)
		assert.Equal(t, want, res.Points, "rating %d", rating)
		assert.True(t, res.UsedFallback)
		assert.Equal(t, "fallback", res.Strategy)
	}
}

func TestEngine_PrimaryIsClamped(t *testing.T) {
	tests := []struct {
		raw  float64
		want int
	}{
		{37, 15},
		{-4, 0},
		{14, 14},
		{7.6, 8},
	}
	for _, tt := range tests {
		e := NewEngine(&stubStrategy{value: tt.raw})
		res, err := e.Score(context.Background(), models.Feedback{Rating: 5, Review: "great"})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Points)
		assert.False(t, res.UsedFallback)
	}
}

func TestEngine_PrimaryFailureFallsBack(t *testing.T) {
	before := testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathFallback))

	tests := []struct {
		name    string
		primary *stubStrategy
	}{
		{"error", &stubStrategy{err: errors.New("boom")}},
		{"nan", &stubStrategy{value: math.NaN()}},
		{"inf", &stubStrategy{value: math.Inf(1)}},
		{"status", &stubStrategy{err: &inference.StatusError{StatusCode: 500}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.primary)
			res, err := e.Score(context.Background(), models.Feedback{Rating: 5, Review: "Great"})
			require.NoError(t, err)
			assert.Equal(t, 10, res.Points)
			assert.True(t, res.UsedFallback)
		})
	}

	after := testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathFallback))
	assert.Equal(t, before+4, after)
}

func TestEngine_TimeoutFallsBack(t *testing.T) {
	primary := &stubStrategy{value: 14, delay: time.Second}
	e := NewEngine(primary, WithTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := e.Score(context.Background(), models.Feedback{Rating: 3, Review: "fine"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, 6, res.Points)
}

func TestEngine_InvalidInputMakesNoCall(t *testing.T) {
	primary := &stubStrategy{value: 14}
	e := NewEngine(primary)

	_, err := e.Score(context.Background(), models.Feedback{Rating: 9, Review: "x"})
	assert.True(t, models.HasCode(err, models.CodeValidation))
	_, err = e.Score(context.Background(), models.Feedback{Rating: 4, Review: ""})
	assert.True(t, models.HasCode(err, models.CodeValidation))
	assert.Equal(t, int32(0), primary.calls.Load())
}

func TestEngine_FeatureFlag(t *testing.T) {
	primary := &stubStrategy{value: 14}
	flags := featureflags.NewManager("ai_scoring=off")
	e := NewEngine(primary, WithFlags(flags))

	disabledBefore := testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathDisabled))
	failuresBefore := primaryFailures()

	res, err := e.ScoreFor(context.Background(), 5, models.Feedback{Rating: 5, Review: "Great"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, int32(0), primary.calls.Load())
	assert.Equal(t, disabledBefore+1, testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathDisabled)))
	assert.Equal(t, failuresBefore, primaryFailures())

	flags.Set(featureflags.AIScoring, "on")
	res, err = e.ScoreFor(context.Background(), 5, models.Feedback{Rating: 5, Review: "Great"})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, 14, res.Points)
}

// primaryFailures sums the failure counter over every reason.
func primaryFailures() float64 {
	var total float64
	for _, reason := range []string{"timeout", "canceled", "not_configured", "invalid_response", "status", "transport"} {
		total += testutil.ToFloat64(observability.ScoringPrimaryFailures.WithLabelValues(reason))
	}
	return total
}

func TestEngine_NoPrimaryIsNotAFailure(t *testing.T) {
	disabledBefore := testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathDisabled))
	fallbackBefore := testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathFallback))
	failuresBefore := primaryFailures()

	e := NewEngine(nil)
	res, err := e.Score(context.Background(), models.Feedback{Rating: 4, Review: "Helpful"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, 8, res.Points)

	assert.Equal(t, failuresBefore, primaryFailures())
	assert.Equal(t, disabledBefore+1, testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathDisabled)))
	assert.Equal(t, fallbackBefore, testutil.ToFloat64(observability.ScoringTotal.WithLabelValues(observability.ScoringPathFallback)))
}

func TestAIStrategy(t *testing.T) {
	c := &stubCompleter{reply: "```json\n{\"points\": 13.4}\n```"}
	s := NewAIStrategy(c)

	v, err := s.Score(context.Background(), models.Feedback{Rating: 5, Review: "Helped me a lot"})
	require.NoError(t, err)
	assert.InDelta(t, 13.4, v, 1e-9)
	assert.True(t, c.last.JSON)
	assert.Contains(t, c.last.Prompt, "Rating: 5/5")
	assert.Contains(t, c.last.Prompt, "Helped me a lot")
	assert.Contains(t, c.last.System, "12-15 points")
}

func TestParsePoints(t *testing.T) {
	valid := map[string]float64{
		`{"points": 12}`:              12,
		` {"points": 0, "why": "x"} `: 0,
		"```\n{\"points\": 7}\n```":   7,
	}
	for raw, want := range valid {
		got, err := parsePoints(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{`{"score": 12}`, `{"points": "12"}`, `twelve`, `{"points": null}`} {
		_, err := parsePoints(raw)
		assert.ErrorIs(t, err, ErrInvalidResponse, raw)
	}
}

func TestAIStrategy_EndToEndThroughEngine(t *testing.T) {
	e := NewEngine(NewAIStrategy(&stubCompleter{reply: `{"points": 37}`}))
	res, err := e.Score(context.Background(), models.Feedback{Rating: 5, Review: "Superb"})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Points)
	assert.Equal(t, "ai", res.Strategy)

	e = NewEngine(NewAIStrategy(&stubCompleter{err: inference.ErrNotConfigured}))
	res, err = e.Score(context.Background(), models.Feedback{Rating: 1, Review: "useless"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Points)
	assert.True(t, res.UsedFallback)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "timeout", failureReason(context.DeadlineExceeded))
	assert.Equal(t, "not_configured", failureReason(inference.ErrNotConfigured))
	assert.Equal(t, "invalid_response", failureReason(ErrInvalidResponse))
	assert.Equal(t, "status", failureReason(&inference.StatusError{StatusCode: 503}))
	assert.Equal(t, "transport", failureReason(errors.New("x")))
}
