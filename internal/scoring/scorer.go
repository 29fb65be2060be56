// Package scoring turns a feedback rating and review into reward points.
package scoring

import (
	"context"
	"errors"
	"math"
	"strings"

	"doubtdesk/internal/models"
)

// Point bounds for a single piece of feedback.
const (
	MinPoints = 0
	MaxPoints = 15
)

// ErrInvalidResponse marks a primary reply that carried no usable number.
var ErrInvalidResponse = errors.New("scoring: invalid response")

// Strategy produces a raw, unclamped point value for feedback.
type Strategy interface {
	Name() string
	Score(ctx context.Context, fb models.Feedback) (float64, error)
}

// Result is the outcome of scoring one piece of feedback.
type Result struct {
	Points       int    `json:"points"`
	UsedFallback bool   `json:"used_fallback"`
	Strategy     string `json:"strategy"`
}

// Validate checks the feedback before anything is scored or stored.
func Validate(fb models.Feedback) error {
	if fb.Rating < models.MinRating || fb.Rating > models.MaxRating {
		return models.NewValidationError("Rating must be between 1 and 5")
	}
	if strings.TrimSpace(fb.Review) == "" {
		return models.NewValidationError("Review is required")
	}
	return nil
}

// Clamp rounds v to the nearest integer and bounds it to [MinPoints, MaxPoints].
// NaN maps to MinPoints.
func Clamp(v float64) int {
	if math.IsNaN(v) {
		return MinPoints
	}
	r := math.Round(v)
	if r < MinPoints {
		return MinPoints
	}
	if r > MaxPoints {
		return MaxPoints
	}
	return int(r)
}
