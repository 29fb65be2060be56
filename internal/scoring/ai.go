package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"doubtdesk/internal/inference"
	"doubtdesk/internal/models"
)

// Completer is satisfied by *inference.Client.
type Completer interface {
	Complete(ctx context.Context, req inference.CompletionRequest) (string, error)
}

const moderatorPrompt = `You are a fair moderator on a student learning platform. Analyze the feedback a student gave for an answer and decide how many points to award the person who wrote the answer, on a scale from 0 to 15.

Weigh the star rating together with the sentiment and constructiveness of the review:
- A 5-star rating with a thoughtful review ("This was amazing, it helped me understand X and Y perfectly!") should receive 12-15 points.
- A 5-star rating with a low-effort review ("thanks") should receive fewer points, about 8-10.
- A 3-star rating with constructive criticism ("Good start, but you missed explaining the why") should receive 5-8 points.
- A 1-star rating with a harsh but valid review should receive 0-2 points.
- A 1-star rating with a non-constructive review ("useless") should receive 0 points.

Return ONLY a JSON object with a single numeric "points" key.`

// AIStrategy asks the inference service to grade the feedback.
type AIStrategy struct {
	client Completer
}

// NewAIStrategy returns an AIStrategy backed by client.
func NewAIStrategy(client Completer) *AIStrategy {
	return &AIStrategy{client: client}
}

func (s *AIStrategy) Name() string { return "ai" }

func (s *AIStrategy) Score(ctx context.Context, fb models.Feedback) (float64, error) {
	if s == nil || s.client == nil {
		return 0, inference.ErrNotConfigured
	}
	prompt := fmt.Sprintf("Rating: %d/5 stars\nReview: %q", fb.Rating, fb.Review)

	raw, err := s.client.Complete(ctx, inference.CompletionRequest{
		System:      moderatorPrompt,
		Prompt:      prompt,
		JSON:        true,
		Temperature: 0.2,
	})
	if err != nil {
		return 0, err
	}
	return parsePoints(raw)
}

// parsePoints reads {"points": <number>} from a model reply, tolerating a
// surrounding markdown code fence.
func parsePoints(raw string) (float64, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	var reply struct {
		Points *float64 `json:"points"`
	}
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if reply.Points == nil {
		return 0, fmt.Errorf("%w: missing points", ErrInvalidResponse)
	}
	if math.IsNaN(*reply.Points) || math.IsInf(*reply.Points, 0) {
		return 0, fmt.Errorf("%w: non-finite points", ErrInvalidResponse)
	}
	return *reply.Points, nil
}
