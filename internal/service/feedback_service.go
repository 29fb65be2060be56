package service

import (
	"context"
	"log/slog"

	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"
	"doubtdesk/internal/repository"
	"doubtdesk/internal/scoring"
)

// Scorer is satisfied by *scoring.Engine.
type Scorer interface {
	ScoreFor(ctx context.Context, userID uint, fb models.Feedback) (scoring.Result, error)
}

// FeedbackService turns an asker's rating of an answer into stored feedback,
// a resolved doubt and points for the answer's author, atomically.
type FeedbackService struct {
	repo   repository.Repository
	scorer Scorer
}

type SubmitFeedbackInput struct {
	AnswerID uint
	// ActorID, when non-zero, must be the author of the answered doubt.
	ActorID uint
	Rating  int    `json:"rating"`
	Review  string `json:"review"`
}

type FeedbackResult struct {
	AIAnalyzed bool           `json:"ai_analyzed"`
	Points     int            `json:"points"`
	Answer     *models.Answer `json:"answer"`
}

func NewFeedbackService(repo repository.Repository, scorer Scorer) *FeedbackService {
	return &FeedbackService{repo: repo, scorer: scorer}
}

func (s *FeedbackService) SubmitFeedback(ctx context.Context, in SubmitFeedbackInput) (*FeedbackResult, error) {
	fb := models.Feedback{Rating: in.Rating, Review: in.Review}
	if err := scoring.Validate(fb); err != nil {
		observability.FeedbackSubmissions.WithLabelValues("invalid").Inc()
		return nil, err
	}

	answer, err := s.repo.GetAnswer(ctx, in.AnswerID)
	if err != nil {
		return nil, s.reject(err)
	}
	if answer.HasFeedback() {
		return nil, s.reject(models.NewConflictError("Feedback has already been submitted for this answer"))
	}
	doubt, err := s.repo.GetDoubt(ctx, answer.DoubtID)
	if err != nil {
		return nil, s.reject(err)
	}
	if in.ActorID != 0 && doubt.AuthorID != in.ActorID {
		return nil, s.reject(models.NewForbiddenError("Only the author of the doubt can rate its answers"))
	}
	if doubt.IsResolved {
		return nil, s.reject(models.NewConflictError("This doubt is already resolved"))
	}

	// Scoring may call an external service, so it stays outside the transaction.
	result, err := s.scorer.ScoreFor(ctx, in.ActorID, fb)
	if err != nil {
		return nil, s.reject(err)
	}

	var updated *models.Answer
	err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
		a, err := tx.AttachFeedback(ctx, answer.ID, fb)
		if err != nil {
			return err
		}
		if err := tx.AddPoints(ctx, a.AuthorID, result.Points); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, s.reject(err)
	}

	outcome := observability.ScoringPathAI
	if result.UsedFallback {
		outcome = observability.ScoringPathFallback
	}
	observability.FeedbackSubmissions.WithLabelValues(outcome).Inc()
	observability.PointsAwarded.Add(float64(result.Points))
	observability.Logger.InfoContext(ctx, "feedback submitted",
		slog.Uint64("answer_id", uint64(updated.ID)),
		slog.Uint64("doubt_id", uint64(updated.DoubtID)),
		slog.Uint64("awarded_to", uint64(updated.AuthorID)),
		slog.Int("points", result.Points),
		slog.Bool("ai_analyzed", !result.UsedFallback),
	)

	return &FeedbackResult{
		AIAnalyzed: !result.UsedFallback,
		Points:     result.Points,
		Answer:     updated,
	}, nil
}

func (s *FeedbackService) reject(err error) error {
	outcome := "error"
	switch {
	case models.HasCode(err, models.CodeConflict):
		outcome = "conflict"
	case models.HasCode(err, models.CodeNotFound):
		outcome = "not_found"
	case models.HasCode(err, models.CodeForbidden):
		outcome = "forbidden"
	case models.HasCode(err, models.CodeValidation):
		outcome = "invalid"
	}
	observability.FeedbackSubmissions.WithLabelValues(outcome).Inc()
	return err
}
