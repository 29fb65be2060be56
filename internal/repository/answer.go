package repository

import (
	"context"
	"log/slog"
	"time"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnswerRepository defines the interface for answer data operations
type AnswerRepository interface {
	CreateAnswer(ctx context.Context, answer *models.Answer) error
	GetAnswer(ctx context.Context, id uint) (*models.Answer, error)
	// ListAnswers returns the answers of one doubt, or of every doubt when
	// doubtID is nil, newest first.
	ListAnswers(ctx context.Context, doubtID *uint) ([]models.Answer, error)
	ListAnswersByAuthor(ctx context.Context, authorID uint) ([]models.Answer, error)
	// AttachFeedback sets feedback on an answer that has none and marks its
	// doubt resolved. A doubt is resolved at most once, so feedback on a
	// second answer of the same doubt is a conflict.
	AttachFeedback(ctx context.Context, answerID uint, fb models.Feedback) (*models.Answer, error)
}

type answerRepository struct {
	base
}

var answerLog = observability.NewRepoLogger("answers")

func (r *answerRepository) CreateAnswer(ctx context.Context, answer *models.Answer) error {
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		var doubt models.Doubt
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id", "author_id", "is_resolved").
			First(&doubt, answer.DoubtID).Error
		if err != nil {
			return lookupError(err, "Doubt", answer.DoubtID)
		}
		if doubt.AuthorID == answer.AuthorID {
			return models.NewForbiddenError("You cannot answer your own doubt")
		}
		if doubt.IsResolved {
			return models.NewConflictError("This doubt is already resolved")
		}
		author, err := lockAuthor(tx, answer.AuthorID)
		if err != nil {
			return err
		}
		answer.ID = 0
		answer.AuthorName = author.Name
		answer.AuthorAvatar = author.AvatarURL
		answer.FeedbackRating = nil
		answer.FeedbackReview = nil
		answer.FeedbackAt = nil
		answer.Feedback = nil
		return tx.Create(answer).Error
	}, nil)
	if err != nil {
		answerLog.LogError(ctx, err, "create")
		return err
	}
	answerLog.LogMutation(ctx, "create",
		slog.Uint64("answer_id", uint64(answer.ID)),
		slog.Uint64("doubt_id", uint64(answer.DoubtID)),
	)
	return nil
}

func (r *answerRepository) GetAnswer(ctx context.Context, id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := r.db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, lookupError(err, "Answer", id)
	}
	return &answer, nil
}

func (r *answerRepository) ListAnswers(ctx context.Context, doubtID *uint) ([]models.Answer, error) {
	query := r.db.WithContext(ctx)
	if doubtID != nil {
		query = query.Where("doubt_id = ?", *doubtID)
	}
	var answers []models.Answer
	if err := newestFirst(query).Find(&answers).Error; err != nil {
		return nil, asAppError(err)
	}
	return answers, nil
}

func (r *answerRepository) ListAnswersByAuthor(ctx context.Context, authorID uint) ([]models.Answer, error) {
	var answers []models.Answer
	err := newestFirst(r.db.WithContext(ctx).Where("author_id = ?", authorID)).Find(&answers).Error
	if err != nil {
		return nil, asAppError(err)
	}
	return answers, nil
}

func (r *answerRepository) AttachFeedback(ctx context.Context, answerID uint, fb models.Feedback) (*models.Answer, error) {
	var answer models.Answer
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&answer, answerID).Error; err != nil {
			return lookupError(err, "Answer", answerID)
		}
		if answer.HasFeedback() {
			return models.NewConflictError("Feedback has already been submitted for this answer")
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Answer{}).
			Where("id = ? AND feedback_rating IS NULL", answerID).
			Updates(map[string]interface{}{
				"feedback_rating": fb.Rating,
				"feedback_review": fb.Review,
				"feedback_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		// Lost a race with a concurrent submission.
		if res.RowsAffected == 0 {
			return models.NewConflictError("Feedback has already been submitted for this answer")
		}

		res = tx.Model(&models.Doubt{}).
			Where("id = ? AND is_resolved = ?", answer.DoubtID, false).
			Update("is_resolved", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("This doubt is already resolved")
		}
		answer.SetFeedback(fb, now)
		return nil
	}, func() []string {
		return []string{cache.DoubtKey(answer.DoubtID)}
	})
	if err != nil {
		answerLog.LogError(ctx, err, "attach_feedback")
		return nil, err
	}
	answerLog.LogMutation(ctx, "attach_feedback",
		slog.Uint64("answer_id", uint64(answerID)),
		slog.Uint64("doubt_id", uint64(answer.DoubtID)),
		slog.Int("rating", fb.Rating),
	)
	return &answer, nil
}
