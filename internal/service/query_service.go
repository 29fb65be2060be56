package service

import (
	"context"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/models"
	"doubtdesk/internal/repository"

	"golang.org/x/sync/singleflight"
)

// QueryService serves the read-only views: answer lists, the leaderboard
// and per-user statistics.
type QueryService struct {
	repo  repository.Repository
	cache *cache.Cache
	group singleflight.Group
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    uint   `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Branch    string `json:"branch"`
	Points    int    `json:"points"`
}

// UserStats summarizes a user's activity.
type UserStats struct {
	UserID        uint    `json:"user_id"`
	Points        int     `json:"points"`
	DoubtsPosted  int     `json:"doubts_posted"`
	AnswersGiven  int     `json:"answers_given"`
	AverageRating float64 `json:"average_rating"`
	// ResolvedPercentage is the share of doubts the user answered that are
	// now resolved, 0..100.
	ResolvedPercentage float64 `json:"resolved_percentage"`
}

// NewQueryService returns a QueryService. c may be nil.
func NewQueryService(repo repository.Repository, c *cache.Cache) *QueryService {
	return &QueryService{repo: repo, cache: c}
}

// AnswersFor returns the answers of one doubt, or every answer when doubtID
// is nil, newest first. A deleted or unknown doubt yields an empty list.
func (s *QueryService) AnswersFor(ctx context.Context, doubtID *uint) ([]models.Answer, error) {
	answers, err := s.repo.ListAnswers(ctx, doubtID)
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = []models.Answer{}
	}
	return answers, nil
}

// Leaderboard ranks users by points, then name, then id. Concurrent misses
// share one database read, which does not inherit the first caller's
// cancellation.
func (s *QueryService) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	v, err, _ := s.group.Do(cache.LeaderboardKey, func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		var entries []LeaderboardEntry
		err := s.cache.Aside(ctx, cache.LeaderboardKey, &entries, cache.LeaderboardTTL, func() error {
			users, err := s.repo.ListUsersRanked(ctx)
			if err != nil {
				return err
			}
			entries = make([]LeaderboardEntry, 0, len(users))
			for i, u := range users {
				entries = append(entries, LeaderboardEntry{
					Rank:      i + 1,
					UserID:    u.ID,
					Name:      u.Name,
					AvatarURL: u.AvatarURL,
					Branch:    u.Branch,
					Points:    u.Points,
				})
			}
			return nil
		})
		return entries, err
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]LeaderboardEntry)
	return append([]LeaderboardEntry(nil), shared...), nil
}

// UserStats computes a user's statistics from one consistent snapshot.
func (s *QueryService) UserStats(ctx context.Context, userID uint) (*UserStats, error) {
	var stats *UserStats
	err := s.repo.Transaction(ctx, func(tx repository.Repository) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		doubts, err := tx.ListDoubtsByAuthor(ctx, userID)
		if err != nil {
			return err
		}
		answers, err := tx.ListAnswersByAuthor(ctx, userID)
		if err != nil {
			return err
		}

		out := &UserStats{
			UserID:       user.ID,
			Points:       user.Points,
			DoubtsPosted: len(doubts),
			AnswersGiven: len(answers),
		}

		rated, total := 0, 0
		seen := make(map[uint]struct{}, len(answers))
		answered := make([]uint, 0, len(answers))
		for _, a := range answers {
			if a.Feedback != nil {
				rated++
				total += a.Feedback.Rating
			}
			if _, ok := seen[a.DoubtID]; !ok {
				seen[a.DoubtID] = struct{}{}
				answered = append(answered, a.DoubtID)
			}
		}
		if rated > 0 {
			out.AverageRating = float64(total) / float64(rated)
		}

		answeredDoubts, err := tx.GetDoubtsByIDs(ctx, answered)
		if err != nil {
			return err
		}
		if len(answeredDoubts) > 0 {
			resolved := 0
			for _, d := range answeredDoubts {
				if d.IsResolved {
					resolved++
				}
			}
			out.ResolvedPercentage = float64(resolved) / float64(len(answeredDoubts)) * 100
		}

		stats = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
