package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/database"
	"doubtdesk/internal/models"
	"doubtdesk/internal/repository"
	"doubtdesk/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStrategy stands in for the inference-backed scorer.
type stubStrategy struct {
	points float64
	err    error
	calls  atomic.Int32
}

func (s *stubStrategy) Name() string { return "stub-ai" }

func (s *stubStrategy) Score(_ context.Context, _ models.Feedback) (float64, error) {
	s.calls.Add(1)
	return s.points, s.err
}

type fixture struct {
	repo     *repository.Store
	content  *ContentService
	feedback *FeedbackService
	query    *QueryService
	primary  *stubStrategy
}

func newFixture(t *testing.T, c *cache.Cache) *fixture {
	t.Helper()
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := repository.NewStore(db, c)
	primary := &stubStrategy{points: 14}
	return &fixture{
		repo:     repo,
		content:  NewContentService(repo),
		feedback: NewFeedbackService(repo, scoring.NewEngine(primary)),
		query:    NewQueryService(repo, c),
		primary:  primary,
	}
}

func (f *fixture) user(t *testing.T, name, email string) *models.User {
	t.Helper()
	u, err := f.content.CreateUser(context.Background(), CreateUserInput{Name: name, Email: email, AccessGranted: true})
	require.NoError(t, err)
	return u
}

func (f *fixture) doubt(t *testing.T, authorID uint, title string) *models.Doubt {
	t.Helper()
	d, err := f.content.PostDoubt(context.Background(), PostDoubtInput{
		AuthorID:    authorID,
		Title:       title,
		Description: "Can someone explain " + title + "?",
		Subject:     models.SubjectPhysics,
		Year:        models.YearFirst,
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) answer(t *testing.T, doubtID, authorID uint, text string) *models.Answer {
	t.Helper()
	a, err := f.content.PostAnswer(context.Background(), PostAnswerInput{DoubtID: doubtID, AuthorID: authorID, Text: text})
	require.NoError(t, err)
	return a
}

func points(t *testing.T, f *fixture, id uint) int {
	t.Helper()
	u, err := f.repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Points
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)
}
