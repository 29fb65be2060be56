package repository

import (
	"context"
	"testing"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/database"
	"doubtdesk/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupStore returns a Store over a private in-memory SQLite database.
func setupStore(t *testing.T, c *cache.Cache) (*Store, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(db, c), db
}

func seedUser(t *testing.T, s *Store, name, email string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, AvatarURL: "https://example.com/" + name + ".png", AccessGranted: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedDoubt(t *testing.T, s *Store, authorID uint, title string) *models.Doubt {
	t.Helper()
	d := &models.Doubt{
		Title:       title,
		Description: "How does " + title + " work?",
		Subject:     models.SubjectComputerScience,
		Year:        models.YearSecond,
		Branch:      models.BranchCSE,
		AuthorID:    authorID,
	}
	require.NoError(t, s.CreateDoubt(context.Background(), d))
	return d
}

func seedAnswer(t *testing.T, s *Store, doubtID, authorID uint, text string) *models.Answer {
	t.Helper()
	a := &models.Answer{DoubtID: doubtID, AuthorID: authorID, Text: text}
	require.NoError(t, s.CreateAnswer(context.Background(), a))
	return a
}
