// Package seed populates the database with the demo dataset and with
// generated content for development and load testing.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed fixtures/demo.yaml
var demoFixture []byte

// ErrAlreadySeeded is returned by LoadDemo when users already exist.
var ErrAlreadySeeded = errors.New("database already contains users")

// DemoUserEmail is the account the demo sign-in maps to.
const DemoUserEmail = "student@college.edu"

type fixtureUser struct {
	Key       string `yaml:"key"`
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	AvatarURL string `yaml:"avatar_url"`
	Role      string `yaml:"role"`
	Branch    string `yaml:"branch"`
	Points    int    `yaml:"points"`
}

type fixtureDoubt struct {
	Key         string `yaml:"key"`
	Author      string `yaml:"author"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Subject     string `yaml:"subject"`
	Year        string `yaml:"year"`
	Age         string `yaml:"age"`
	Resolved    bool   `yaml:"resolved"`
}

type fixtureAnswer struct {
	Doubt    string           `yaml:"doubt"`
	Author   string           `yaml:"author"`
	Age      string           `yaml:"age"`
	Text     string           `yaml:"text"`
	Feedback *models.Feedback `yaml:"feedback"`
}

// Fixture is a parsed demo dataset.
type Fixture struct {
	Users   []fixtureUser   `yaml:"users"`
	Doubts  []fixtureDoubt  `yaml:"doubts"`
	Answers []fixtureAnswer `yaml:"answers"`
}

// ParseFixture decodes and checks a fixture document.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	users := make(map[string]bool, len(f.Users))
	for _, u := range f.Users {
		if u.Key == "" || u.Email == "" || u.Name == "" {
			return nil, fmt.Errorf("fixture user %q: key, name and email are required", u.Key)
		}
		if users[u.Key] {
			return nil, fmt.Errorf("fixture user %q defined twice", u.Key)
		}
		users[u.Key] = true
	}

	doubts := make(map[string]bool, len(f.Doubts))
	for _, d := range f.Doubts {
		if !users[d.Author] {
			return nil, fmt.Errorf("fixture doubt %q: unknown author %q", d.Key, d.Author)
		}
		if !models.IsValidSubject(d.Subject) || !models.IsValidYear(d.Year) {
			return nil, fmt.Errorf("fixture doubt %q: invalid subject or year", d.Key)
		}
		if _, err := time.ParseDuration(d.Age); err != nil {
			return nil, fmt.Errorf("fixture doubt %q: %w", d.Key, err)
		}
		doubts[d.Key] = true
	}

	for i, a := range f.Answers {
		if !doubts[a.Doubt] || !users[a.Author] {
			return nil, fmt.Errorf("fixture answer %d: unknown doubt %q or author %q", i, a.Doubt, a.Author)
		}
		if _, err := time.ParseDuration(a.Age); err != nil {
			return nil, fmt.Errorf("fixture answer %d: %w", i, err)
		}
		if a.Feedback != nil && (a.Feedback.Rating < models.MinRating || a.Feedback.Rating > models.MaxRating) {
			return nil, fmt.Errorf("fixture answer %d: rating out of range", i)
		}
	}
	return &f, nil
}

// Seeder writes seed data straight through GORM. It is meant for empty
// development databases, not for a running deployment with a warm cache.
type Seeder struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSeeder returns a Seeder bound to db.
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db, now: time.Now}
}

// ClearAll removes every answer, doubt and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, model := range []any{&models.Answer{}, &models.Doubt{}, &models.User{}} {
			if err := all.Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		return nil
	})
}

// LoadDemo inserts the embedded demo dataset in one transaction and returns
// the created users by fixture key.
func (s *Seeder) LoadDemo(ctx context.Context) (map[string]*models.User, error) {
	f, err := ParseFixture(demoFixture)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, f)
}

// Load inserts f. It refuses to run against a database that has users.
func (s *Seeder) Load(ctx context.Context, f *Fixture) (map[string]*models.User, error) {
	now := s.now()
	users := make(map[string]*models.User, len(f.Users))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadySeeded
		}

		for _, fu := range f.Users {
			role := fu.Role
			if role == "" {
				role = models.RoleStudent
			}
			u := &models.User{
				Name:          fu.Name,
				Email:         fu.Email,
				AvatarURL:     fu.AvatarURL,
				Role:          role,
				Branch:        fu.Branch,
				Points:        fu.Points,
				AccessGranted: true,
			}
			if err := tx.Create(u).Error; err != nil {
				return fmt.Errorf("create user %s: %w", fu.Key, err)
			}
			users[fu.Key] = u
		}

		doubts := make(map[string]*models.Doubt, len(f.Doubts))
		for _, fd := range f.Doubts {
			age, _ := time.ParseDuration(fd.Age)
			author := users[fd.Author]
			d := &models.Doubt{
				Title:        fd.Title,
				Description:  fd.Description,
				Subject:      fd.Subject,
				Year:         fd.Year,
				Branch:       author.Branch,
				AuthorID:     author.ID,
				AuthorName:   author.Name,
				AuthorAvatar: author.AvatarURL,
				IsResolved:   fd.Resolved,
				CreatedAt:    now.Add(-age),
			}
			if err := tx.Create(d).Error; err != nil {
				return fmt.Errorf("create doubt %s: %w", fd.Key, err)
			}
			doubts[fd.Key] = d
		}

		for i, fa := range f.Answers {
			age, _ := time.ParseDuration(fa.Age)
			author := users[fa.Author]
			a := &models.Answer{
				DoubtID:      doubts[fa.Doubt].ID,
				Text:         fa.Text,
				AuthorID:     author.ID,
				AuthorName:   author.Name,
				AuthorAvatar: author.AvatarURL,
				CreatedAt:    now.Add(-age),
			}
			if fa.Feedback != nil {
				a.SetFeedback(*fa.Feedback, feedbackTime(a.CreatedAt, now))
			}
			if err := tx.Create(a).Error; err != nil {
				return fmt.Errorf("create answer %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.Logger.InfoContext(ctx, "demo data loaded",
		slog.Int("users", len(f.Users)),
		slog.Int("doubts", len(f.Doubts)),
		slog.Int("answers", len(f.Answers)),
	)
	return users, nil
}

// feedbackTime places feedback an hour after the answer, never in the future.
func feedbackTime(answered, now time.Time) time.Time {
	at := answered.Add(time.Hour)
	if at.After(now) {
		return now
	}
	return at
}
