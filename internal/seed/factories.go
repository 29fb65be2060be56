package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options sizes a generated dataset.
type Options struct {
	Users   int
	Doubts  int
	Answers int
	// MaxDays bounds how far back created_at timestamps are spread.
	MaxDays int
	// Seed makes generation repeatable; 0 picks a random seed.
	Seed int64
}

// Factory builds random users, doubts and answers.
type Factory struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	opts  Options
	now   time.Time
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	return &Factory{db: db, faker: gofakeit.New(opts.Seed), opts: opts, now: time.Now()}
}

// BuildUser returns an unsaved student. n keeps generated emails unique.
func (f *Factory) BuildUser(n int) *models.User {
	first, last := f.faker.FirstName(), f.faker.LastName()
	return &models.User{
		Name:          first + " " + last,
		Email:         fmt.Sprintf("%s.%s.%d@college.edu", strings.ToLower(first), strings.ToLower(last), n),
		AvatarURL:     fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		Role:          models.RoleStudent,
		Branch:        f.faker.RandomString(models.Branches()),
		AccessGranted: true,
	}
}

// BuildDoubt returns an unsaved doubt by author.
func (f *Factory) BuildDoubt(author *models.User) *models.Doubt {
	return &models.Doubt{
		Title:        strings.TrimSuffix(f.faker.Sentence(6), ".") + "?",
		Description:  f.faker.Paragraph(1, 3, 12, " "),
		Subject:      f.faker.RandomString(models.Subjects()),
		Year:         f.faker.RandomString(models.Years()),
		Branch:       author.Branch,
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorAvatar: author.AvatarURL,
		CreatedAt:    f.pastTime(f.now),
	}
}

// BuildAnswer returns an unsaved answer to doubt, posted after it.
func (f *Factory) BuildAnswer(doubt *models.Doubt, author *models.User) *models.Answer {
	return &models.Answer{
		DoubtID:      doubt.ID,
		Text:         f.faker.Paragraph(1, 4, 14, " "),
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorAvatar: author.AvatarURL,
		CreatedAt:    doubt.CreatedAt.Add(f.now.Sub(doubt.CreatedAt) / 2),
	}
}

// pastTime returns a time up to MaxDays before ref.
func (f *Factory) pastTime(ref time.Time) time.Time {
	minutes := f.faker.Number(0, f.opts.MaxDays*24*60)
	return ref.Add(-time.Duration(minutes) * time.Minute)
}

// Generate persists Users students, Doubts doubts by random students and
// Answers answers by students other than the asker. Generated content
// carries no feedback.
func (f *Factory) Generate(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0, f.opts.Users)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offset int64
		if err := tx.Model(&models.User{}).Count(&offset).Error; err != nil {
			return err
		}
		for i := 0; i < f.opts.Users; i++ {
			users = append(users, *f.BuildUser(int(offset) + i))
		}
		if len(users) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&users, 100).Error; err != nil {
			return fmt.Errorf("create users: %w", err)
		}

		doubts := make([]models.Doubt, 0, f.opts.Doubts)
		for i := 0; i < f.opts.Doubts; i++ {
			author := &users[f.faker.Number(0, len(users)-1)]
			doubts = append(doubts, *f.BuildDoubt(author))
		}
		if len(doubts) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&doubts, 100).Error; err != nil {
			return fmt.Errorf("create doubts: %w", err)
		}
		if len(users) < 2 {
			return nil
		}

		answers := make([]models.Answer, 0, f.opts.Answers)
		for i := 0; i < f.opts.Answers; i++ {
			doubt := &doubts[f.faker.Number(0, len(doubts)-1)]
			author := &users[f.faker.Number(0, len(users)-1)]
			if author.ID == doubt.AuthorID {
				author = &users[(f.indexOf(users, author.ID)+1)%len(users)]
			}
			answers = append(answers, *f.BuildAnswer(doubt, author))
		}
		if len(answers) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&answers, 100).Error; err != nil {
			return fmt.Errorf("create answers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.Logger.InfoContext(ctx, "generated seed data",
		slog.Int("users", f.opts.Users),
		slog.Int("doubts", f.opts.Doubts),
		slog.Int("answers", f.opts.Answers),
	)
	return users, nil
}

func (f *Factory) indexOf(users []models.User, id uint) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return 0
}
