package repository

import (
	"context"
	"log/slog"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"gorm.io/gorm"
)

// DoubtRepository defines the interface for doubt data operations
type DoubtRepository interface {
	CreateDoubt(ctx context.Context, doubt *models.Doubt) error
	GetDoubt(ctx context.Context, id uint) (*models.Doubt, error)
	// ListDoubts returns doubts matching filter, newest first.
	ListDoubts(ctx context.Context, filter models.DoubtFilter) ([]models.Doubt, error)
	ListDoubtsByAuthor(ctx context.Context, authorID uint) ([]models.Doubt, error)
	GetDoubtsByIDs(ctx context.Context, ids []uint) ([]models.Doubt, error)
	// DeleteDoubt removes the doubt and every answer attached to it.
	DeleteDoubt(ctx context.Context, id uint) error
}

type doubtRepository struct {
	base
}

var doubtLog = observability.NewRepoLogger("doubts")

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func (r *doubtRepository) CreateDoubt(ctx context.Context, doubt *models.Doubt) error {
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		author, err := lockAuthor(tx, doubt.AuthorID)
		if err != nil {
			return err
		}
		doubt.ID = 0
		doubt.AuthorName = author.Name
		doubt.AuthorAvatar = author.AvatarURL
		doubt.IsResolved = false
		return tx.Create(doubt).Error
	}, nil)
	if err != nil {
		doubtLog.LogError(ctx, err, "create")
		return err
	}
	doubtLog.LogMutation(ctx, "create",
		slog.Uint64("doubt_id", uint64(doubt.ID)),
		slog.Uint64("author_id", uint64(doubt.AuthorID)),
	)
	return nil
}

func (r *doubtRepository) GetDoubt(ctx context.Context, id uint) (*models.Doubt, error) {
	var doubt models.Doubt
	load := func() error {
		if err := r.db.WithContext(ctx).First(&doubt, id).Error; err != nil {
			return lookupError(err, "Doubt", id)
		}
		return nil
	}

	if r.inTx() {
		if err := load(); err != nil {
			return nil, err
		}
		return &doubt, nil
	}
	if err := r.cache.Aside(ctx, cache.DoubtKey(id), &doubt, cache.DoubtTTL, load); err != nil {
		return nil, err
	}
	return &doubt, nil
}

func (r *doubtRepository) ListDoubts(ctx context.Context, filter models.DoubtFilter) ([]models.Doubt, error) {
	query := r.db.WithContext(ctx).Model(&models.Doubt{})
	if filter.Subject != "" {
		query = query.Where("subject = ?", filter.Subject)
	}
	if filter.Year != "" {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.Branch != "" {
		query = query.Where("branch = ?", filter.Branch)
	}
	if filter.Resolved != nil {
		query = query.Where("is_resolved = ?", *filter.Resolved)
	}

	var doubts []models.Doubt
	if err := newestFirst(query).Find(&doubts).Error; err != nil {
		return nil, asAppError(err)
	}
	return doubts, nil
}

func (r *doubtRepository) ListDoubtsByAuthor(ctx context.Context, authorID uint) ([]models.Doubt, error) {
	var doubts []models.Doubt
	err := newestFirst(r.db.WithContext(ctx).Where("author_id = ?", authorID)).Find(&doubts).Error
	if err != nil {
		return nil, asAppError(err)
	}
	return doubts, nil
}

func (r *doubtRepository) GetDoubtsByIDs(ctx context.Context, ids []uint) ([]models.Doubt, error) {
	if len(ids) == 0 {
		return []models.Doubt{}, nil
	}
	var doubts []models.Doubt
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&doubts).Error; err != nil {
		return nil, asAppError(err)
	}
	return doubts, nil
}

func (r *doubtRepository) DeleteDoubt(ctx context.Context, id uint) error {
	var removed int64
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		var doubt models.Doubt
		if err := tx.Select("id").First(&doubt, id).Error; err != nil {
			return lookupError(err, "Doubt", id)
		}
		res := tx.Where("doubt_id = ?", id).Delete(&models.Answer{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Delete(&models.Doubt{}, id).Error
	}, func() []string {
		return []string{cache.DoubtKey(id)}
	})
	if err != nil {
		doubtLog.LogError(ctx, err, "delete")
		return err
	}
	doubtLog.LogMutation(ctx, "delete",
		slog.Uint64("doubt_id", uint64(id)),
		slog.Int64("answers_removed", removed),
	)
	return nil
}
