package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// ListUsersRanked orders by points descending, then name, then id.
	ListUsersRanked(ctx context.Context) ([]models.User, error)
	RenameUser(ctx context.Context, id uint, name string) (*models.User, error)
	SetUserAccess(ctx context.Context, id uint, granted bool) (*models.User, error)
	AddPoints(ctx context.Context, id uint, delta int) error
}

type userRepository struct {
	base
}

var userLog = observability.NewRepoLogger("users")

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleStudent
	}
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.NewConflictError("A user with this email already exists")
			}
			return err
		}
		return nil
	}, func() []string {
		return []string{cache.LeaderboardKey}
	})
	if err != nil {
		userLog.LogError(ctx, err, "create")
		return err
	}
	userLog.LogMutation(ctx, "create", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

func (r *userRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	load := func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			return lookupError(err, "User", id)
		}
		return nil
	}

	if r.inTx() {
		if err := load(); err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err := r.cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, load); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.TrimSpace(email)).First(&user).Error
	if err != nil {
		return nil, lookupError(err, "User", email)
	}
	return &user, nil
}

func (r *userRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, asAppError(err)
	}
	return users, nil
}

func (r *userRepository) ListUsersRanked(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Order("points DESC").
		Order("name ASC").
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, asAppError(err)
	}
	return users, nil
}

func (r *userRepository) RenameUser(ctx context.Context, id uint, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("Name is required")
	}

	var (
		user     models.User
		doubtIDs []uint
	)
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
			return lookupError(err, "User", id)
		}
		if err := tx.Model(&user).Update("name", name).Error; err != nil {
			return err
		}
		user.Name = name
		if err := tx.Model(&models.Doubt{}).Where("author_id = ?", id).Update("author_name", name).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Answer{}).Where("author_id = ?", id).Update("author_name", name).Error; err != nil {
			return err
		}
		return tx.Model(&models.Doubt{}).Where("author_id = ?", id).Pluck("id", &doubtIDs).Error
	}, func() []string {
		keys := []string{cache.UserKey(id), cache.LeaderboardKey}
		for _, doubtID := range doubtIDs {
			keys = append(keys, cache.DoubtKey(doubtID))
		}
		return keys
	})
	if err != nil {
		userLog.LogError(ctx, err, "rename")
		return nil, err
	}
	userLog.LogMutation(ctx, "rename",
		slog.Uint64("user_id", uint64(id)),
		slog.Int("doubts_touched", len(doubtIDs)),
	)
	return &user, nil
}

func (r *userRepository) SetUserAccess(ctx context.Context, id uint, granted bool) (*models.User, error) {
	var user models.User
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return lookupError(err, "User", id)
		}
		if err := tx.Model(&user).Update("access_granted", granted).Error; err != nil {
			return err
		}
		user.AccessGranted = granted
		return nil
	}, func() []string {
		return []string{cache.UserKey(id), cache.LeaderboardKey}
	})
	if err != nil {
		userLog.LogError(ctx, err, "set_access")
		return nil, err
	}
	userLog.LogMutation(ctx, "set_access",
		slog.Uint64("user_id", uint64(id)),
		slog.Bool("granted", granted),
	)
	return &user, nil
}

func (r *userRepository) AddPoints(ctx context.Context, id uint, delta int) error {
	if delta < 0 {
		return models.NewValidationError("Points delta must not be negative")
	}
	err := r.mutate(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", id).
			UpdateColumn("points", gorm.Expr("points + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("User", id)
		}
		return nil
	}, func() []string {
		return []string{cache.UserKey(id), cache.LeaderboardKey}
	})
	if err != nil {
		userLog.LogError(ctx, err, "add_points")
		return err
	}
	userLog.LogMutation(ctx, "add_points",
		slog.Uint64("user_id", uint64(id)),
		slog.Int("delta", delta),
	)
	return nil
}

// lockAuthor reads the author row under a share lock so a concurrent rename
// cannot interleave with the copy of its name.
func lockAuthor(tx *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, err
	}
	return &user, nil
}
