package service

import (
	"context"
	"strings"

	"doubtdesk/internal/models"
	"doubtdesk/internal/repository"
	"doubtdesk/internal/validation"
)

// ContentService handles user, doubt and answer writes that do not involve
// scoring.
type ContentService struct {
	repo repository.Repository
}

type CreateUserInput struct {
	Name          string `json:"name" validate:"notblank,max=100"`
	Email         string `json:"email" validate:"required,email,max=254"`
	AvatarURL     string `json:"avatar_url" validate:"omitempty,http_url"`
	Role          string `json:"role" validate:"omitempty,role"`
	Branch        string `json:"branch" validate:"omitempty,branch"`
	AccessGranted bool   `json:"access_granted"`
}

type RenameUserInput struct {
	ActorID      uint
	ActorIsAdmin bool
	UserID       uint
	Name         string `json:"name" validate:"notblank,max=100"`
}

type PostDoubtInput struct {
	AuthorID    uint
	Title       string `json:"title" validate:"notblank,max=200"`
	Description string `json:"description" validate:"notblank,max=10000"`
	Subject     string `json:"subject" validate:"subject"`
	Year        string `json:"year" validate:"academic_year"`
	Branch      string `json:"branch" validate:"omitempty,branch"`
}

type PostAnswerInput struct {
	AuthorID uint
	DoubtID  uint
	// Text may be empty when the answer carries a video or audio recording.
	Text     string `json:"text" validate:"required_without_all=VideoURL AudioURL,max=10000"`
	VideoURL string `json:"video_url" validate:"omitempty,http_url,max=2048"`
	AudioURL string `json:"audio_url" validate:"omitempty,http_url,max=2048"`
}

func NewContentService(repo repository.Repository) *ContentService {
	return &ContentService{repo: repo}
}

func (s *ContentService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Name = validation.SanitizePlain(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.AvatarURL = strings.TrimSpace(in.AvatarURL)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = models.RoleStudent
	}

	user := &models.User{
		Name:          in.Name,
		Email:         in.Email,
		AvatarURL:     in.AvatarURL,
		Role:          role,
		Branch:        in.Branch,
		AccessGranted: in.AccessGranted,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *ContentService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *ContentService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.repo.ListUsers(ctx)
}

// RenameUser changes a display name everywhere it appears. Only the user
// themself or an admin may do it; a zero ActorID skips the check.
func (s *ContentService) RenameUser(ctx context.Context, in RenameUserInput) (*models.User, error) {
	if in.ActorID != 0 && in.ActorID != in.UserID && !in.ActorIsAdmin {
		return nil, models.NewForbiddenError("You can only rename yourself")
	}
	in.Name = validation.SanitizePlain(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.repo.RenameUser(ctx, in.UserID, in.Name)
}

func (s *ContentService) SetUserAccess(ctx context.Context, userID uint, granted bool) (*models.User, error) {
	return s.repo.SetUserAccess(ctx, userID, granted)
}

func (s *ContentService) PostDoubt(ctx context.Context, in PostDoubtInput) (*models.Doubt, error) {
	in.Title = validation.SanitizePlain(in.Title)
	in.Description = validation.NormalizeText(in.Description)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	doubt := &models.Doubt{
		Title:       in.Title,
		Description: in.Description,
		Subject:     in.Subject,
		Year:        in.Year,
		Branch:      in.Branch,
		AuthorID:    in.AuthorID,
	}
	if err := s.repo.CreateDoubt(ctx, doubt); err != nil {
		return nil, err
	}
	return doubt, nil
}

func (s *ContentService) PostAnswer(ctx context.Context, in PostAnswerInput) (*models.Answer, error) {
	in.Text = validation.NormalizeText(in.Text)
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	in.AudioURL = strings.TrimSpace(in.AudioURL)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	answer := &models.Answer{
		DoubtID:  in.DoubtID,
		Text:     in.Text,
		VideoURL: in.VideoURL,
		AudioURL: in.AudioURL,
		AuthorID: in.AuthorID,
	}
	if err := s.repo.CreateAnswer(ctx, answer); err != nil {
		return nil, err
	}
	return answer, nil
}

func (s *ContentService) GetDoubt(ctx context.Context, id uint) (*models.Doubt, error) {
	return s.repo.GetDoubt(ctx, id)
}

// ListDoubts returns the feed, newest first. Unknown filter values are
// rejected rather than silently matching nothing.
func (s *ContentService) ListDoubts(ctx context.Context, filter models.DoubtFilter) ([]models.Doubt, error) {
	if filter.Subject != "" && !models.IsValidSubject(filter.Subject) {
		return nil, models.NewValidationError("Unknown subject: " + filter.Subject)
	}
	if filter.Year != "" && !models.IsValidYear(filter.Year) {
		return nil, models.NewValidationError("Unknown year: " + filter.Year)
	}
	if filter.Branch != "" && !models.IsValidBranch(filter.Branch) {
		return nil, models.NewValidationError("Unknown branch: " + filter.Branch)
	}
	return s.repo.ListDoubts(ctx, filter)
}

func (s *ContentService) DeleteDoubt(ctx context.Context, id uint) error {
	return s.repo.DeleteDoubt(ctx, id)
}
