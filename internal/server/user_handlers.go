package server

import (
	"doubtdesk/internal/middleware"
	"doubtdesk/internal/models"
	"doubtdesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListUsers returns every user.
func (s *Server) ListUsers(c *fiber.Ctx) error {
	users, err := s.contentService.ListUsers(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(users)
}

// GetUser returns one user.
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.contentService.GetUser(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// CreateUser registers a user (admin)
func (s *Server) CreateUser(c *fiber.Ctx) error {
	var req service.CreateUserInput
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.contentService.CreateUser(c.UserContext(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// RenameUser changes a display name. Users may rename themselves; admins
// may rename anyone.
func (s *Server) RenameUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.contentService.RenameUser(c.UserContext(), service.RenameUserInput{
		ActorID:      middleware.UserID(c),
		ActorIsAdmin: middleware.IsAdmin(c),
		UserID:       id,
		Name:         req.Name,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// SetUserAccess grants or revokes platform access (admin)
func (s *Server) SetUserAccess(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		AccessGranted *bool `json:"access_granted"`
	}
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	if req.AccessGranted == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("access_granted is required"))
	}

	user, err := s.contentService.SetUserAccess(c.UserContext(), id, *req.AccessGranted)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// GetUserStats returns a user's activity summary.
func (s *Server) GetUserStats(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	stats, err := s.queryService.UserStats(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(stats)
}

// GetLeaderboard returns users ranked by points.
func (s *Server) GetLeaderboard(c *fiber.Ctx) error {
	entries, err := s.queryService.Leaderboard(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(entries)
}

// GetFeatureFlags returns the evaluated flag state for the current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"evaluated": s.featureFlags.Snapshot(middleware.UserID(c)),
	})
}
