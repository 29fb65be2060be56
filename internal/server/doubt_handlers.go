package server

import (
	"strconv"

	"doubtdesk/internal/middleware"
	"doubtdesk/internal/models"
	"doubtdesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListDoubts returns the doubt feed, newest first. Optional query filters:
// subject, year, branch and resolved.
func (s *Server) ListDoubts(c *fiber.Ctx) error {
	filter := models.DoubtFilter{
		Subject: c.Query("subject"),
		Year:    c.Query("year"),
		Branch:  c.Query("branch"),
	}
	if raw := c.Query("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("resolved must be true or false"))
		}
		filter.Resolved = &resolved
	}

	doubts, err := s.contentService.ListDoubts(c.UserContext(), filter)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(doubts)
}

// GetDoubt returns one doubt.
func (s *Server) GetDoubt(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	doubt, err := s.contentService.GetDoubt(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(doubt)
}

// CreateDoubt posts a doubt authored by the current user.
func (s *Server) CreateDoubt(c *fiber.Ctx) error {
	var req service.PostDoubtInput
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	req.AuthorID = middleware.UserID(c)

	doubt, err := s.contentService.PostDoubt(c.UserContext(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doubt)
}

// DeleteDoubt removes a doubt and its answers (admin)
func (s *Server) DeleteDoubt(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.contentService.DeleteDoubt(c.UserContext(), id); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
