package server

import (
	"doubtdesk/internal/featureflags"
	"doubtdesk/internal/middleware"
	"doubtdesk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Translate translates text into the requested language.
func (s *Server) Translate(c *fiber.Ctx) error {
	if !s.featureFlags.Enabled(featureflags.Translation, middleware.UserID(c)) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Translation is not enabled"))
	}

	var req struct {
		Text           string `json:"text"`
		TargetLanguage string `json:"target_language"`
	}
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}

	translated, err := s.inference.Translate(c.UserContext(), req.Text, req.TargetLanguage)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"translated_text": translated})
}
