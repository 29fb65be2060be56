package server

import (
	"doubtdesk/internal/middleware"
	"doubtdesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListAnswers returns every answer, newest first.
func (s *Server) ListAnswers(c *fiber.Ctx) error {
	answers, err := s.queryService.AnswersFor(c.UserContext(), nil)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(answers)
}

// ListDoubtAnswers returns the answers of one doubt, newest first.
func (s *Server) ListDoubtAnswers(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	answers, err := s.queryService.AnswersFor(c.UserContext(), &id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(answers)
}

// CreateAnswer posts an answer by the current user on a doubt.
func (s *Server) CreateAnswer(c *fiber.Ctx) error {
	doubtID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req service.PostAnswerInput
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	req.AuthorID = middleware.UserID(c)
	req.DoubtID = doubtID

	answer, err := s.contentService.PostAnswer(c.UserContext(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(answer)
}

// SubmitFeedback rates an answer. Only the doubt's author may rate, except
// admins.
func (s *Server) SubmitFeedback(c *fiber.Ctx) error {
	answerID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req service.SubmitFeedbackInput
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}
	req.AnswerID = answerID
	req.ActorID = middleware.UserID(c)
	if middleware.IsAdmin(c) {
		req.ActorID = 0
	}

	result, err := s.feedbackService.SubmitFeedback(c.UserContext(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(result)
}
