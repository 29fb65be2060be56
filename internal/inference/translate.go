package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"
)

// MaxTranslateChars bounds the text accepted for translation.
const MaxTranslateChars = 8000

// Translate renders text in targetLanguage. Failures are returned as
// EXTERNAL_SERVICE_ERROR; there is no fallback.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	text = strings.TrimSpace(text)
	targetLanguage = strings.TrimSpace(targetLanguage)
	if text == "" || targetLanguage == "" {
		return "", models.NewValidationError("text and target_language are required")
	}
	if len([]rune(text)) > MaxTranslateChars {
		return "", models.NewValidationError(fmt.Sprintf("text must be at most %d characters", MaxTranslateChars))
	}

	out, err := c.Complete(ctx, CompletionRequest{
		Prompt: fmt.Sprintf(
			"Translate the following text to %s. Return only the translated text.\n\nText to translate:\n%q",
			targetLanguage, text,
		),
	})
	if err != nil {
		observability.Logger.ErrorContext(ctx, "translation failed",
			slog.String("target_language", targetLanguage),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrNotConfigured) {
			return "", models.NewExternalServiceError("Feature not available: API key is not configured", err)
		}
		return "", models.NewExternalServiceError("Translation failed. Please try again later.", err)
	}
	return out, nil
}
