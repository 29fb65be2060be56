package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/config"
	"doubtdesk/internal/database"
	"doubtdesk/internal/inference"
	"doubtdesk/internal/middleware"
	"doubtdesk/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "server-test-secret-that-is-long-enough"

// aiReply answers every chat completion with the same content.
type aiReply struct {
	content string
	status  int
}

func (r aiReply) Do(_ *http.Request) (*http.Response, error) {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": r.content}}},
	})
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(b))}, nil
}

type testEnv struct {
	srv *Server
	app *fiber.App
}

func newTestEnv(t *testing.T, flags string, ai *inference.Client) *testEnv {
	t.Helper()
	return newTestEnvWithCache(t, flags, ai, nil)
}

func newTestEnvWithCache(t *testing.T, flags string, ai *inference.Client, c *cache.Cache) *testEnv {
	t.Helper()
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := &config.Config{
		Env:            "test",
		Port:           "0",
		JWTSecret:      testSecret,
		AllowedOrigins: "http://localhost:5173",
		FeatureFlags:   flags,
	}
	srv, err := NewServerWithDeps(cfg, db, c, ai)
	require.NoError(t, err)
	return &testEnv{srv: srv, app: srv.NewApp()}
}

func (e *testEnv) user(t *testing.T, name string, role string, granted bool) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@campus.edu", Role: role, AccessGranted: granted}
	require.NoError(t, e.srv.repo.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) do(t *testing.T, method, path string, as *models.User, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := middleware.IssueToken(testSecret, as.ID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealthChecks(t *testing.T) {
	env := newTestEnv(t, "", nil)

	status, _ := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	ready := decode[map[string]any](t, body)
	assert.Equal(t, "healthy", ready["status"])
	assert.Equal(t, map[string]any{"database": "healthy", "redis": "disabled"}, ready["checks"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.do(t, http.MethodGet, "/health", nil, nil)

	status, body := env.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t, "", nil)
	pending := env.user(t, "pending", models.RoleStudent, false)

	status, _ := env.do(t, http.MethodGet, "/api/doubts", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/api/doubts", pending, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, "", nil)
	status, _ := env.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestDoubtAnswerFeedbackFlow(t *testing.T) {
	ai := inference.New(inference.Options{APIKey: "key", HTTPClient: aiReply{content: `{"points": 14}`}})
	env := newTestEnv(t, "", ai)
	answerer := env.user(t, "alice", models.RoleStudent, true)
	asker := env.user(t, "bob", models.RoleStudent, true)

	status, body := env.do(t, http.MethodPost, "/api/doubts", asker, map[string]any{
		"title":       "Kirchhoff's laws",
		"description": "Why does KVL hold around any loop?",
		"subject":     models.SubjectPhysics,
		"year":        models.YearFirst,
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	doubt := decode[models.Doubt](t, body)
	assert.Equal(t, asker.ID, doubt.AuthorID)
	assert.Equal(t, "bob", doubt.AuthorName)
	assert.False(t, doubt.IsResolved)

	status, body = env.do(t, http.MethodPost, "/api/doubts/"+itoa(doubt.ID)+"/answers", answerer, map[string]any{
		"text": "Energy is conserved, so the potential around a closed loop sums to zero.",
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	answer := decode[models.Answer](t, body)
	assert.Equal(t, answerer.ID, answer.AuthorID)

	// only the asker may rate
	status, _ = env.do(t, http.MethodPost, "/api/answers/"+itoa(answer.ID)+"/feedback", answerer,
		map[string]any{"rating": 5, "review": "self review"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = env.do(t, http.MethodPost, "/api/answers/"+itoa(answer.ID)+"/feedback", asker,
		map[string]any{"rating": 5, "review": "Clear and correct."})
	require.Equal(t, fiber.StatusOK, status, string(body))
	result := decode[map[string]any](t, body)
	assert.Equal(t, true, result["ai_analyzed"])
	assert.EqualValues(t, 14, result["points"])

	status, _ = env.do(t, http.MethodPost, "/api/answers/"+itoa(answer.ID)+"/feedback", asker,
		map[string]any{"rating": 1, "review": "changed my mind"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/api/doubts/"+itoa(doubt.ID)+"/answers", asker,
		map[string]any{"text": "Answering my own doubt"})
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = env.do(t, http.MethodPost, "/api/doubts/"+itoa(doubt.ID)+"/answers", answerer,
		map[string]any{"video_url": "https://cdn.example.com/kvl.mp4"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = env.do(t, http.MethodGet, "/api/doubts/"+itoa(doubt.ID), asker, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, decode[models.Doubt](t, body).IsResolved)

	status, body = env.do(t, http.MethodGet, "/api/doubts/"+itoa(doubt.ID)+"/answers", asker, nil)
	require.Equal(t, fiber.StatusOK, status)
	answers := decode[[]models.Answer](t, body)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].Feedback)
	assert.Equal(t, 5, answers[0].Feedback.Rating)

	status, body = env.do(t, http.MethodGet, "/api/leaderboard", asker, nil)
	require.Equal(t, fiber.StatusOK, status)
	board := decode[[]map[string]any](t, body)
	require.Len(t, board, 2)
	assert.Equal(t, "alice", board[0]["name"])
	assert.EqualValues(t, 14, board[0]["points"])
	assert.EqualValues(t, 0, board[1]["points"])

	status, body = env.do(t, http.MethodGet, "/api/users/"+itoa(answerer.ID)+"/stats", asker, nil)
	require.Equal(t, fiber.StatusOK, status)
	stats := decode[map[string]any](t, body)
	assert.EqualValues(t, 14, stats["points"])
	assert.EqualValues(t, 1, stats["answers_given"])
	assert.EqualValues(t, 100, stats["resolved_percentage"])
}

func TestFeedbackFallsBackWithoutAI(t *testing.T) {
	env := newTestEnv(t, "", nil)
	answerer := env.user(t, "carol", models.RoleStudent, true)
	asker := env.user(t, "dave", models.RoleStudent, true)

	_, body := env.do(t, http.MethodPost, "/api/doubts", asker, map[string]any{
		"title": "Limits", "description": "What is a limit?",
		"subject": models.SubjectMathematics, "year": models.YearFirst,
	})
	doubt := decode[models.Doubt](t, body)
	status, body := env.do(t, http.MethodPost, "/api/doubts/"+itoa(doubt.ID)+"/answers", answerer,
		map[string]any{"audio_url": "https://cdn.example.com/limits.mp3"})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	answer := decode[models.Answer](t, body)
	assert.Empty(t, answer.Text)

	status, body = env.do(t, http.MethodPost, "/api/answers/"+itoa(answer.ID)+"/feedback", asker,
		map[string]any{"rating": 4, "review": "Short but right."})
	require.Equal(t, fiber.StatusOK, status, string(body))
	result := decode[map[string]any](t, body)
	assert.Equal(t, false, result["ai_analyzed"])
	assert.EqualValues(t, 8, result["points"])
}

func TestFeedbackValidation(t *testing.T) {
	env := newTestEnv(t, "", nil)
	asker := env.user(t, "erin", models.RoleStudent, true)

	status, _ := env.do(t, http.MethodPost, "/api/answers/999/feedback", asker, map[string]any{"rating": 9, "review": "ok"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/answers/999/feedback", asker, map[string]any{"rating": 3})
	assert.Equal(t, fiber.StatusBadRequest, status, "review is required")

	status, _ = env.do(t, http.MethodPost, "/api/answers/999/feedback", asker, map[string]any{"rating": 3, "review": "ok"})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body := env.do(t, http.MethodPost, "/api/answers/abc/feedback", asker, map[string]any{"rating": 3, "review": "ok"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, string(body), "Invalid ID")
}

func TestAdminOnlyRoutes(t *testing.T) {
	env := newTestEnv(t, "", nil)
	admin := env.user(t, "root", models.RoleAdmin, true)
	student := env.user(t, "frank", models.RoleStudent, true)
	other := env.user(t, "grace", models.RoleStudent, false)

	_, body := env.do(t, http.MethodPost, "/api/doubts", student, map[string]any{
		"title": "Moles", "description": "What is a mole?",
		"subject": models.SubjectChemistry, "year": models.YearSecond,
	})
	doubt := decode[models.Doubt](t, body)

	status, _ := env.do(t, http.MethodDelete, "/api/doubts/"+itoa(doubt.ID), student, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = env.do(t, http.MethodDelete, "/api/doubts/"+itoa(doubt.ID), admin, nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, _ = env.do(t, http.MethodGet, "/api/doubts/"+itoa(doubt.ID), admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPatch, "/api/users/"+itoa(other.ID)+"/access", student,
		map[string]any{"access_granted": true})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPatch, "/api/users/"+itoa(other.ID)+"/access", admin, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPatch, "/api/users/"+itoa(other.ID)+"/access", admin,
		map[string]any{"access_granted": true})
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, decode[models.User](t, body).AccessGranted)

	status, body = env.do(t, http.MethodPost, "/api/users", admin, map[string]any{
		"name": "Heidi", "email": "Heidi@Campus.edu", "access_granted": true,
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	assert.Equal(t, "heidi@campus.edu", decode[models.User](t, body).Email)

	status, _ = env.do(t, http.MethodPost, "/api/users", admin, map[string]any{
		"name": "Heidi again", "email": "heidi@campus.edu",
	})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestRenameUser(t *testing.T) {
	env := newTestEnv(t, "", nil)
	ivan := env.user(t, "ivan", models.RoleStudent, true)
	judy := env.user(t, "judy", models.RoleStudent, true)

	_, body := env.do(t, http.MethodPost, "/api/doubts", ivan, map[string]any{
		"title": "Recursion", "description": "How does recursion terminate?",
		"subject": models.SubjectComputerScience, "year": models.YearFirst,
	})
	doubt := decode[models.Doubt](t, body)

	status, _ := env.do(t, http.MethodPatch, "/api/users/"+itoa(ivan.ID)+"/name", judy, map[string]any{"name": "Hacked"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = env.do(t, http.MethodPatch, "/api/users/"+itoa(ivan.ID)+"/name", ivan, map[string]any{"name": "  "})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPatch, "/api/users/"+itoa(ivan.ID)+"/name", ivan, map[string]any{"name": "Ivan K"})
	require.Equal(t, fiber.StatusOK, status, string(body))
	assert.Equal(t, "Ivan K", decode[models.User](t, body).Name)

	_, body = env.do(t, http.MethodGet, "/api/doubts/"+itoa(doubt.ID), judy, nil)
	assert.Equal(t, "Ivan K", decode[models.Doubt](t, body).AuthorName)
}

func TestListDoubtsFilters(t *testing.T) {
	env := newTestEnv(t, "", nil)
	kim := env.user(t, "kim", models.RoleStudent, true)

	for _, subject := range []string{models.SubjectPhysics, models.SubjectBiology} {
		status, _ := env.do(t, http.MethodPost, "/api/doubts", kim, map[string]any{
			"title": "About " + subject, "description": "Question",
			"subject": subject, "year": models.YearThird,
		})
		require.Equal(t, fiber.StatusCreated, status)
	}

	status, body := env.do(t, http.MethodGet, "/api/doubts?subject=Biology", kim, nil)
	require.Equal(t, fiber.StatusOK, status)
	doubts := decode[[]models.Doubt](t, body)
	require.Len(t, doubts, 1)
	assert.Equal(t, models.SubjectBiology, doubts[0].Subject)

	status, body = env.do(t, http.MethodGet, "/api/doubts?resolved=false", kim, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[[]models.Doubt](t, body), 2)

	status, _ = env.do(t, http.MethodGet, "/api/doubts?resolved=maybe", kim, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/api/doubts?subject=Astrology", kim, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/answers", kim, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestTranslate(t *testing.T) {
	t.Run("flag off", func(t *testing.T) {
		env := newTestEnv(t, "translation=off", nil)
		u := env.user(t, "leo", models.RoleStudent, true)
		status, _ := env.do(t, http.MethodPost, "/api/translate", u, map[string]any{"text": "hi", "target_language": "Hindi"})
		assert.Equal(t, fiber.StatusForbidden, status)
	})

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		u := env.user(t, "mia", models.RoleStudent, true)
		status, body := env.do(t, http.MethodPost, "/api/translate", u, map[string]any{"text": "hi", "target_language": "Hindi"})
		assert.Equal(t, fiber.StatusBadGateway, status)
		assert.Contains(t, string(body), "API key is not configured")
	})

	t.Run("translated", func(t *testing.T) {
		ai := inference.New(inference.Options{APIKey: "key", HTTPClient: aiReply{content: "नमस्ते"}})
		env := newTestEnv(t, "", ai)
		u := env.user(t, "noor", models.RoleStudent, true)
		status, body := env.do(t, http.MethodPost, "/api/translate", u, map[string]any{"text": "hello", "target_language": "Hindi"})
		require.Equal(t, fiber.StatusOK, status, string(body))
		assert.JSONEq(t, `{"translated_text":"नमस्ते"}`, string(body))
	})

	t.Run("missing text", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		u := env.user(t, "omar", models.RoleStudent, true)
		status, _ := env.do(t, http.MethodPost, "/api/translate", u, map[string]any{"target_language": "Hindi"})
		assert.Equal(t, fiber.StatusBadRequest, status)
	})
}

func TestFeatureFlags(t *testing.T) {
	env := newTestEnv(t, "ai_scoring=off", nil)
	u := env.user(t, "pia", models.RoleStudent, true)

	status, body := env.do(t, http.MethodGet, "/api/features", u, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"evaluated":{"ai_scoring":false,"translation":true}}`, string(body))
}

func TestWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	env := newTestEnvWithCache(t, "translation=off", nil, cache.New(rdb))
	u := env.user(t, "quinn", models.RoleStudent, true)

	status, body := env.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", decode[map[string]any](t, body)["checks"].(map[string]any)["redis"])

	for i := 0; i < aiRequestsPerMinute; i++ {
		status, _ = env.do(t, http.MethodPost, "/api/translate", u, map[string]any{"text": "hi", "target_language": "Hindi"})
		require.Equal(t, fiber.StatusForbidden, status, "request %d", i+1)
	}
	status, _ = env.do(t, http.MethodPost, "/api/translate", u, map[string]any{"text": "hi", "target_language": "Hindi"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)

	mr.Close()
	status, body = env.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "degraded", decode[map[string]any](t, body)["status"])
}

func TestHumanizeParam(t *testing.T) {
	assert.Equal(t, "ID", humanizeParam("id"))
	assert.Equal(t, "user ID", humanizeParam("userId"))
	assert.Equal(t, "doubt answer ID", humanizeParam("doubtAnswerId"))
	assert.Equal(t, "slug", humanizeParam("slug"))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
