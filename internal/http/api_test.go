package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskapi/internal/auth"
	"taskapi/internal/docstore"
	"taskapi/internal/docstore/s3store"
	"taskapi/internal/docstore/s3store/s3storetest"
	"taskapi/internal/docstore/sqlite"
	"taskapi/internal/observability"
	"taskapi/internal/repository/document"
	"taskapi/internal/service"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

type testServer struct {
	router *gin.Engine
	tokens *auth.TokenCodec
}

func openStore(t *testing.T, backend string) docstore.Gateway {
	t.Helper()
	if backend == "s3" {
		store, err := s3store.New(s3storetest.NewClient(), "bucket", "taskapi")
		require.NoError(t, err)
		return store
	}
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerOn(t, "sqlite")
}

// eachBackend runs fn against a fresh server per document store backend.
func eachBackend(t *testing.T, fn func(t *testing.T, s *testServer)) {
	for _, backend := range []string{"sqlite", "s3"} {
		t.Run(backend, func(t *testing.T) {
			fn(t, newTestServerOn(t, backend))
		})
	}
}

func newTestServerOn(t *testing.T, backend string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := logtest.NewNullLogger()
	store := openStore(t, backend)

	tokens, err := auth.NewTokenCodec(testSecret, time.Hour, logger)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	gw := observability.InstrumentGateway(store, metrics, backend)

	users := service.NewUserService(document.NewUserRepository(gw), tokens, logger)
	tasks := service.NewTaskService(document.NewTaskRepository(gw, logger))

	router := gin.New()
	handler, err := NewHandler(users, tasks, tokens, Config{
		AppName:       "Task API",
		AllowedOrigin: "https://app.example.com",
		Logger:        logger,
		Metrics:       metrics,
		Gatherer:      registry,
	})
	require.NoError(t, err)
	handler.RegisterRoutes(router)

	return &testServer{router: router, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) register(t *testing.T, email string) sessionResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"email": email})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionResponse](t, rec)
}

func (s *testServer) createTask(t *testing.T, token string, body map[string]any) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/tasks", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)["id"]
}

func TestLiveness(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task API is running!", rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	reg := s.register(t, "a@example.com")
	assert.Equal(t, "User registered successfully.", reg.Message)
	assert.NotEmpty(t, reg.UserID)
	userID, err := s.tokens.Verify(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, userID)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"email": "a@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User with this email already exists.", decode[map[string]string](t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "a@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[sessionResponse](t, rec)
	assert.Equal(t, reg.UserID, login.UserID)
	assert.Equal(t, "Logged in successfully.", login.Message)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials.", decode[map[string]string](t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@example.com", decode[map[string]string](t, rec)["email"])
}

func TestPasswordProtectedLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"email": "p@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"email": "p@example.com", "password": "long enough"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "p@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "p@example.com", "password": "long enough"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "a@example.com")

	rec := s.do(t, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token, authorization denied.", decode[map[string]string](t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/api/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token is not valid.", decode[map[string]string](t, rec)["message"])

	for _, header := range []string{"bearer " + reg.Token, "Bearer", "Bearer ", "Token " + reg.Token} {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}

	parts := strings.Split(reg.Token, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	rec = s.do(t, http.MethodGet, "/api/tasks", tampered, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tasks", reg.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTaskLifecycle(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *testServer) {
		u1 := s.register(t, "u1@example.com")
		u2 := s.register(t, "u2@example.com")

		id := s.createTask(t, u1.Token, map[string]any{"title": "buy milk", "completed": false})

		rec := s.do(t, http.MethodGet, "/api/tasks/"+id, u1.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		task := decode[TaskResponse](t, rec)
		assert.Equal(t, "buy milk", task.Title)
		assert.False(t, task.Completed)
		assert.Equal(t, u1.UserID, task.UserID)

		rec = s.do(t, http.MethodGet, "/api/tasks/"+id, u2.Token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotContains(t, rec.Body.String(), "buy milk")

		rec = s.do(t, http.MethodPut, "/api/tasks/"+id, u1.Token, map[string]any{"completed": true})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/api/tasks/"+id, u1.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[TaskResponse](t, rec).Completed)

		rec = s.do(t, http.MethodPut, "/api/tasks/"+id, u2.Token, map[string]any{"completed": false})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = s.do(t, http.MethodDelete, "/api/tasks/"+id, u2.Token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = s.do(t, http.MethodDelete, "/api/tasks/"+id, u1.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Task deleted successfully.", decode[map[string]string](t, rec)["message"])

		rec = s.do(t, http.MethodGet, "/api/tasks/"+id, u1.Token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCreateTaskValidation(t *testing.T) {
	s := newTestServer(t)
	u := s.register(t, "a@example.com")

	for name, body := range map[string]any{
		"missing title":     map[string]any{"completed": false},
		"blank title":       map[string]any{"title": "   ", "completed": false},
		"missing completed": map[string]any{"title": "a"},
		"bad due date":      map[string]any{"title": "a", "completed": false, "dueDate": "next tuesday"},
		"not json":          "{",
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/tasks", u.Token, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	id := s.createTask(t, u.Token, map[string]any{
		"title":       "dentist",
		"description": "bring forms",
		"completed":   "yes",
		"dueDate":     "2025-09-01",
	})
	rec := s.do(t, http.MethodGet, "/api/tasks/"+id, u.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	task := decode[TaskResponse](t, rec)
	assert.True(t, task.Completed)
	assert.Equal(t, "bring forms", task.Description)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, "2025-09-01T00:00:00Z", *task.DueDate)
}

func TestListTasksFiltersByCompletion(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *testServer) {
		u1 := s.register(t, "u1@example.com")
		u2 := s.register(t, "u2@example.com")

		open := s.createTask(t, u1.Token, map[string]any{"title": "open", "completed": false})
		done := s.createTask(t, u1.Token, map[string]any{"title": "done", "completed": true})
		s.createTask(t, u2.Token, map[string]any{"title": "theirs", "completed": true})

		rec := s.do(t, http.MethodGet, "/api/tasks", u1.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		all := decode[[]TaskResponse](t, rec)
		require.Len(t, all, 2)
		assert.Equal(t, []string{done, open}, []string{all[0].ID, all[1].ID}, "newest first")

		rec = s.do(t, http.MethodGet, "/api/tasks?completed=TRUE", u1.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		completed := decode[[]TaskResponse](t, rec)
		require.Len(t, completed, 1)
		assert.Equal(t, done, completed[0].ID)

		rec = s.do(t, http.MethodGet, "/api/tasks?completed=false", u1.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		pending := decode[[]TaskResponse](t, rec)
		require.Len(t, pending, 1)
		assert.Equal(t, open, pending[0].ID)

		u3 := s.register(t, "u3@example.com")
		rec = s.do(t, http.MethodGet, "/api/tasks", u3.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestUpdateTaskIgnoresImmutableFields(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *testServer) {
		u1 := s.register(t, "u1@example.com")
		u2 := s.register(t, "u2@example.com")
		id := s.createTask(t, u1.Token, map[string]any{"title": "a", "completed": false})

		before := decode[TaskResponse](t, s.do(t, http.MethodGet, "/api/tasks/"+id, u1.Token, nil))

		rec := s.do(t, http.MethodPut, "/api/tasks/"+id, u1.Token, map[string]any{
			"userId":    u2.UserID,
			"createdAt": "1999-01-01T00:00:00Z",
			"title":     "renamed",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		after := decode[TaskResponse](t, s.do(t, http.MethodGet, "/api/tasks/"+id, u1.Token, nil))
		assert.Equal(t, "renamed", after.Title)
		assert.Equal(t, before.UserID, after.UserID)
		assert.Equal(t, before.CreatedAt, after.CreatedAt)

		rec = s.do(t, http.MethodGet, "/api/tasks/"+id, u2.Token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateTaskValidation(t *testing.T) {
	s := newTestServer(t)
	u := s.register(t, "a@example.com")
	id := s.createTask(t, u.Token, map[string]any{"title": "a", "completed": false})

	for name, body := range map[string]any{
		"empty object":  map[string]any{},
		"no body":       nil,
		"blank title":   map[string]any{"title": ""},
		"numeric title": map[string]any{"title": 5},
		"bad due date":  map[string]any{"dueDate": "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, "/api/tasks/"+id, u.Token, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := s.do(t, http.MethodPut, "/api/tasks/"+id, u.Token, map[string]any{"completed": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[TaskResponse](t, s.do(t, http.MethodGet, "/api/tasks/"+id, u.Token, nil)).Completed)

	rec = s.do(t, http.MethodPut, "/api/tasks/missing", u.Token, map[string]any{"completed": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@example.com")

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `taskapi_http_requests_total{method="POST",path="/api/auth/register",status="201"} 1`)
	assert.Contains(t, rec.Body.String(), `taskapi_store_operations_total{backend="sqlite",operation="create",status="success"} 1`)
}
