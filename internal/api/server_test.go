package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/catalog"
	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/events"
	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/storage"
)

const (
	aliceKey   = "alice-key-0123456789"
	carolKey   = "carol-key-0123456789"
	readerKey  = "reader-key-0123456789"
	revokedKey = "revoked-key-0123456789"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	clients := []models.ApiClient{
		{Name: "alice", OwnerID: "alice", ApiKey: aliceKey, IsActive: true, Permissions: []string{"*"}},
		{Name: "carol", OwnerID: "carol", ApiKey: carolKey, IsActive: true, Permissions: []string{"sessions:*"}},
		{Name: "reader", OwnerID: "reader", ApiKey: readerKey, IsActive: true, Permissions: []string{PermCatalogRead}},
		{Name: "revoked", OwnerID: "revoked", ApiKey: revokedKey, IsActive: false, Permissions: []string{"*"}},
	}
	for i := range clients {
		require.NoError(t, repo.CreateClient(ctx, &clients[i]))
	}

	cat, err := catalog.NewDefault()
	require.NoError(t, err)

	broker := events.NewMemoryBroker()
	t.Cleanup(func() { broker.Close() })

	engine := interview.NewEngine(repo, cat, interview.NewRandomEvaluator(7), interview.WithPublisher(broker))
	return NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, engine, cat, broker, repo)
}

func doRequest(t *testing.T, s *Server, method, path, key string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func createSession(t *testing.T, s *Server, key string) models.Session {
	t.Helper()
	rec, env := doRequest(t, s, http.MethodPost, "/api/v1/sessions", key, models.CreateSessionRequest{
		Topic:      "JavaScript",
		Difficulty: "beginner",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session models.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return session
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	rec, env := doRequest(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = doRequest(t, s, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		key    string
		path   string
		status int
		code   string
	}{
		{"missing key", "", "/api/v1/sessions", http.StatusUnauthorized, "unauthorized"},
		{"unknown key", "nope-nope-nope", "/api/v1/sessions", http.StatusUnauthorized, "unauthorized"},
		{"inactive key", revokedKey, "/api/v1/sessions", http.StatusUnauthorized, "unauthorized"},
		{"missing permission", readerKey, "/api/v1/sessions", http.StatusForbidden, "forbidden"},
		{"wildcard scope", carolKey, "/api/v1/catalog/topics", http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doRequest(t, s, http.MethodGet, tt.path, tt.key, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestXAPIKeyHeader(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/topics", nil)
	req.Header.Set("X-API-Key", readerKey)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	session := createSession(t, s, aliceKey)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "alice", session.OwnerID)
	assert.Equal(t, models.SessionInProgress, session.Status)
	assert.Equal(t, "JavaScript Interview - beginner level", session.Title)
	require.NotEmpty(t, session.Questions)

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/sessions/"+session.ID, aliceKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.Session
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, session.ID, fetched.ID)

	answer := "Closures capture variables from the enclosing lexical scope."
	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions/"+session.ID+"/submit", aliceKey,
		models.SubmitRequest{Answers: []*string{&answer}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var completed models.Session
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.Equal(t, models.SessionCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.NotEmpty(t, completed.Feedback)
	require.NotNil(t, completed.Questions[0].Score)
	assert.Equal(t, answer, *completed.Questions[0].UserAnswer)

	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions/"+session.ID+"/submit", aliceKey,
		models.SubmitRequest{Answers: []*string{&answer}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", env.Error.Code)

	rec, _ = doRequest(t, s, http.MethodDelete, "/api/v1/sessions/"+session.ID, aliceKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = doRequest(t, s, http.MethodGet, "/api/v1/sessions/"+session.ID, aliceKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestSessionsAreOwnerScoped(t *testing.T) {
	s := newTestServer(t)
	session := createSession(t, s, aliceKey)

	rec, _ := doRequest(t, s, http.MethodGet, "/api/v1/sessions/"+session.ID, carolKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doRequest(t, s, http.MethodDelete, "/api/v1/sessions/"+session.ID, carolKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/sessions", carolKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []models.Session `json:"sessions"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Zero(t, list.Total)
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		createSession(t, s, aliceKey)
	}

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/sessions?limit=2&status=in_progress", aliceKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []models.Session `json:"sessions"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Sessions, 2)

	for _, query := range []string{"limit=-1", "offset=abc", "status=archived"} {
		rec, env = doRequest(t, s, http.MethodGet, "/api/v1/sessions?"+query, aliceKey, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, "validation_error", env.Error.Code, query)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	s := newTestServer(t)

	rec, env := doRequest(t, s, http.MethodPost, "/api/v1/sessions", aliceKey, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", env.Error.Code)

	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions", aliceKey, models.CreateSessionRequest{
		Topic:      "   ",
		Difficulty: "beginner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	// Input no store column can hold is a client error, not a retryable 503
	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions", aliceKey, models.CreateSessionRequest{
		Topic:      strings.Repeat("a", interview.MaxTopicLength+1),
		Difficulty: "beginner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))

	rec, _ = doRequest(t, s, http.MethodPost, "/api/v1/sessions/unknown/submit", aliceKey, `{"answers": [1, 2]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t)

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/catalog/topics", readerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var topics struct {
		Topics []models.TopicSummary `json:"topics"`
		Total  int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &topics))
	assert.Positive(t, topics.Total)

	rec, env = doRequest(t, s, http.MethodGet, "/api/v1/catalog/challenges", readerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var challenges struct {
		Challenges []models.ChallengeTemplate `json:"challenges"`
		Total      int                        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &challenges))
	assert.Equal(t, len(challenges.Challenges), challenges.Total)
}

func TestRespondEngineError(t *testing.T) {
	tests := []struct {
		err        error
		status     int
		code       string
		retryAfter bool
	}{
		{fmt.Errorf("%w: topic is required", interview.ErrValidation), http.StatusBadRequest, "validation_error", false},
		{interview.ErrNotFound, http.StatusNotFound, "not_found", false},
		{interview.ErrInvalidState, http.StatusConflict, "invalid_state", false},
		{fmt.Errorf("save: %w", interview.ErrConflict), http.StatusServiceUnavailable, "conflict", true},
		{fmt.Errorf("save: %w", interview.ErrPersistence), http.StatusServiceUnavailable, "persistence_error", true},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondEngineError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, "do thing")

			assert.Equal(t, tt.status, rec.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After") != "")
		})
	}
}

func TestSessionEventStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/events?api_key=" + aliceKey
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)

	// Another owner's activity is not delivered
	createSession(t, s, carolKey)
	session := createSession(t, s, aliceKey)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, events.SessionCreated, msg.Event.Type)
	assert.Equal(t, session.ID, msg.Event.SessionID)
	assert.Equal(t, "alice", msg.Event.OwnerID)
}

func TestSessionEventStreamRequiresPermission(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/events"
	header := http.Header{}
	header.Set("X-API-Key", readerKey)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
