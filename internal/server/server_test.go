package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/bookgraph/internal/queue"
	mid "github.com/OFFIS-RIT/bookgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/bookgraph/internal/server/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/query"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rabbitmq/amqp091-go"
)

const (
	masterKey = "master-secret"
	jwtSecret = "jwt-secret"
)

type askerStub struct {
	query   string
	history []ai.ChatMessage
}

func (a *askerStub) Run(_ context.Context, q string, history []ai.ChatMessage) query.Result {
	a.query = q
	a.history = history
	return query.Result{
		Answer:        "Ответ на: " + q,
		GraphMetadata: []map[string]string{},
		EntitiesFound: []string{"Эдмон_Дантес"},
		ContextUsed:   []string{},
	}
}

type publisherStub struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (p *publisherStub) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, msg.Body)
	return nil
}

func hmacKey(*jwt.Token) (any, error) {
	return []byte(jwtSecret), nil
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestApp() (*mid.App, *askerStub, *publisherStub) {
	asker := &askerStub{}
	pub := &publisherStub{}
	return &mid.App{
		Asker:        asker,
		Queue:        pub,
		Key:          hmacKey,
		Messages:     util.NewMessageStore(0),
		MasterAPIKey: masterKey,
	}, asker, pub
}

func do(t *testing.T, app *mid.App, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" && strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	New(app, "1M").ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	app, _, _ := newTestApp()
	rec := do(t, app, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("GET /health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	app, _, _ := newTestApp()
	body := `{"message": "Кто такой Дантес?"}`

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong token", "nope", http.StatusUnauthorized},
		{"master key", masterKey, http.StatusOK},
		{"jwt", signToken(t, jwt.MapClaims{"id": "42", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusOK},
		{"numeric id", signToken(t, jwt.MapClaims{"id": float64(7)}), http.StatusOK},
		{"expired jwt", signToken(t, jwt.MapClaims{"id": "42", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no user id", signToken(t, jwt.MapClaims{"role": "user"}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app, http.MethodPost, "/api/chat", tt.token, body)
			if rec.Code != tt.want {
				t.Errorf("POST /api/chat = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestChat(t *testing.T) {
	app, asker, _ := newTestApp()
	body := `{"message": "Кто такой Дантес?", "history": [{"role": "user", "message": "Привет"}, {"role": "assistant", "message": "Здравствуйте"}]}`

	rec := do(t, app, http.MethodPost, "/api/chat", masterKey, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/chat = %d %s", rec.Code, rec.Body.String())
	}

	var res query.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Answer != "Ответ на: Кто такой Дантес?" || len(res.EntitiesFound) != 1 {
		t.Errorf("result = %#v", res)
	}
	if asker.query != "Кто такой Дантес?" || len(asker.history) != 2 || asker.history[1].Role != "assistant" {
		t.Errorf("asker got %q, %#v", asker.query, asker.history)
	}
}

func TestChatValidation(t *testing.T) {
	app, _, _ := newTestApp()
	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"history": []}`},
		{"bad role", `{"message": "x", "history": [{"role": "system", "message": "y"}]}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app, http.MethodPost, "/api/chat", masterKey, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("POST /api/chat = %d, want 400", rec.Code)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	app, asker, _ := newTestApp()

	rec := do(t, app, http.MethodPost, "/api/messages", masterKey, "Где Замок Иф?")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/messages = %d %s", rec.Code, rec.Body.String())
	}
	var reply util.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Role != util.RoleAssistant || reply.ID != 3 || reply.Content != "Ответ на: Где Замок Иф?" {
		t.Errorf("reply = %#v", reply)
	}
	// the greeting is the only earlier turn
	if len(asker.history) != 1 || asker.history[0].Message != util.Greeting {
		t.Errorf("history = %#v", asker.history)
	}

	rec = do(t, app, http.MethodPost, "/api/messages", masterKey, `"В кавычках"`)
	if rec.Code != http.StatusOK || asker.query != "В кавычках" {
		t.Errorf("quoted body: %d, query %q", rec.Code, asker.query)
	}

	rec = do(t, app, http.MethodGet, "/api/messages", masterKey, "")
	var list []util.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 5 {
		t.Errorf("GET /api/messages returned %d messages, want 5", len(list))
	}

	rec = do(t, app, http.MethodPost, "/api/messages", masterKey, "   ")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank message = %d, want 400", rec.Code)
	}
}

func TestRebuild(t *testing.T) {
	app, _, pub := newTestApp()

	rec := do(t, app, http.MethodPost, "/api/graph/rebuild", masterKey, `{"force": true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/graph/rebuild = %d %s", rec.Code, rec.Body.String())
	}
	if len(pub.keys) != 1 || pub.keys[0] != queue.RebuildQueue {
		t.Fatalf("published to %#v", pub.keys)
	}
	var msg queue.RebuildMsg
	if err := json.Unmarshal(pub.bodies[0], &msg); err != nil {
		t.Fatal(err)
	}
	if !msg.Force || msg.Summarize || msg.CorrelationID == "" {
		t.Errorf("message = %#v", msg)
	}
	if !strings.Contains(rec.Body.String(), msg.CorrelationID) {
		t.Errorf("response does not carry correlation id: %s", rec.Body.String())
	}

	rec = do(t, app, http.MethodPost, "/api/graph/rebuild", masterKey, "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("empty body = %d, want 202", rec.Code)
	}
}

func TestRebuildPermissions(t *testing.T) {
	app, _, pub := newTestApp()

	user := signToken(t, jwt.MapClaims{"id": "1"})
	if rec := do(t, app, http.MethodPost, "/api/graph/rebuild", user, ""); rec.Code != http.StatusForbidden {
		t.Errorf("user rebuild = %d, want 403", rec.Code)
	}

	admin := signToken(t, jwt.MapClaims{"id": "2", "role": "admin"})
	if rec := do(t, app, http.MethodPost, "/api/graph/rebuild", admin, ""); rec.Code != http.StatusAccepted {
		t.Errorf("admin rebuild = %d, want 202", rec.Code)
	}
	if len(pub.keys) != 1 {
		t.Errorf("published %d jobs, want 1", len(pub.keys))
	}
}

func TestRebuildQueueErrors(t *testing.T) {
	app, _, pub := newTestApp()
	pub.err = errors.New("channel closed")
	if rec := do(t, app, http.MethodPost, "/api/graph/rebuild", masterKey, ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("publish failure = %d, want 500", rec.Code)
	}

	app.Queue = nil
	if rec := do(t, app, http.MethodPost, "/api/graph/rebuild", masterKey, ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no queue = %d, want 503", rec.Code)
	}
}
