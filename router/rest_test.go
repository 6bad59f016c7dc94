package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"social-realtime/controller"
	"social-realtime/database"
	"social-realtime/presence"
	"social-realtime/socketio/sockettest"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("rest-test-key")

type envelope struct {
	Status  string         `json:"status"`
	Message *string        `json:"message"`
	Data    map[string]any `json:"data"`
}

type countingFlusher struct {
	calls int
	err   error
}

func (f *countingFlusher) Flush(context.Context) error {
	f.calls++
	return f.err
}

type restFixture struct {
	app       *fiber.App
	registry  *presence.Registry
	presence  *countingFlusher
	reactions *countingFlusher
}

func newRestFixture(t *testing.T) *restFixture {
	t.Helper()

	enforcer, err := database.Casbin(nil, []string{"root"})
	require.NoError(t, err)

	f := &restFixture{
		app:       fiber.New(fiber.Config{DisableStartupMessage: true, StrictRouting: true}),
		registry:  presence.NewRegistry(presence.NewWriter(nil, time.Hour), &sockettest.Recorder{}, time.Second),
		presence:  &countingFlusher{},
		reactions: &countingFlusher{},
	}
	Rest(f.app, RestConfig{
		Presence: f.registry,
		Flushers: map[string]controller.Flusher{"presence": f.presence, "reactions": f.reactions},
		Enforcer: enforcer,
		Secret:   testSecret,
		Timeout:  time.Second,
	})
	return f
}

func token(t *testing.T, id string, otp bool) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"id":  id,
		"otp": otp,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func (f *restFixture) do(t *testing.T, method, path, bearer string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out envelope
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func TestOnlineCount(t *testing.T) {
	f := newRestFixture(t)
	f.registry.Join("s1", "alice")
	f.registry.Join("s2", "alice")
	f.registry.Join("s3", "bob")

	status, body := f.do(t, http.MethodGet, "/v1/presence/online-count", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body.Status)
	assert.EqualValues(t, 2, body.Data["count"])
}

func TestPresenceUser(t *testing.T) {
	f := newRestFixture(t)
	f.registry.Join("s1", "alice")

	status, _ := f.do(t, http.MethodGet, "/v1/presence/users/alice", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := f.do(t, http.MethodGet, "/v1/presence/users/alice", token(t, "bob", false))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body.Data["online"])

	status, body = f.do(t, http.MethodGet, "/v1/presence/users/alice", token(t, "bob", true))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "2FA required", *body.Message)
}

func TestOps_Guards(t *testing.T) {
	f := newRestFixture(t)

	cases := []struct {
		name   string
		bearer string
		status int
	}{
		{"missing token", "", http.StatusBadRequest},
		{"bad signature", "a.b.c", http.StatusUnauthorized},
		{"second factor pending", token(t, "root", true), http.StatusBadRequest},
		{"not an admin", token(t, "alice", false), http.StatusForbidden},
		{"admin", token(t, "root", false), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodGet, "/v1/ops/presence", tc.bearer)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestOps_Presence(t *testing.T) {
	f := newRestFixture(t)
	f.registry.Join("s1", "bob")
	f.registry.Join("s2", "alice")

	status, body := f.do(t, http.MethodGet, "/v1/ops/presence", token(t, "root", false))
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body.Data["count"])
	assert.Equal(t, []any{"alice", "bob"}, body.Data["users"])
	assert.Len(t, body.Data["sessions"].(map[string]any)["bob"], 1)
}

func TestOps_Flush(t *testing.T) {
	f := newRestFixture(t)
	admin := token(t, "root", false)

	status, body := f.do(t, http.MethodPost, "/v1/ops/flush", admin)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"presence", "reactions"}, body.Data["flushed"])
	assert.Equal(t, 1, f.presence.calls)
	assert.Equal(t, 1, f.reactions.calls)

	f.reactions.err = errors.New("db down")
	status, body = f.do(t, http.MethodPost, "/v1/ops/flush", admin)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, []any{"reactions"}, body.Data["failed"])
	assert.Equal(t, 2, f.presence.calls)
}
