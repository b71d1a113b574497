package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lulajax/streamer-hub/internal/domain"
)

func (env *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) deviceToken(t *testing.T, deviceID string) string {
	t.Helper()
	token, err := env.tokens.Sign(deviceID)
	require.NoError(t, err)
	return token
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/token", "", map[string]string{"deviceId": "device-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[map[string]string](t, rec)
	require.NotEmpty(t, resp["token"])

	claims, err := env.tokens.Verify(resp["token"])
	require.NoError(t, err)
	assert.Equal(t, "device-1", claims.DeviceID)
}

func TestIssueToken_RequiresDeviceID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/token", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/presets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/presets", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPresetLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	// Create
	rec := env.request(t, http.MethodPost, "/api/presets", token, map[string]any{
		"name":           "PK Battle",
		"gameMode":       "PK",
		"widgetSettings": map[string]string{"theme": "dark"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeJSON[presetResponse](t, rec)
	assert.Equal(t, "PK Battle", created.Name)
	assert.Equal(t, domain.GameModePK, created.GameMode)
	assert.Regexp(t, `^wgt_[0-9a-f]{16}$`, created.WidgetToken)

	// List
	rec = env.request(t, http.MethodGet, "/api/presets", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]presetResponse](t, rec)
	require.Len(t, list, 1)

	// Update publishes a preset change event
	rec = env.request(t, http.MethodPut, "/api/presets/"+created.ID.String(), token, map[string]any{
		"name":     "PK Battle v2",
		"gameMode": "PK",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	events := env.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, created.ID.String(), events[0].PresetID)

	// Delete publishes a token invalidation
	rec = env.request(t, http.MethodDelete, "/api/presets/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	events = env.publisher.published()
	require.Len(t, events, 2)
	assert.Equal(t, created.WidgetToken, events[1].Token)
}

func TestPreset_ValidationRejectsUnknownGameMode(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	rec := env.request(t, http.MethodPost, "/api/presets", token, map[string]any{
		"name":     "Bad",
		"gameMode": "ROULETTE",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreset_OwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	owner := env.deviceToken(t, "device-1")
	intruder := env.deviceToken(t, "device-2")

	rec := env.request(t, http.MethodPost, "/api/presets", owner, map[string]any{
		"name":     "Mine",
		"gameMode": "FREE",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[presetResponse](t, rec)

	rec = env.request(t, http.MethodGet, "/api/presets/"+created.ID.String(), intruder, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodDelete, "/api/presets/"+created.ID.String(), intruder, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRotateWidgetToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	rec := env.request(t, http.MethodPost, "/api/presets", token, map[string]any{
		"name":     "Rotate me",
		"gameMode": "STICKER",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[presetResponse](t, rec)

	rec = env.request(t, http.MethodPost, "/api/presets/"+created.ID.String()+"/rotate-token", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[map[string]string](t, rec)
	assert.NotEqual(t, created.WidgetToken, resp["widgetToken"])
	assert.Regexp(t, `^wgt_[0-9a-f]{16}$`, resp["widgetToken"])

	// The old token is invalidated so lingering subscribers get kicked.
	events := env.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, created.WidgetToken, events[0].Token)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	rec := env.request(t, http.MethodPost, "/api/presets", token, map[string]any{
		"name":           "Live",
		"gameMode":       "PK",
		"widgetSettings": map[string]string{"theme": "dark"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	preset := decodeJSON[presetResponse](t, rec)

	// Start
	rec = env.request(t, http.MethodPost, "/api/sessions", token, map[string]string{
		"roomId":   "room-42",
		"presetId": preset.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeJSON[sessionResponse](t, rec)

	assert.Equal(t, domain.SessionRunning, session.Status)
	assert.Regexp(t, `^sess_[0-9a-f]{16}$`, session.WidgetToken)
	require.NotNil(t, session.StartedAt)

	events := env.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, session.ID.String(), events[0].SessionID)

	// Pause and end
	rec = env.request(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/pause", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SessionPaused, decodeJSON[sessionResponse](t, rec).Status)

	rec = env.request(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/end", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SessionEnded, decodeJSON[sessionResponse](t, rec).Status)

	assert.Len(t, env.publisher.published(), 3)
}

func TestSession_SettingsSnapshotFrozenAtStart(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	rec := env.request(t, http.MethodPost, "/api/presets", token, map[string]any{
		"name":           "Snapshot",
		"gameMode":       "PK",
		"widgetSettings": map[string]string{"theme": "dark"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	preset := decodeJSON[presetResponse](t, rec)

	rec = env.request(t, http.MethodPost, "/api/sessions", token, map[string]string{
		"roomId":   "room-42",
		"presetId": preset.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeJSON[sessionResponse](t, rec)

	// Edit the preset after the session started.
	rec = env.request(t, http.MethodPut, "/api/presets/"+preset.ID.String(), token, map[string]any{
		"name":           "Snapshot",
		"gameMode":       "PK",
		"widgetSettings": map[string]string{"theme": "light"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.sessions.GetByWidgetToken(context.Background(), session.WidgetToken)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(stored.WidgetSettingsSnapshot))
}

func TestRecordGift(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	rec := env.request(t, http.MethodPost, "/api/presets", token, map[string]any{
		"name":     "Gifts",
		"gameMode": "STICKER",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	preset := decodeJSON[presetResponse](t, rec)

	rec = env.request(t, http.MethodPost, "/api/sessions", token, map[string]string{
		"roomId":   "room-7",
		"presetId": preset.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeJSON[sessionResponse](t, rec)

	rec = env.request(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/gifts", token, map[string]any{
		"giftId":    "rose",
		"giftName":  "Rose",
		"userName":  "viewer-1",
		"count":     3,
		"totalCost": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	stored, err := env.sessions.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.TotalGifts)
	assert.Equal(t, int64(30), stored.TotalDiamonds)

	rec = env.request(t, http.MethodGet, "/api/sessions/"+session.ID.String()+"/gifts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gifts := decodeJSON[[]map[string]any](t, rec)
	require.Len(t, gifts, 1)
	assert.Equal(t, "rose", gifts[0]["giftId"])
}

func TestGetSession_UnknownID(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	rec := env.request(t, http.MethodGet, "/api/sessions/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/sessions/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	token := env.deviceToken(t, "device-1")

	rec := env.request(t, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeJSON[map[string]any](t, rec)
	assert.Contains(t, stats, "rooms")
	assert.Contains(t, stats, "connections")
}
