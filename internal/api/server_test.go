package api

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/remindbot/internal/database"
	"github.com/pathakanu/remindbot/internal/metrics"
	"github.com/pathakanu/remindbot/internal/model"
	"github.com/pathakanu/remindbot/internal/store"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())
	db, err := database.New("", dsn, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	srv := New(Options{
		Store:    store.New(db),
		Logger:   log.New(io.Discard, "", 0),
		Metrics:  metrics.New(),
		Location: time.FixedZone("IST", 5*3600+1800),
		Now:      func() time.Time { return fixedNow },
	})
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = strings.NewReader(v)
		default:
			raw, err := json.Marshal(v)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createUser(t *testing.T, h http.Handler, externalID int64) model.User {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/users/", map[string]any{"external_id": externalID, "username": "someone"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.User](t, rec)
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestHealthAndRequestID(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "remindbot_http_requests_total")
}

func TestUserEndpoints(t *testing.T) {
	h := newTestServer(t)
	user := createUser(t, h, 123456789)
	assert.Equal(t, int64(123456789), user.ExternalID)

	assertError(t, do(t, h, http.MethodPost, "/users/", map[string]any{"external_id": 123456789}), http.StatusConflict, CodeConflict)
	assertError(t, do(t, h, http.MethodPost, "/users/", `{"external_id":`), http.StatusBadRequest, CodeValidation)

	rec := do(t, h, http.MethodGet, "/users/?external_id=123456789", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]model.User](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].ID)

	rec = do(t, h, http.MethodPut, fmt.Sprintf("/users/%d", user.ID), map[string]any{"username": "newuser"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[model.User](t, rec)
	require.NotNil(t, updated.Username)
	assert.Equal(t, "newuser", *updated.Username)

	assertError(t, do(t, h, http.MethodGet, "/users/999", nil), http.StatusNotFound, CodeNotFound)
	assertError(t, do(t, h, http.MethodGet, "/users/abc", nil), http.StatusBadRequest, CodeValidation)

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/users/%d", user.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assertError(t, do(t, h, http.MethodDelete, fmt.Sprintf("/users/%d", user.ID), nil), http.StatusNotFound, CodeNotFound)
}

func TestReminderCreateAndFetch(t *testing.T) {
	h := newTestServer(t)
	user := createUser(t, h, 1)

	rec := do(t, h, http.MethodPost, "/reminders/", map[string]any{
		"user_id":           user.ID,
		"chat_id":           555,
		"title":             "Call mom",
		"description":       nil,
		"event_time":        "2024-06-03T18:00:00",
		"notification_time": "2024-06-03T17:45:00+05:30",
		"tags":              []any{"family", map[string]any{"name": "calls"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Reminder](t, rec)
	require.NotNil(t, created.EventTime)
	assert.True(t, time.Date(2024, 6, 3, 12, 30, 0, 0, time.UTC).Equal(*created.EventTime), "naive time is read in the configured zone")
	assert.Equal(t, []string{"family", "calls"}, created.TagNames())
	assert.Contains(t, rec.Body.String(), `"repeat_type":null`)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/reminders/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decode[model.Reminder](t, rec)
	assert.Equal(t, created.Title, fetched.Title)
	assert.True(t, created.EventTime.Equal(*fetched.EventTime))
	assert.True(t, created.NotificationTime.Equal(*fetched.NotificationTime))
	assert.Equal(t, created.TagNames(), fetched.TagNames())

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/reminders/?user_id=%d", user.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Reminder](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/tags/?chat_id=555", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Tag](t, rec), 2)
}

func TestReminderScheduleErrors(t *testing.T) {
	h := newTestServer(t)
	user := createUser(t, h, 1)

	assertError(t, do(t, h, http.MethodPost, "/reminders/", map[string]any{
		"user_id":           user.ID,
		"chat_id":           1,
		"title":             "late",
		"event_time":        "2024-06-03T18:00:00Z",
		"notification_time": "2024-06-03T18:30:00Z",
	}), http.StatusBadRequest, CodeInvalidSchedule)

	assertError(t, do(t, h, http.MethodPost, "/reminders/", map[string]any{
		"user_id":     user.ID,
		"chat_id":     1,
		"title":       "bad cron",
		"repeat_type": "0 9 * * mon",
	}), http.StatusBadRequest, CodeMalformedRule)

	assertError(t, do(t, h, http.MethodPost, "/reminders/", map[string]any{
		"user_id": user.ID,
		"chat_id": 1,
	}), http.StatusBadRequest, CodeValidation)

	assertError(t, do(t, h, http.MethodPost, "/reminders/", map[string]any{
		"user_id":    user.ID,
		"chat_id":    1,
		"title":      "x",
		"event_time": "next tuesday",
	}), http.StatusBadRequest, CodeValidation)

	rec := do(t, h, http.MethodGet, "/reminders/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestReminderPartialUpdate(t *testing.T) {
	h := newTestServer(t)
	user := createUser(t, h, 1)

	rec := do(t, h, http.MethodPost, "/reminders/", map[string]any{
		"user_id":     user.ID,
		"chat_id":     1,
		"title":       "Standup",
		"description": "daily sync",
		"tags":        []string{"work"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Reminder](t, rec)

	rec = do(t, h, http.MethodPut, fmt.Sprintf("/reminders/%d", created.ID), `{"description": null, "repeat_type": "30 9 * * 1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Reminder](t, rec)
	assert.Equal(t, "Standup", updated.Title)
	assert.Nil(t, updated.Description)
	require.NotNil(t, updated.RepeatType)
	assert.Equal(t, "30 9 * * 1", *updated.RepeatType)
	assert.Equal(t, []string{"work"}, updated.TagNames())

	assertError(t, do(t, h, http.MethodPut, fmt.Sprintf("/reminders/%d", created.ID), `{"repeat_type": "61 * * * *"}`), http.StatusBadRequest, CodeMalformedRule)
	assertError(t, do(t, h, http.MethodPut, "/reminders/999", `{"title": "x"}`), http.StatusNotFound, CodeNotFound)
}

func TestReminderDeleteOwnership(t *testing.T) {
	h := newTestServer(t)
	owner := createUser(t, h, 1)
	other := createUser(t, h, 2)

	rec := do(t, h, http.MethodPost, "/reminders/", map[string]any{"user_id": owner.ID, "chat_id": 1, "title": "mine"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.Reminder](t, rec)
	path := fmt.Sprintf("/reminders/%d", created.ID)

	assertError(t, do(t, h, http.MethodDelete, path, nil), http.StatusBadRequest, CodeValidation)
	assertError(t, do(t, h, http.MethodDelete, fmt.Sprintf("%s?user_id=%d", path, other.ID), nil), http.StatusForbidden, CodeForbidden)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, path, nil).Code)

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("%s?user_id=%d", path, owner.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assertError(t, do(t, h, http.MethodGet, path, nil), http.StatusNotFound, CodeNotFound)
	assertError(t, do(t, h, http.MethodDelete, fmt.Sprintf("%s?user_id=%d", path, owner.ID), nil), http.StatusNotFound, CodeNotFound)
}

func TestReminderScheduleEndpoint(t *testing.T) {
	h := newTestServer(t)
	user := createUser(t, h, 1)

	// Monday 09:00 IST, notify 15 minutes before; now is Saturday 2024-06-01 10:00 UTC.
	rec := do(t, h, http.MethodPost, "/reminders/", map[string]any{
		"user_id":           user.ID,
		"chat_id":           1,
		"title":             "Weekly review",
		"event_time":        "2024-05-27T09:00:00",
		"notification_time": "2024-05-27T08:45:00",
		"repeat_type":       "0 9 * * 1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Reminder](t, rec)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/reminders/%d/schedule", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ScheduleResponse](t, rec)
	require.NotNil(t, got.NextOccurrence)
	require.NotNil(t, got.NextNotification)
	assert.True(t, time.Date(2024, 6, 3, 3, 30, 0, 0, time.UTC).Equal(*got.NextOccurrence), got.NextOccurrence.String())
	assert.True(t, time.Date(2024, 6, 3, 3, 15, 0, 0, time.UTC).Equal(*got.NextNotification), got.NextNotification.String())

	assertError(t, do(t, h, http.MethodGet, "/reminders/999/schedule", nil), http.StatusNotFound, CodeNotFound)
}

func TestTagEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/tags/", map[string]any{"name": "Work", "chat_id": 12345})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tag := decode[model.Tag](t, rec)

	assertError(t, do(t, h, http.MethodPost, "/tags/", map[string]any{"name": "Work", "chat_id": 12345}), http.StatusConflict, CodeConflict)
	assertError(t, do(t, h, http.MethodPost, "/tags/", map[string]any{"chat_id": 12345}), http.StatusBadRequest, CodeValidation)

	rec = do(t, h, http.MethodPut, fmt.Sprintf("/tags/%d", tag.ID), map[string]any{"name": "Office"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Office", decode[model.Tag](t, rec).Name)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/tags/%d", tag.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, fmt.Sprintf("/tags/%d", tag.ID), nil).Code)
	assertError(t, do(t, h, http.MethodGet, fmt.Sprintf("/tags/%d", tag.ID), nil), http.StatusNotFound, CodeNotFound)
}
