package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lichtrinh-service/internal/config"
	"lichtrinh-service/internal/schedule"
)

const (
	testSecret  = "test-secret"
	testService = "svc-token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	rows map[int64][]schedule.StoredEntry
	err  error
}

func (m *memStore) FetchScheduleEntries(_ context.Context, userID int64) ([]schedule.StoredEntry, error) {
	return m.rows[userID], m.err
}

type memTasks map[int64]*schedule.Task

func (m memTasks) FetchTask(_ context.Context, id int64) (*schedule.Task, error) {
	return m[id], nil
}

func sp(s string) *string { return &s }
func ip(i int64) *int64   { return &i }

func newTestApp(t *testing.T, store schedule.Store, tasks schedule.TaskSource) *App {
	t.Helper()
	zone, err := schedule.LoadZone("UTC+7")
	require.NoError(t, err)
	return &App{
		Resolver: schedule.NewResolver(store, tasks, schedule.WithZone(zone)),
		Log:      zap.NewNop(),
		Cfg: config.Config{
			JWTSecret:       testSecret,
			JWTTTL:          time.Hour,
			StaticTokens:    []string{testService},
			RateLimitPerMin: 1000,
		},
		// 18:00Z on May 1 is 01:00 on May 2 in UTC+7.
		Now: func() time.Time { return time.Date(2024, time.May, 1, 18, 0, 0, 0, time.UTC) },
	}
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
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
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func userToken(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := issueToken(userID, testSecret, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

type windowResp struct {
	Day     string `json:"day"`
	Zone    string `json:"zone"`
	Skipped int    `json:"skipped"`
	Items   []struct {
		Entry struct {
			ID int64 `json:"id"`
		} `json:"entry"`
		Local struct {
			Day         string `json:"day"`
			Hour        int    `json:"hour"`
			MinuteOfDay int    `json:"minute_of_day"`
		} `json:"local"`
		TaskTitle *string `json:"task_title"`
	} `json:"items"`
}

func decodeWindow(t *testing.T, w *httptest.ResponseRecorder) windowResp {
	t.Helper()
	var out windowResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func scenarioStore() *memStore {
	return &memStore{rows: map[int64][]schedule.StoredEntry{
		4008: {
			{ID: 1, UserID: 4008, TaskID: ip(10), StartAt: sp("2024-05-01 23:00:00+00")},
			{ID: 2, UserID: 4008, TaskID: ip(99), StartAt: sp("2024-05-02 00:00:00+00")},
			{ID: 3, UserID: 4008, StartAt: sp("garbage")},
			{ID: 4, UserID: 4008, StartAt: sp("2024-05-01 10:00:00+00")},
		},
	}}
}

func TestAuthMiddleware(t *testing.T) {
	a := newTestApp(t, scenarioStore(), nil)
	h := a.Router()
	path := "/api/users/4008/schedule/window?day=2024-05-02"

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, path, "", nil).Code)
	})
	t.Run("bad scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Basic abc")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
	t.Run("unknown token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, path, "nope", nil).Code)
	})
	t.Run("static service token", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, path, testService, nil).Code)
	})
	t.Run("jwt for owner", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, path, userToken(t, 4008), nil).Code)
	})
	t.Run("jwt for another user", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, path, userToken(t, 1), nil).Code)
	})
	t.Run("expired jwt", func(t *testing.T) {
		tok, err := issueToken(4008, testSecret, time.Minute, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, path, tok, nil).Code)
	})
	t.Run("bad user id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest,
			do(t, h, http.MethodGet, "/api/users/abc/schedule/window?day=2024-05-02", testService, nil).Code)
	})
}

func TestParseToken(t *testing.T) {
	tok := userToken(t, 42)
	sub, err := parseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sub)

	_, err = parseToken(tok, "other-secret")
	assert.Error(t, err)
}

func TestWindowHandler(t *testing.T) {
	a := newTestApp(t, scenarioStore(), memTasks{10: {ID: 10, Title: "Morning run"}})
	h := a.Router()

	w := do(t, h, http.MethodGet, "/api/users/4008/schedule/window?day=2024-05-02", testService, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeWindow(t, w)

	assert.Equal(t, "2024-05-02", got.Day)
	assert.Equal(t, "UTC+7", got.Zone)
	assert.Equal(t, 1, got.Skipped)
	require.Len(t, got.Items, 2)
	assert.Equal(t, int64(1), got.Items[0].Entry.ID)
	assert.Equal(t, "2024-05-02", got.Items[0].Local.Day)
	assert.Equal(t, 6, got.Items[0].Local.Hour)
	require.NotNil(t, got.Items[0].TaskTitle)
	assert.Equal(t, "Morning run", *got.Items[0].TaskTitle)
	assert.Equal(t, int64(2), got.Items[1].Entry.ID)
	assert.Nil(t, got.Items[1].TaskTitle)

	w = do(t, h, http.MethodGet, "/api/users/4008/schedule/window?day=2024-05-02&from_hour=6&to_hour=7", testService, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got = decodeWindow(t, w)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(1), got.Items[0].Entry.ID)

	w = do(t, h, http.MethodGet, "/api/users/4008/schedule/window?day=2024-05-01", testService, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got = decodeWindow(t, w)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(4), got.Items[0].Entry.ID)
}

func TestWindowHandler_BadInput(t *testing.T) {
	h := newTestApp(t, scenarioStore(), nil).Router()

	cases := map[string]string{
		"missing day":   "/api/users/4008/schedule/window",
		"bad day":       "/api/users/4008/schedule/window?day=05/02/2024",
		"reversed hour": "/api/users/4008/schedule/window?day=2024-05-02&from_hour=7&to_hour=6",
		"hour too big":  "/api/users/4008/schedule/window?day=2024-05-02&to_hour=25",
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, path, testService, nil).Code)
		})
	}
}

func TestWindowHandler_StorageUnavailable(t *testing.T) {
	h := newTestApp(t, &memStore{err: errors.New("pool closed")}, nil).Router()

	w := do(t, h, http.MethodGet, "/api/users/4008/schedule/window?day=2024-05-02", testService, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "pool closed")
}

func TestTodayHandler(t *testing.T) {
	h := newTestApp(t, scenarioStore(), nil).Router()

	w := do(t, h, http.MethodGet, "/api/users/4008/schedule/today?to_hour=7", testService, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeWindow(t, w)
	assert.Equal(t, "2024-05-02", got.Day)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(1), got.Items[0].Entry.ID)
}

func TestStatsHandler(t *testing.T) {
	store := &memStore{rows: map[int64][]schedule.StoredEntry{
		7: {
			{ID: 1, UserID: 7, TaskID: ip(1), StartAt: sp("2024-05-02T02:00:00Z"), EndAt: sp("2024-05-02T02:30:00Z")},
			{ID: 2, UserID: 7, StartAt: sp("2024-05-02T02:45:00Z"), EndAt: sp("2024-05-02T03:15:00Z")},
			{ID: 3, UserID: 7, StartAt: sp("2024-05-02T05:00:00Z"), EndAt: sp("2024-05-02T04:00:00Z")},
		},
	}}
	h := newTestApp(t, store, memTasks{}).Router()

	w := do(t, h, http.MethodGet, "/api/users/7/stats?day=2024-05-02", testService, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var s Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.WithTask)
	assert.Equal(t, 2, s.ByHour[9])
	assert.Equal(t, 1, s.ByHour[12])
	require.NotNil(t, s.BusiestHour)
	assert.Equal(t, 9, *s.BusiestHour)
	assert.Equal(t, 60, s.Minutes)
	assert.Equal(t, 1, s.Flagged)

	// Without ?day the target-zone "today" is used.
	w = do(t, h, http.MethodGet, "/api/users/7/stats", testService, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "2024-05-02", s.Day)
}

func TestCreateScheduleEntry_Validation(t *testing.T) {
	h := newTestApp(t, scenarioStore(), nil).Router()
	path := "/api/users/4008/schedule"

	cases := map[string]any{
		"missing start": map[string]any{},
		"bad start":     map[string]any{"start_at": "tomorrow"},
		"bad end":       map[string]any{"start_at": "2024-05-02T06:00:00+07:00", "end_at": "soon"},
		"negative duration": map[string]any{
			"start_at": "2024-05-02T06:00:00+07:00",
			"end_at":   "2024-05-02T05:00:00+07:00",
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, path, testService, body).Code)
		})
	}
}

func TestCreateTask_Validation(t *testing.T) {
	h := newTestApp(t, scenarioStore(), nil).Router()
	path := "/api/users/4008/tasks"

	cases := map[string]any{
		"missing title":     map[string]any{},
		"blank title":       map[string]any{"title": "   "},
		"negative estimate": map[string]any{"title": "Read", "estimated_minutes": -5},
		"bad fixed start":   map[string]any{"title": "Read", "fixed_start_at": "noon"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, path, testService, body).Code)
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	h := newTestApp(t, scenarioStore(), nil).Router()

	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/auth/register", "", map[string]string{"email": "not-an-email", "password": "longenough"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@b.co", "password": "short"}).Code)
}

func TestLogin_WithoutSecret(t *testing.T) {
	a := newTestApp(t, scenarioStore(), nil)
	a.Cfg.JWTSecret = ""

	w := do(t, a.Router(), http.MethodPost, "/auth/login", "", map[string]string{"email": "a@b.co", "password": "longenough"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestImportCalendar_Validation(t *testing.T) {
	h := newTestApp(t, scenarioStore(), nil).Router()

	w := do(t, h, http.MethodPost, "/api/users/4008/calendar/import", testService, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost,
		"/api/users/4008/calendar/import?time_min=2024-05-02T00:00:00Z&time_max=2024-05-01T00:00:00Z", testService, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Valid range but Google is not configured.
	w = do(t, h, http.MethodPost,
		"/api/users/4008/calendar/import?time_min=2024-05-01T00:00:00Z&time_max=2024-05-02T00:00:00Z", testService, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndRequestID(t *testing.T) {
	h := newTestApp(t, scenarioStore(), nil).Router()

	w := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}

func TestRateLimit(t *testing.T) {
	a := newTestApp(t, scenarioStore(), nil)
	a.Cfg.RateLimitPerMin = 2
	h := a.Router()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
}
