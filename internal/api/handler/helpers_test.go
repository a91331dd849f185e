package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnothi/dnothi/internal/api"
	"github.com/dnothi/dnothi/internal/api/handler"
	"github.com/dnothi/dnothi/internal/api/middleware"
	"github.com/dnothi/dnothi/internal/audit"
	"github.com/dnothi/dnothi/internal/auth"
	"github.com/dnothi/dnothi/internal/db"
	"github.com/dnothi/dnothi/internal/health"
	"github.com/dnothi/dnothi/internal/mail"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/notify"
	"github.com/dnothi/dnothi/internal/policy"
	"github.com/dnothi/dnothi/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testSecret   = "handler-test-secret"
	testPassword = "password123"
)

// captureQueue records enqueued emails instead of sending them.
type captureQueue struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (q *captureQueue) Start(context.Context) error { return nil }
func (q *captureQueue) Stop(context.Context) error  { return nil }

func (q *captureQueue) EnqueueEmail(_ context.Context, msg mail.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *captureQueue) sent() []mail.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mail.Message(nil), q.msgs...)
}

type testEnv struct {
	t       *testing.T
	db      *gorm.DB
	handler http.Handler
	hub     *notify.Hub
	mail    *captureQueue
}

type envOption func(*envConfig)

type envConfig struct {
	maxUpload    int64
	defaultQuota int64
	heartbeat    time.Duration
}

func withUploadLimits(maxSize, quota int64) envOption {
	return func(c *envConfig) { c.maxUpload, c.defaultQuota = maxSize, quota }
}

func withHeartbeat(d time.Duration) envOption {
	return func(c *envConfig) { c.heartbeat = d }
}

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{maxUpload: 1 << 20, defaultQuota: 10 << 20, heartbeat: time.Hour}
	for _, o := range opts {
		o(&cfg)
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := notify.NewHub(log)
	queue := &captureQueue{}
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	deps := handler.Deps{
		DB:     gdb,
		Gate:   policy.Default(),
		Audit:  audit.New(gdb, log),
		Notify: notify.NewService(gdb, notify.NewLocalBroker(hub), log),
		Queue:  queue,
		Log:    log,
	}
	refresh := auth.NewRefreshStore(gdb, time.Hour)
	reset := auth.NewResetStore(gdb, testSecret+"-reset", time.Hour)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, &api.Handlers{
		Health: health.New(db.NewPinger(gdb), hub),
		Auth: handler.NewAuthHandler(deps, handler.AuthConfig{
			Secret:      testSecret,
			AccessTTL:   time.Hour,
			ResetTTL:    time.Hour,
			FrontendURL: "http://frontend.test",
		}, refresh, reset),
		Users:          handler.NewUserHandler(deps, refresh, cfg.defaultQuota, "http://frontend.test"),
		Tasks:          handler.NewTaskHandler(deps),
		Leaves:         handler.NewLeaveHandler(deps),
		Meetings:       handler.NewMeetingHandler(deps),
		Collaborations: handler.NewCollaborationHandler(deps),
		Dropdowns:      handler.NewDropdownHandler(deps),
		Permissions:    handler.NewPermissionHandler(deps),
		Files:          handler.NewFileHandler(deps, store, cfg.maxUpload, cfg.defaultQuota),
		Audit:          handler.NewAuditHandler(deps),
		Logs:           handler.NewLogHandler(log),
		Notifications:  handler.NewNotificationHandler(deps, hub, cfg.heartbeat),
	}, middleware.Authenticate(gdb, testSecret, log))

	return &testEnv{
		t:       t,
		db:      gdb,
		handler: api.Wrap(mux, log, false, []string{"http://frontend.test"}),
		hub:     hub,
		mail:    queue,
	}
}

// user inserts an active user with testPassword.
func (e *testEnv) user(username, role, office string) *model.User {
	e.t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		Password:     testPassword,
		FullName:     strings.ToUpper(username[:1]) + username[1:],
		Role:         role,
		Office:       office,
		IsActive:     true,
		StorageQuota: 10 << 20,
	}
	require.NoError(e.t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) token(u *model.User) string {
	e.t.Helper()
	tok, err := auth.IssueAccessToken(auth.Subject{
		UserID: u.ID, Username: u.Username, Role: u.Role, Office: u.Office,
	}, testSecret, time.Hour)
	require.NoError(e.t, err)
	return tok
}

// do sends a JSON request as u (nil for anonymous).
func (e *testEnv) do(method, path string, u *model.User, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(u))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type listBody[T any] struct {
	Data       []T `json:"data"`
	Pagination struct {
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"totalPages"`
	} `json:"pagination"`
}

type errorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *testEnv) auditRows(resourceType, resourceID string) []model.AuditLog {
	e.t.Helper()
	var rows []model.AuditLog
	require.NoError(e.t, e.db.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).Find(&rows).Error)
	return rows
}
