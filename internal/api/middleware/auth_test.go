package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dnothi/dnothi/internal/api/middleware"
	"github.com/dnothi/dnothi/internal/auth"
	"github.com/dnothi/dnothi/internal/db"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "test-secret-at-least-32-bytes!!!"

func nullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func setup(t *testing.T, name string) (*gorm.DB, *model.User) {
	t.Helper()
	gormDB, err := db.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	u := &model.User{Username: "agent", Email: "agent@example.com", Role: model.RoleAgent, Office: "Dhaka", IsActive: true}
	require.NoError(t, gormDB.Create(u).Error)
	return gormDB, u
}

func issueToken(t *testing.T, u *model.User, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.IssueAccessToken(auth.Subject{UserID: u.ID, Username: u.Username, Role: u.Role, Office: u.Office}, secret, ttl)
	require.NoError(t, err)
	return tok
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

func okHandler(t *testing.T, wantID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := middleware.UserFromContext(r.Context())
		require.NotNil(t, u)
		assert.Equal(t, wantID, u.ID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	gormDB, u := setup(t, "mw_authenticate")
	inactive := &model.User{Username: "gone", Email: "gone@example.com", Role: model.RoleAgent}
	require.NoError(t, gormDB.Create(inactive).Error)
	ghost := &model.User{ID: "no-such-user", Username: "ghost", Role: model.RoleAgent}

	mw := middleware.Authenticate(gormDB, secret, nullLogger())
	h := mw(okHandler(t, u.ID))

	tests := []struct {
		name    string
		header  string
		query   string
		code    int
		message string
	}{
		{"missing", "", "", http.StatusUnauthorized, "No token, authorization denied"},
		{"garbage", "Bearer this.is.garbage", "", http.StatusUnauthorized, "Invalid token"},
		{"expired", "Bearer " + issueToken(t, u, -time.Minute), "", http.StatusUnauthorized, "Token has expired"},
		{"unknown user", "Bearer " + issueToken(t, ghost, time.Minute), "", http.StatusUnauthorized, "User not found or inactive"},
		{"inactive user", "Bearer " + issueToken(t, inactive, time.Minute), "", http.StatusUnauthorized, "User not found or inactive"},
		{"valid header", "Bearer " + issueToken(t, u, time.Minute), "", http.StatusOK, ""},
		{"valid query", "", "?token=" + issueToken(t, u, time.Minute), http.StatusOK, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test"+tc.query, http.NoBody)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, message(t, w))
			}
		})
	}
}

func TestAuthenticate_DBFailureFailsClosed(t *testing.T) {
	gormDB, u := setup(t, "mw_authenticate_db_down")
	tok := issueToken(t, u, time.Minute)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	called := false
	h := middleware.Authenticate(gormDB, secret, nullLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
}

func TestAuthorize(t *testing.T) {
	h := middleware.Authorize(model.RoleAdmin, model.RoleSystemAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no user", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req = req.WithContext(middleware.WithUser(req.Context(), &model.User{ID: "1", Role: model.RoleAgent}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		var body struct {
			RequiredRoles []string `json:"requiredRoles"`
			UserRole      string   `json:"userRole"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, []string{model.RoleAdmin, model.RoleSystemAdmin}, body.RequiredRoles)
		assert.Equal(t, model.RoleAgent, body.UserRole)
	})

	t.Run("allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req = req.WithContext(middleware.WithUser(req.Context(), &model.User{ID: "1", Role: model.RoleAdmin}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
