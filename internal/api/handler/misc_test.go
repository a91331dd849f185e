package handler_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/dnothi/dnothi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollaboration_OfficeVisibility(t *testing.T) {
	e := newEnv(t)
	author := e.user("author", model.RoleAgent, "Dhaka")
	colleague := e.user("colleague", model.RoleAgent, "Dhaka")
	remote := e.user("remote", model.RoleAgent, "Sylhet")

	w := e.do(http.MethodPost, "/api/collaborations", author, map[string]string{"title": "Need help with escalation"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	c := decode[model.Collaboration](t, w)
	assert.Equal(t, model.UrgencyMedium, c.Urgency)
	assert.Equal(t, model.CollaborationOpen, c.Status)
	assert.Equal(t, "Dhaka", c.Office)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/collaborations/"+c.ID, colleague, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/collaborations/"+c.ID, remote, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, "/api/collaborations/"+c.ID, colleague, map[string]string{"status": "Closed"}).Code)

	w = e.do(http.MethodPut, "/api/collaborations/"+c.ID, author, map[string]string{"status": "Closed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.CollaborationClosed, decode[model.Collaboration](t, w).Status)

	w = e.do(http.MethodGet, "/api/collaborations", remote, nil)
	assert.EqualValues(t, 0, decode[listBody[model.Collaboration]](t, w).Pagination.Total)
}

func TestPermissionTemplates(t *testing.T) {
	e := newEnv(t)
	sys := e.user("root", model.RoleSystemAdmin, "")
	admin := e.user("admin", model.RoleAdmin, "Dhaka")

	w := e.do(http.MethodPost, "/api/permissions", sys, map[string]any{
		"name":        "Desk lead",
		"permissions": map[string]bool{"canApproveLeaves": true, "canFly": true},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[model.PermissionTemplate](t, w)
	assert.Len(t, p.Permissions, len(model.PermissionKeys))
	assert.True(t, p.Permissions["canApproveLeaves"])
	assert.NotContains(t, p.Permissions, "canFly")
	assert.Equal(t, "root", p.CreatedBy)

	w = e.do(http.MethodPost, "/api/permissions", sys, map[string]string{"name": "DESK LEAD"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Template name already exists", decode[errorBody](t, w).Message)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/permissions", admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/permissions", admin, map[string]string{"name": "x"}).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/api/permissions/"+p.ID, admin, nil).Code)

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/permissions/"+p.ID, sys, nil).Code)
	assert.Len(t, e.auditRows(model.ResourceTemplate, p.ID), 2)
}

func TestPermissionTemplates_BlankNameRejected(t *testing.T) {
	e := newEnv(t)
	sys := e.user("root", model.RoleSystemAdmin, "")

	w := e.do(http.MethodPost, "/api/permissions", sys, map[string]string{"name": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	body := decode[errorBody](t, w)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "name", body.Errors[0].Field)
	assert.Equal(t, "name is required", body.Errors[0].Message)

	w = e.do(http.MethodPost, "/api/permissions", sys, map[string]string{"name": "  Desk lead  "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[model.PermissionTemplate](t, w)
	assert.Equal(t, "Desk lead", p.Name)

	w = e.do(http.MethodPut, "/api/permissions/"+p.ID, sys, map[string]string{"name": "\t "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name", decode[errorBody](t, w).Errors[0].Field)

	var stored model.PermissionTemplate
	require.NoError(t, e.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, "Desk lead", stored.Name)

	var n int64
	require.NoError(t, e.db.Model(&model.PermissionTemplate{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestAuditLogs_Scoped(t *testing.T) {
	e := newEnv(t)
	dhaka := e.user("dhaka", model.RoleAgent, "Dhaka")
	sylhet := e.user("sylhet", model.RoleAgent, "Sylhet")
	admin := e.user("admin", model.RoleAdmin, "Dhaka")
	sys := e.user("root", model.RoleSystemAdmin, "")
	e.do(http.MethodPost, "/api/tasks", dhaka, newTaskBody(nil))
	e.do(http.MethodPost, "/api/tasks", sylhet, newTaskBody(nil))

	count := func(u *model.User, query string) int64 {
		w := e.do(http.MethodGet, "/api/audit"+query, u, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[listBody[model.AuditLog]](t, w).Pagination.Total
	}
	assert.EqualValues(t, 1, count(admin, "?resourceType=Task"))
	assert.EqualValues(t, 2, count(sys, "?resourceType=Task"))
	assert.EqualValues(t, 1, count(sys, "?userId="+sylhet.ID))
	assert.EqualValues(t, 0, count(sys, "?resourceType=Task&to=2000-01-01"))

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/audit", dhaka, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/audit?from=yesterday", sys, nil).Code)
}

func TestClientLogs_Public(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/logs", nil, map[string]any{
		"level":   "error",
		"message": "TypeError: x is undefined",
		"url":     "http://frontend.test/tasks",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestClientLogs_BodyCapped(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/logs", nil, map[string]any{
		"level":   "error",
		"message": "boom",
		"context": map[string]string{"dump": strings.Repeat("x", 64<<10)},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	wide := make(map[string]int, 40)
	for i := range 40 {
		wide[fmt.Sprintf("k%d", i)] = i
	}
	w = e.do(http.MethodPost, "/api/logs", nil, map[string]any{"message": "boom", "context": wide})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "context", decode[errorBody](t, w).Errors[0].Field)

	w = e.do(http.MethodPost, "/api/logs", nil, map[string]any{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", decode[errorBody](t, w).Message)
}
