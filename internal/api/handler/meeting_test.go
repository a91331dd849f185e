package handler_test

import (
	"net/http"
	"testing"

	"github.com/dnothi/dnothi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeeting_Participants(t *testing.T) {
	e := newEnv(t)
	host := e.user("host", model.RoleAgent, "Dhaka")
	guest := e.user("guest", model.RoleAgent, "Sylhet")
	outsider := e.user("outsider", model.RoleAgent, "Dhaka")

	w := e.do(http.MethodPost, "/api/meetings", host, map[string]any{
		"subject":         "Weekly sync",
		"platform":        "Zoom",
		"date":            "2026-05-10",
		"startTime":       "10:30",
		"duration":        45,
		"link":            "https://zoom.example/j/1",
		"selectedUserIds": []string{guest.ID, "unknown"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := decode[model.Meeting](t, w)
	assert.Equal(t, []string{guest.ID}, m.SelectedUserIDs)
	assert.Equal(t, "Dhaka", m.Office)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/meetings/"+m.ID, guest, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/meetings/"+m.ID, outsider, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, "/api/meetings/"+m.ID, guest, map[string]string{"subject": "x"}).Code)

	w = e.do(http.MethodGet, "/api/meetings", guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[listBody[model.Meeting]](t, w).Pagination.Total)
	w = e.do(http.MethodGet, "/api/meetings", outsider, nil)
	assert.EqualValues(t, 0, decode[listBody[model.Meeting]](t, w).Pagination.Total)

	w = e.do(http.MethodPut, "/api/meetings/"+m.ID, host, map[string]any{"selectedUserIds": []string{outsider.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{outsider.ID}, decode[model.Meeting](t, w).SelectedUserIDs)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/meetings/"+m.ID, guest, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/meetings/"+m.ID, outsider, nil).Code)

	w = e.do(http.MethodDelete, "/api/meetings/"+m.ID, host, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var links int64
	require.NoError(t, e.db.Table("meeting_users").Where("meeting_id = ?", m.ID).Count(&links).Error)
	assert.Zero(t, links)
	assert.Len(t, e.auditRows(model.ResourceMeeting, m.ID), 3)
}

func TestMeeting_Validation(t *testing.T) {
	e := newEnv(t)
	host := e.user("host", model.RoleAgent, "Dhaka")

	w := e.do(http.MethodPost, "/api/meetings", host, map[string]any{
		"date":      "2026-05-10",
		"startTime": "25:99",
		"link":      "not a url",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := map[string]bool{}
	for _, fe := range decode[errorBody](t, w).Errors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["subject"])
	assert.True(t, fields["startTime"])
	assert.True(t, fields["link"])
}
