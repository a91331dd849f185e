package handler_test

import (
	"net/http"
	"testing"

	"github.com/dnothi/dnothi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func requestLeave(t *testing.T, e *testEnv, u *model.User) model.Leave {
	t.Helper()
	w := e.do(http.MethodPost, "/api/leaves", u, map[string]string{
		"leaveType": "Casual",
		"startDate": "2026-04-01",
		"endDate":   "2026-04-03",
		"reason":    "family event",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Leave](t, w)
}

func TestCreateLeave_ComputesDays(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")

	l := requestLeave(t, e, agent)
	assert.Equal(t, 3, l.Days)
	assert.Equal(t, model.LeavePending, l.Status)
	assert.Equal(t, agent.ID, l.UserID)
	assert.Equal(t, agent.ID, l.RequestedByID)
	assert.Equal(t, "Dhaka", l.Office)
	assert.Len(t, e.auditRows(model.ResourceLeave, l.ID), 1)
}

func TestCreateLeave_EndBeforeStart(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")

	w := e.do(http.MethodPost, "/api/leaves", agent, map[string]string{
		"leaveType": "Casual",
		"startDate": "2026-04-03",
		"endDate":   "2026-04-01",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "endDate", body.Errors[0].Field)
}

func TestCreateLeave_AgentCannotFileForOthers(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")
	colleague := e.user("colleague", model.RoleAgent, "Dhaka")

	w := e.do(http.MethodPost, "/api/leaves", agent, map[string]string{
		"userId":    colleague.ID,
		"leaveType": "Sick",
		"startDate": "2026-04-01",
		"endDate":   "2026-04-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, agent.ID, decode[model.Leave](t, w).UserID)
}

func TestApproveLeave(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")
	other := e.user("other", model.RoleAdmin, "Sylhet")
	peer := e.user("peer", model.RoleAgent, "Dhaka")
	sys := e.user("root", model.RoleSystemAdmin, "")
	l := requestLeave(t, e, agent)
	path := "/api/leaves/" + l.ID + "/approve"

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, path, other, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, path, peer, nil).Code)

	w := e.do(http.MethodPut, path, sys, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[model.Leave](t, w)
	assert.Equal(t, model.LeaveApproved, got.Status)
	require.NotNil(t, got.ApprovedByID)
	assert.Equal(t, sys.ID, *got.ApprovedByID)
	assert.NotNil(t, got.ApprovedAt)

	w = e.do(http.MethodPut, path, sys, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rows := e.auditRows(model.ResourceLeave, l.ID)
	require.Len(t, rows, 2)
	var approvals int
	for _, r := range rows {
		if r.Action == model.ActionApprove {
			approvals++
		}
	}
	assert.Equal(t, 1, approvals)

	sent := e.mail.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, agent.Email, sent[0].To)
}

func TestRejectLeave_SameOfficeSupervisor(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")
	supervisor := e.user("super", model.RoleSupervisor, "Dhaka")
	l := requestLeave(t, e, agent)

	w := e.do(http.MethodPut, "/api/leaves/"+l.ID+"/reject", supervisor, map[string]string{"rejectionReason": "short staffed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[model.Leave](t, w)
	assert.Equal(t, model.LeaveRejected, got.Status)
	assert.Equal(t, "short staffed", got.RejectionReason)

	w = e.do(http.MethodPut, "/api/leaves/"+l.ID, agent, map[string]string{"reason": "changed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodDelete, "/api/leaves/"+l.ID, agent, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListLeaves_Scoped(t *testing.T) {
	e := newEnv(t)
	a := e.user("a", model.RoleAgent, "Dhaka")
	b := e.user("b", model.RoleAgent, "Sylhet")
	admin := e.user("admin", model.RoleAdmin, "Dhaka")
	requestLeave(t, e, a)
	requestLeave(t, e, b)

	for _, tc := range []struct {
		u    *model.User
		want int64
	}{{a, 1}, {b, 1}, {admin, 1}} {
		w := e.do(http.MethodGet, "/api/leaves", tc.u, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tc.want, decode[listBody[model.Leave]](t, w).Pagination.Total, tc.u.Username)
	}

	w := e.do(http.MethodGet, "/api/leaves?startDate=2026-05-01", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[listBody[model.Leave]](t, w).Pagination.Total)
}

// approveFirst makes the next write of kind on the leaves table lose a race
// against an approval committed just before it.
func approveFirst(t *testing.T, e *testEnv, id string, kind string) {
	t.Helper()
	var fired bool
	hook := func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "leaves" {
			return
		}
		fired = true
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE leaves SET status = ? WHERE id = ?", model.LeaveApproved, id)
	}
	var err error
	switch kind {
	case "update":
		err = e.db.Callback().Update().Before("gorm:update").Register("dnothi:approve_first", hook)
	case "delete":
		err = e.db.Callback().Delete().Before("gorm:delete").Register("dnothi:approve_first", hook)
	}
	require.NoError(t, err)
}

func TestUpdateLeave_ConcurrentApprovalWins(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")
	l := requestLeave(t, e, agent)
	approveFirst(t, e, l.ID, "update")

	w := e.do(http.MethodPut, "/api/leaves/"+l.ID, agent, map[string]string{"reason": "changed plans", "endDate": "2026-04-05"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var got model.Leave
	require.NoError(t, e.db.First(&got, "id = ?", l.ID).Error)
	assert.Equal(t, model.LeaveApproved, got.Status)
	assert.Equal(t, "family event", got.Reason)
	assert.Equal(t, 3, got.Days)
	assert.Len(t, e.auditRows(model.ResourceLeave, l.ID), 1)
}

func TestDeleteLeave_AgentCancelLosesToApproval(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")
	l := requestLeave(t, e, agent)
	approveFirst(t, e, l.ID, "delete")

	w := e.do(http.MethodDelete, "/api/leaves/"+l.ID, agent, nil)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var got model.Leave
	require.NoError(t, e.db.First(&got, "id = ?", l.ID).Error)
	assert.Equal(t, model.LeaveApproved, got.Status)
}

func TestUpdateLeave_PendingRecomputesDays(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")
	l := requestLeave(t, e, agent)

	w := e.do(http.MethodPut, "/api/leaves/"+l.ID, agent, map[string]string{"endDate": "2026-04-05"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5, decode[model.Leave](t, w).Days)

	var got model.Leave
	require.NoError(t, e.db.First(&got, "id = ?", l.ID).Error)
	assert.Equal(t, "2026-04-05", got.EndDate)
	assert.Equal(t, 5, got.Days)
	assert.Equal(t, model.LeavePending, got.Status)
}
