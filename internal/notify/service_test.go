package notify_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dnothi/dnothi/internal/db"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T, name string) (*notify.Service, *notify.Hub, *gorm.DB) {
	t.Helper()
	gormDB, err := db.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	hub := notify.NewHub(nullLogger())
	return notify.NewService(gormDB, notify.NewLocalBroker(hub), nullLogger()), hub, gormDB
}

func decodeFrame(t *testing.T, frame []byte) notify.Event {
	t.Helper()
	s := string(frame)
	require.True(t, strings.HasPrefix(s, "data: "))
	require.True(t, strings.HasSuffix(s, "\n\n"))
	var ev notify.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(s, "data: "), "\n\n")), &ev))
	return ev
}

func TestNotifyTaskCreated_BroadcastsAndStores(t *testing.T) {
	svc, hub, gormDB := newService(t, "notify_task_created")
	a, _ := connect(hub, "u1", model.RoleAgent, "Dhaka", false)
	b, _ := connect(hub, "u2", model.RoleAdmin, "Sylhet", false)

	svc.NotifyTaskCreated(context.Background(), &model.Task{ID: "t1", UserName: "Karim"})

	require.Len(t, a.Frames(), 1)
	require.Len(t, b.Frames(), 1)
	assert.Equal(t, a.Frames()[0], b.Frames()[0])
	ev := decodeFrame(t, a.Frames()[0])
	assert.Equal(t, "task_created", ev.Type)

	var rows []model.Notification
	require.NoError(t, gormDB.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].UserID)
	assert.Nil(t, rows[0].RecipientRole)
	assert.Equal(t, "task_created", rows[0].Type)
}

func TestNotifyLeaveRequested_OfficeApproversAndSystemAdmins(t *testing.T) {
	svc, hub, gormDB := newService(t, "notify_leave_requested")
	agent, _ := connect(hub, "u1", model.RoleAgent, "Dhaka", false)
	admin, _ := connect(hub, "u2", model.RoleAdmin, "Dhaka", false)
	sup, _ := connect(hub, "u3", model.RoleSupervisor, "Dhaka", false)
	otherAdmin, _ := connect(hub, "u4", model.RoleAdmin, "Sylhet", false)
	sa, _ := connect(hub, "u5", model.RoleSystemAdmin, "HQ", false)

	svc.NotifyLeaveRequested(context.Background(), &model.Leave{ID: "l1", UserID: "u1", Office: "Dhaka", UserName: "Karim", LeaveType: "Casual", Days: 2})

	assert.Len(t, agent.Frames(), 0)
	assert.Len(t, admin.Frames(), 1)
	assert.Len(t, sup.Frames(), 1)
	assert.Len(t, otherAdmin.Frames(), 0)
	assert.Len(t, sa.Frames(), 1)

	var count int64
	require.NoError(t, gormDB.Model(&model.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestNotifyLeaveApproved_OnlyRequesterSide(t *testing.T) {
	svc, hub, gormDB := newService(t, "notify_leave_approved")
	onLeave, _ := connect(hub, "u1", model.RoleAgent, "Dhaka", false)
	filer, _ := connect(hub, "u2", model.RoleAdmin, "Dhaka", false)
	bystander, _ := connect(hub, "u3", model.RoleAgent, "Dhaka", false)

	svc.NotifyLeaveApproved(context.Background(), &model.Leave{ID: "l1", UserID: "u1", RequestedByID: "u2", Office: "Dhaka"})

	assert.Len(t, onLeave.Frames(), 1)
	assert.Len(t, filer.Frames(), 1)
	assert.Len(t, bystander.Frames(), 0)

	var rows []model.Notification
	require.NoError(t, gormDB.Order("user_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", *rows[0].UserID)
	assert.Equal(t, "u2", *rows[1].UserID)
}

func TestNotifyCollaboration_OfficeOnly(t *testing.T) {
	svc, hub, _ := newService(t, "notify_collaboration")
	dhaka, _ := connect(hub, "u1", model.RoleAgent, "Dhaka", false)
	sylhet, _ := connect(hub, "u2", model.RoleAgent, "Sylhet", false)

	svc.NotifyCollaborationCreated(context.Background(), &model.Collaboration{ID: "c1", Office: "Dhaka", Title: "Need help"})

	assert.Len(t, dhaka.Frames(), 1)
	assert.Len(t, sylhet.Frames(), 0)
}

func TestMeetingRecipients_Deduplicated(t *testing.T) {
	svc, hub, gormDB := newService(t, "notify_meeting_recipients")
	users := []*model.User{
		{Username: "creator", Email: "c@example.com", Role: model.RoleAgent, Office: "Dhaka", IsActive: true},
		{Username: "guest", Email: "g@example.com", Role: model.RoleAgent, Office: "Sylhet", IsActive: true},
		{Username: "sup", Email: "s@example.com", Role: model.RoleSupervisor, Office: "Dhaka", IsActive: true},
		{Username: "bystander", Email: "b@example.com", Role: model.RoleAgent, Office: "Dhaka", IsActive: true},
	}
	for _, u := range users {
		require.NoError(t, gormDB.Create(u).Error)
	}
	creator, guest, sup, bystander := users[0], users[1], users[2], users[3]

	m := &model.Meeting{ID: "m1", CreatedByID: creator.ID, Subject: "Planning", Participants: []model.User{*guest, *sup}}
	ids, err := svc.MeetingRecipients(context.Background(), m)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{creator.ID, guest.ID, sup.ID}, ids)

	bs, _ := connect(hub, bystander.ID, bystander.Role, bystander.Office, false)
	gs, _ := connect(hub, guest.ID, guest.Role, guest.Office, false)
	svc.NotifyMeetingCreated(context.Background(), m)
	assert.Len(t, gs.Frames(), 1)
	assert.Len(t, bs.Frames(), 0)
}

func TestNotifyMeeting_FallsBackToBroadcast(t *testing.T) {
	svc, hub, gormDB := newService(t, "notify_meeting_fallback")
	s, _ := connect(hub, "anyone", model.RoleAgent, "Dhaka", false)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	svc.NotifyMeetingDeleted(context.Background(), &model.Meeting{ID: "m1", CreatedByID: "x", Subject: "Gone"})
	require.Len(t, s.Frames(), 1)
	assert.Equal(t, "meeting_deleted", decodeFrame(t, s.Frames()[0]).Type)
}

func TestNotifyWarning_UserOrEveryone(t *testing.T) {
	svc, hub, _ := newService(t, "notify_warning")
	a, _ := connect(hub, "u1", model.RoleAgent, "Dhaka", false)
	b, _ := connect(hub, "u2", model.RoleAgent, "Dhaka", false)

	svc.NotifyWarning(context.Background(), "u1", "Quota almost full", nil)
	assert.Len(t, a.Frames(), 1)
	assert.Len(t, b.Frames(), 0)

	svc.NotifyError(context.Background(), "", "Maintenance", nil)
	assert.Len(t, a.Frames(), 2)
	assert.Len(t, b.Frames(), 1)
}
