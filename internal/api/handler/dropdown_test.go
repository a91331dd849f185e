package handler_test

import (
	"net/http"
	"testing"

	"github.com/dnothi/dnothi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dropdownCount(t *testing.T, e *testEnv) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Dropdown{}).Count(&n).Error)
	return n
}

func TestCreateDropdown_CaseInsensitiveDuplicate(t *testing.T) {
	e := newEnv(t)
	admin := e.user("admin", model.RoleAdmin, "Dhaka")

	w := e.do(http.MethodPost, "/api/dropdowns", admin, map[string]string{"type": "Source", "value": "Phone"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[model.Dropdown](t, w)
	assert.True(t, d.IsActive)
	assert.Equal(t, "admin", d.CreatedBy)
	assert.Len(t, e.auditRows(model.ResourceDropdown, d.ID), 1)

	w = e.do(http.MethodPost, "/api/dropdowns", admin, map[string]string{"type": "Source", "value": "  phone "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Dropdown value already exists", decode[errorBody](t, w).Message)

	w = e.do(http.MethodPost, "/api/dropdowns", admin, map[string]string{"type": "Category", "value": "Phone"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateDropdown_ChildNeedsParent(t *testing.T) {
	e := newEnv(t)
	admin := e.user("admin", model.RoleAdmin, "Dhaka")

	w := e.do(http.MethodPost, "/api/dropdowns", admin, map[string]string{"type": "Sub-Category", "value": "Late bill"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "parentValue", body.Errors[0].Field)

	w = e.do(http.MethodPost, "/api/dropdowns", admin, map[string]string{
		"type": "Sub-Category", "value": "Late bill", "parentValue": "Billing",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[model.Dropdown](t, w)
	require.NotNil(t, d.ParentType)
	assert.Equal(t, model.DropdownCategory, *d.ParentType)
	assert.Equal(t, "Billing", *d.ParentValue)
}

func TestCreateDropdown_AgentForbidden(t *testing.T) {
	e := newEnv(t)
	agent := e.user("agent", model.RoleAgent, "Dhaka")

	w := e.do(http.MethodPost, "/api/dropdowns", agent, map[string]string{"type": "Source", "value": "Email"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/dropdowns", agent, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBulkDropdowns(t *testing.T) {
	e := newEnv(t)
	admin := e.user("admin", model.RoleAdmin, "Dhaka")

	t.Run("internal duplicate rejects the batch", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/dropdowns/bulk", admin, []map[string]string{
			{"type": "Source", "value": "Phone"},
			{"type": "Source", "value": "Email"},
			{"type": "Source", "value": "PHONE"},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Duplicate entries in request", decode[errorBody](t, w).Message)
		assert.Zero(t, dropdownCount(t, e))
	})

	t.Run("invalid item rejects the batch", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/dropdowns/bulk", admin, map[string]any{
			"dropdowns": []map[string]string{
				{"type": "Source", "value": "Phone"},
				{"type": "Colour", "value": "Red"},
			},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decode[errorBody](t, w)
		require.NotEmpty(t, body.Errors)
		assert.Equal(t, "dropdowns[1].type", body.Errors[0].Field)
		assert.Zero(t, dropdownCount(t, e))
	})

	t.Run("valid batch is created", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/dropdowns/bulk", admin, map[string]any{
			"dropdowns": []map[string]string{
				{"type": "Source", "value": "Phone"},
				{"type": "Source", "value": "Email"},
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Len(t, decode[listBody[model.Dropdown]](t, w).Data, 2)
		assert.EqualValues(t, 2, dropdownCount(t, e))
	})

	t.Run("collision with stored value rejects the batch", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/dropdowns/bulk", admin, []map[string]string{
			{"type": "Source", "value": "Fax"},
			{"type": "Source", "value": "email"},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Some dropdown values already exist", decode[errorBody](t, w).Message)
		assert.EqualValues(t, 2, dropdownCount(t, e))
	})
}

func TestListDropdowns_HidesInactive(t *testing.T) {
	e := newEnv(t)
	admin := e.user("admin", model.RoleAdmin, "Dhaka")
	active := decode[model.Dropdown](t, e.do(http.MethodPost, "/api/dropdowns", admin, map[string]string{"type": "Office", "value": "Dhaka"}))
	hidden := decode[model.Dropdown](t, e.do(http.MethodPost, "/api/dropdowns", admin, map[string]string{"type": "Office", "value": "Sylhet"}))

	w := e.do(http.MethodPut, "/api/dropdowns/"+hidden.ID, admin, map[string]any{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/dropdowns?type=Office", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[listBody[model.Dropdown]](t, w).Data
	require.Len(t, rows, 1)
	assert.Equal(t, active.ID, rows[0].ID)

	w = e.do(http.MethodGet, "/api/dropdowns?type=Office&includeInactive=true", admin, nil)
	assert.Len(t, decode[listBody[model.Dropdown]](t, w).Data, 2)
}
