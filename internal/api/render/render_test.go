package render_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	render.JSON(w, http.StatusCreated, map[string]string{"name": "test"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"test"}`, w.Body.String())
}

func TestList_EmptySlice(t *testing.T) {
	w := httptest.NewRecorder()
	render.List[string](w, http.StatusOK, nil, render.NewPagination(1, 20, 0))

	var doc render.ListDocument[string]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.NotNil(t, doc.Data)
	assert.Len(t, doc.Data, 0)
	assert.Equal(t, 0, doc.Pagination.TotalPages)
}

func TestNewPagination_RoundsUp(t *testing.T) {
	p := render.NewPagination(2, 20, 41)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(41), p.Total)
}

func TestValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()
	render.ValidationErrors(w, []render.FieldError{{Field: "username", Message: "username is required"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var doc render.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Validation failed", doc.Message)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "username", doc.Errors[0].Field)
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	render.Error(w, http.StatusNotFound, "Task not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Task not found"}`, w.Body.String())
}
