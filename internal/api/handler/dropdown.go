package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
	"gorm.io/gorm"
)

// DropdownHandler serves /api/dropdowns.
type DropdownHandler struct{ Deps }

// NewDropdownHandler creates a DropdownHandler.
func NewDropdownHandler(d Deps) *DropdownHandler { return &DropdownHandler{Deps: d} }

type dropdownListQuery struct {
	Type            string `schema:"type"`
	ParentType      string `schema:"parentType"`
	ParentValue     string `schema:"parentValue"`
	IncludeInactive bool   `schema:"includeInactive"`
}

// List handles GET /api/dropdowns. The taxonomy is small, so it is returned
// unpaginated.
func (h *DropdownHandler) List(w http.ResponseWriter, r *http.Request) {
	var q dropdownListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Scopes(policy.Scope(currentUser(r), policy.Dropdown))
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}
	if q.ParentType != "" {
		db = db.Where("parent_type = ?", q.ParentType)
	}
	if q.ParentValue != "" {
		db = db.Where("parent_value = ?", q.ParentValue)
	}
	if !q.IncludeInactive {
		db = db.Where("is_active = ?", true)
	}
	var rows []model.Dropdown
	if err := db.Order("type, value").Find(&rows).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, rows, nil)
}

func (h *DropdownHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.Dropdown, bool) {
	var d model.Dropdown
	if err := h.DB.WithContext(r.Context()).First(&d, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "Dropdown not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.Dropdown, &d) {
		return nil, false
	}
	return &d, true
}

// Get handles GET /api/dropdowns/{id}.
func (h *DropdownHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, d)
}

type dropdownRequest struct {
	Type        string `json:"type" validate:"required,oneof=Source Category Sub-Category Incident Office Obligation"`
	Value       string `json:"value" validate:"required,notblank"`
	ParentValue string `json:"parentValue"`
}

// build validates req beyond struct tags and returns the row to insert.
// Children of the taxonomy hang under a Category; other types never carry a
// parent.
func (req dropdownRequest) build(createdBy string) (model.Dropdown, []render.FieldError) {
	d := model.Dropdown{
		Type:      req.Type,
		Value:     strings.TrimSpace(req.Value),
		IsActive:  true,
		CreatedBy: createdBy,
	}
	if d.Value == "" {
		return d, []render.FieldError{{Field: "value", Message: "value is required"}}
	}
	if !model.IsChildType(req.Type) {
		return d, nil
	}
	parent := strings.TrimSpace(req.ParentValue)
	if parent == "" {
		return d, []render.FieldError{{Field: "parentValue", Message: "parentValue is required for " + req.Type}}
	}
	parentType := model.DropdownCategory
	d.ParentType = &parentType
	d.ParentValue = &parent
	return d, nil
}

// existingKeys returns the duplicate keys already stored for types.
func (h *DropdownHandler) existingKeys(db *gorm.DB, types []string, excludeID string) (map[string]bool, error) {
	q := db.Model(&model.Dropdown{}).Where("type IN ?", types)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var rows []model.Dropdown
	if err := q.Select("type", "value").Find(&rows).Error; err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(rows))
	for _, d := range rows {
		keys[model.DropdownKey(d.Type, d.Value)] = true
	}
	return keys, nil
}

// Create handles POST /api/dropdowns.
func (h *DropdownHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dropdownRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.authorize(w, r, policy.ActionCreate, policy.Dropdown, nil) {
		return
	}
	d, errs := req.build(currentUser(r).Username)
	if len(errs) > 0 {
		render.ValidationErrors(w, errs)
		return
	}
	keys, err := h.existingKeys(h.DB.WithContext(r.Context()), []string{d.Type}, "")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	if keys[model.DropdownKey(d.Type, d.Value)] {
		render.Error(w, http.StatusBadRequest, "Dropdown value already exists")
		return
	}
	if err := h.DB.WithContext(r.Context()).Create(&d).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionCreate, model.ResourceDropdown, d.ID, fmt.Sprintf("Created %s %q", d.Type, d.Value))
	h.Notify.NotifyDropdownCreated(r.Context(), &d)
	render.JSON(w, http.StatusCreated, &d)
}

type bulkDropdownRequest struct {
	Dropdowns []dropdownRequest `json:"dropdowns"`
}

// decodeBulk accepts either a bare array or {"dropdowns": [...]}.
func decodeBulk(r *http.Request) ([]dropdownRequest, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var items []dropdownRequest
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &items)
		return items, err
	}
	var wrapped bulkDropdownRequest
	err := json.Unmarshal(raw, &wrapped)
	return wrapped.Dropdowns, err
}

// Bulk handles POST /api/dropdowns/bulk. The batch is all or nothing: any
// invalid item, duplicate within the batch, or collision with a stored value
// rejects every item.
func (h *DropdownHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	items, err := decodeBulk(r)
	if err != nil {
		render.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(items) == 0 {
		render.ValidationErrors(w, []render.FieldError{{Field: "dropdowns", Message: "at least one dropdown is required"}})
		return
	}
	if !h.authorize(w, r, policy.ActionCreate, policy.Dropdown, nil) {
		return
	}

	createdBy := currentUser(r).Username
	rows := make([]model.Dropdown, 0, len(items))
	var errs []render.FieldError
	types := map[string]bool{}
	for i, item := range items {
		prefix := fmt.Sprintf("dropdowns[%d]", i)
		if err := validate.Struct(item); err != nil {
			errs = append(errs, fieldErrors(err, prefix)...)
			continue
		}
		d, itemErrs := item.build(createdBy)
		for _, fe := range itemErrs {
			errs = append(errs, render.FieldError{Field: prefix + "." + fe.Field, Message: fe.Message})
		}
		if len(itemErrs) == 0 {
			rows = append(rows, d)
			types[d.Type] = true
		}
	}
	if len(errs) > 0 {
		render.ValidationErrors(w, errs)
		return
	}

	seen := make(map[string]int, len(rows))
	for i, d := range rows {
		key := model.DropdownKey(d.Type, d.Value)
		if first, dup := seen[key]; dup {
			errs = append(errs, render.FieldError{
				Field:   fmt.Sprintf("dropdowns[%d].value", i),
				Message: fmt.Sprintf("duplicate of dropdowns[%d]: %s %q", first, d.Type, d.Value),
			})
			continue
		}
		seen[key] = i
	}
	if len(errs) > 0 {
		render.JSON(w, http.StatusBadRequest, render.ErrorDocument{Message: "Duplicate entries in request", Errors: errs})
		return
	}

	typeList := make([]string, 0, len(types))
	for t := range types {
		typeList = append(typeList, t)
	}
	stored, err := h.existingKeys(h.DB.WithContext(r.Context()), typeList, "")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	for i, d := range rows {
		if stored[model.DropdownKey(d.Type, d.Value)] {
			errs = append(errs, render.FieldError{
				Field:   fmt.Sprintf("dropdowns[%d].value", i),
				Message: fmt.Sprintf("%s %q already exists", d.Type, d.Value),
			})
		}
	}
	if len(errs) > 0 {
		render.JSON(w, http.StatusBadRequest, render.ErrorDocument{Message: "Some dropdown values already exist", Errors: errs})
		return
	}

	if err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	}); err != nil {
		h.fail(w, r, err, "")
		return
	}
	for _, d := range rows {
		h.audit(r, model.ActionCreate, model.ResourceDropdown, d.ID, fmt.Sprintf("Created %s %q", d.Type, d.Value))
	}
	h.Notify.NotifyDropdownsBulkCreated(r.Context(), rows)
	render.List(w, http.StatusCreated, rows, nil)
}

type updateDropdownRequest struct {
	Value       *string `json:"value" validate:"omitempty,notblank"`
	ParentValue *string `json:"parentValue"`
	IsActive    *bool   `json:"isActive"`
}

// Update handles PUT /api/dropdowns/{id}. The type is fixed at creation.
func (h *DropdownHandler) Update(w http.ResponseWriter, r *http.Request) {
	d, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req updateDropdownRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value != nil {
		value := strings.TrimSpace(*req.Value)
		if value == "" {
			render.ValidationErrors(w, []render.FieldError{{Field: "value", Message: "value is required"}})
			return
		}
		keys, err := h.existingKeys(h.DB.WithContext(r.Context()), []string{d.Type}, d.ID)
		if err != nil {
			h.fail(w, r, err, "")
			return
		}
		if keys[model.DropdownKey(d.Type, value)] {
			render.Error(w, http.StatusBadRequest, "Dropdown value already exists")
			return
		}
		d.Value = value
	}
	if req.ParentValue != nil && model.IsChildType(d.Type) {
		parent := strings.TrimSpace(*req.ParentValue)
		if parent == "" {
			render.ValidationErrors(w, []render.FieldError{{Field: "parentValue", Message: "parentValue is required for " + d.Type}})
			return
		}
		d.ParentValue = &parent
	}
	setIf(&d.IsActive, req.IsActive)

	if err := h.DB.WithContext(r.Context()).Save(d).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionUpdate, model.ResourceDropdown, d.ID, fmt.Sprintf("Updated %s %q", d.Type, d.Value))
	h.Notify.NotifyDropdownUpdated(r.Context(), d)
	render.JSON(w, http.StatusOK, d)
}

// Delete handles DELETE /api/dropdowns/{id}.
func (h *DropdownHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(d).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionDelete, model.ResourceDropdown, d.ID, fmt.Sprintf("Deleted %s %q", d.Type, d.Value))
	h.Notify.NotifyDropdownDeleted(r.Context(), d)
	render.Message(w, http.StatusOK, "Dropdown deleted successfully")
}
