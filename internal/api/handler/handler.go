// Package handler contains HTTP handlers grouped by resource.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/dnothi/dnothi/internal/api/middleware"
	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/audit"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/notify"
	"github.com/dnothi/dnothi/internal/policy"
	"github.com/dnothi/dnothi/internal/worker"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/gorilla/schema"
	"gorm.io/gorm"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	DB         *gorm.DB
	Gate       *policy.Gate
	Audit      *audit.Recorder
	Notify     *notify.Service
	Queue      worker.Queue
	Log        *slog.Logger
	Production bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" {
			name = f.Tag.Get("schema")
		}
		if name == "-" {
			return ""
		}
		return name
	})
	// Names and titles made only of whitespace are treated as missing.
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// decodeJSON reads r's body into dst and validates it. On failure it writes
// the 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			render.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		render.Error(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return validStruct(w, dst)
}

// decodeQuery decodes the query string into dst and validates it.
func decodeQuery(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := queryDecoder.Decode(dst, r.URL.Query()); err != nil {
		render.Error(w, http.StatusBadRequest, "Invalid query parameters")
		return false
	}
	return validStruct(w, dst)
}

func validStruct(w http.ResponseWriter, v any) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}
	render.ValidationErrors(w, fieldErrors(err, ""))
	return false
}

// fieldErrors converts validator errors to response entries. prefix, if
// set, is prepended to each field path.
func fieldErrors(err error, prefix string) []render.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []render.FieldError{{Field: prefix, Message: err.Error()}}
	}
	out := make([]render.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if prefix != "" {
			field = prefix + "." + field
		}
		out = append(out, render.FieldError{Field: field, Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return f + " is required"
	case "email":
		return f + " must be a valid email address"
	case "oneof":
		return f + " must be one of: " + strings.Join(oneofValues(fe.Param()), ", ")
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "datetime":
		if fe.Param() == model.DateLayout {
			return f + " must be a date in YYYY-MM-DD format"
		}
		return f + " must be a time in HH:MM format"
	case "url":
		return f + " must be a valid URL"
	default:
		return f + " is invalid"
	}
}

var oneofParam = regexp.MustCompile(`'[^']*'|\S+`)

func oneofValues(param string) []string {
	vals := oneofParam.FindAllString(param, -1)
	for i, v := range vals {
		vals[i] = strings.Trim(v, "'")
	}
	return vals
}

// pageQuery is embedded by list queries.
type pageQuery struct {
	Page  int `schema:"page" validate:"omitempty,min=1"`
	Limit int `schema:"limit" validate:"omitempty,min=1,max=500"`
}

const defaultLimit = 20

func (p pageQuery) window() (page, limit, offset int) {
	page, limit = p.Page, p.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	return page, limit, (page - 1) * limit
}

// paginate counts q, then loads one page of it into dst.
func paginate[T any](q *gorm.DB, p pageQuery, order string) ([]T, *render.Pagination, error) {
	page, limit, offset := p.window()
	var total int64
	if err := q.Session(&gorm.Session{}).Model(new(T)).Count(&total).Error; err != nil {
		return nil, nil, fmt.Errorf("count: %w", err)
	}
	var rows []T
	if err := q.Session(&gorm.Session{}).Order(order).Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("list: %w", err)
	}
	return rows, render.NewPagination(page, limit, total), nil
}

// fail maps err to a response. notFound is the message for missing rows.
func (d *Deps) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		render.Error(w, http.StatusNotFound, notFound)
	case errors.Is(err, policy.ErrUnauthenticated):
		render.Error(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, policy.ErrForbidden), errors.Is(err, policy.ErrNoPolicyDefined):
		render.Error(w, http.StatusForbidden, "Access denied")
	case isDuplicate(err):
		render.Error(w, http.StatusConflict, "Resource already exists")
	default:
		d.Log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		if d.Production {
			render.Error(w, http.StatusInternalServerError, "Server error")
			return
		}
		render.ErrorDetail(w, http.StatusInternalServerError, "Server error", err.Error())
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// authorize runs the gate and writes the error response on denial.
func (d *Deps) authorize(w http.ResponseWriter, r *http.Request, action policy.Action, resourceType string, resource any) bool {
	err := d.Gate.Authorize(r.Context(), currentUser(r), action, resourceType, resource)
	if err == nil {
		return true
	}
	d.fail(w, r, err, "")
	return false
}

func (d *Deps) audit(r *http.Request, action, resourceType, resourceID, description string) {
	d.Audit.Record(r, currentUser(r), audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
	})
}

func currentUser(r *http.Request) *model.User {
	return middleware.UserFromContext(r.Context())
}

func displayName(u *model.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// filesOnlyForSelf reports whether u can only ever file records for
// themselves.
func filesOnlyForSelf(u *model.User) bool {
	return !u.HasRole(model.RoleSystemAdmin, model.RoleAdmin)
}

// like escapes s for a LIKE pattern and wraps it in %.
func like(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

func auditEntry(action, resourceType, resourceID, description string) audit.Entry {
	return audit.Entry{Action: action, ResourceType: resourceType, ResourceID: resourceID, Description: description}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// exists reports whether any T row matches the condition.
func exists[T any](db *gorm.DB, query string, args ...any) (bool, error) {
	var n int64
	if err := db.Model(new(T)).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
