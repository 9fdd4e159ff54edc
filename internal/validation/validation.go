// Package validation checks form input and field values before anything is
// sent to the remote service.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	appErrors "memo-web/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// Field length limits.
const (
	CategoryNameMin = 2
	CategoryNameMax = 50
	MemoTitleMin    = 2
	MemoTitleMax    = 100
	MemoContentMin  = 5
	PasswordMin     = 6
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("trimmed_min", trimmedLength(func(n, limit int) bool { return n >= limit }))
	_ = v.RegisterValidation("trimmed_max", trimmedLength(func(n, limit int) bool { return n <= limit }))
	return v
}

// trimmedLength compares the rune count of the trimmed value to the tag
// parameter.
func trimmedLength(ok func(n, limit int) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return ok(utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())), limit)
	}
}

var messages = map[string]string{
	"email.required":           "Please enter your email",
	"email.email":              "Invalid email format",
	"password.required":        "Please enter your password",
	"password.min":             fmt.Sprintf("Password must be at least %d characters", PasswordMin),
	"confirmPassword.required": "Please confirm your password",
	"confirmPassword.eqfield":  "Passwords do not match",
	"name.required":            "Please enter a category name",
	"name.trimmed_min":         fmt.Sprintf("Category name must be at least %d characters", CategoryNameMin),
	"name.trimmed_max":         fmt.Sprintf("Category name must be at most %d characters", CategoryNameMax),
	"title.required":           "Please enter a title",
	"title.trimmed_min":        fmt.Sprintf("Title must be at least %d characters", MemoTitleMin),
	"title.trimmed_max":        fmt.Sprintf("Title must be at most %d characters", MemoTitleMax),
	"content.required":         "Please enter the content",
	"content.trimmed_min":      fmt.Sprintf("Content must be at least %d characters", MemoContentMin),
	"category_id.required":     "Please choose a category",
}

func message(field, tag string) string {
	if m, ok := messages[field+"."+tag]; ok {
		return m
	}
	return fmt.Sprintf("%s is invalid", field)
}

// FieldError is one failed field.
type FieldError struct {
	Field   string
	Message string
}

// Errors lists every failed field in declaration order.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, f := range e {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// Map returns the errors keyed by field.
func (e Errors) Map() map[string]string {
	out := make(map[string]string, len(e))
	for _, f := range e {
		if _, seen := out[f.Field]; !seen {
			out[f.Field] = f.Message
		}
	}
	return out
}

// Struct validates a tagged form. The returned error is a validation
// AppError naming the first failed field and wrapping Errors.
func Struct(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.NewUnexpected(err)
	}

	fields := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: message(fe.Field(), fe.Tag())})
	}
	return &appErrors.AppError{
		Kind:    appErrors.KindValidation,
		Field:   fields[0].Field,
		Message: fields[0].Message,
		Err:     fields,
	}
}

// FieldErrors extracts the per-field messages of a validation error.
func FieldErrors(err error) map[string]string {
	var fields Errors
	if errors.As(err, &fields) {
		return fields.Map()
	}
	if c := appErrors.Classify(err); c != nil && c.Kind == appErrors.KindValidation && c.Field != "" {
		return map[string]string{c.Field: c.Message}
	}
	return nil
}

func field(name, value, tags string) error {
	err := validate.Var(value, tags)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return appErrors.NewValidation(name, message(name, verrs[0].Tag()))
	}
	return appErrors.NewUnexpected(err)
}

// CategoryName trims name and checks its length.
func CategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", appErrors.NewValidation("name", message("name", "required"))
	}
	return name, field("name", name, fmt.Sprintf("trimmed_min=%d,trimmed_max=%d", CategoryNameMin, CategoryNameMax))
}

// MemoTitle trims title and checks its length.
func MemoTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", appErrors.NewValidation("title", message("title", "required"))
	}
	return title, field("title", title, fmt.Sprintf("trimmed_min=%d,trimmed_max=%d", MemoTitleMin, MemoTitleMax))
}

// MemoContent checks the memo body. Surrounding whitespace is kept.
func MemoContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return appErrors.NewValidation("content", message("content", "required"))
	}
	return field("content", content, fmt.Sprintf("trimmed_min=%d", MemoContentMin))
}

// CategoryID checks that a category was chosen.
func CategoryID(id string) error {
	return field("category_id", strings.TrimSpace(id), "required")
}
