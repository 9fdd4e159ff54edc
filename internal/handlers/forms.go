package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"

	"memo-web/internal/domain"
	"memo-web/internal/validation"
	appErrors "memo-web/pkg/errors"
)

// SignInForm is posted by the sign-in screen.
type SignInForm struct {
	Email    string `json:"email" form:"email" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// SignUpForm is posted by the sign-up screen.
type SignUpForm struct {
	Email           string `json:"email" form:"email" validate:"required,email"`
	Password        string `json:"password" form:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword" validate:"required,eqfield=Password"`
}

// CategoryForm is posted when adding or renaming a category.
type CategoryForm struct {
	Name string `json:"name" form:"name" validate:"required,trimmed_min=2,trimmed_max=50"`
}

// MemoForm is posted when adding or editing a memo. The image travels as a
// multipart file named "image".
type MemoForm struct {
	Title      string `json:"title" form:"title" validate:"required,trimmed_min=2,trimmed_max=100"`
	Content    string `json:"content" form:"content" validate:"required,trimmed_min=5"`
	CategoryID string `json:"category_id" form:"category_id" validate:"required"`
}

const multipartMemory = 1 << 20

// bind decodes a JSON, urlencoded or multipart body into dst and validates
// it.
func bind(r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return bodyError(err)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return bodyError(err)
		}
		fillForm(r, dst)
	default:
		if err := r.ParseForm(); err != nil {
			return bodyError(err)
		}
		fillForm(r, dst)
	}
	return validation.Struct(dst)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return appErrors.NewValidation("image", fmt.Sprintf("Request is larger than %d bytes", tooLarge.Limit))
	}
	return appErrors.NewValidation("", "The submitted form could not be read")
}

// fillForm copies form values into the string fields of dst that carry a
// form tag.
func fillForm(r *http.Request, dst any) {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("form")
		if name == "" || v.Field(i).Kind() != reflect.String {
			continue
		}
		v.Field(i).SetString(r.FormValue(name))
	}
}

// formImage returns the uploaded image, if any, and a func releasing it.
func formImage(r *http.Request) (*domain.ImageFile, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, appErrors.NewValidation("image", "The image could not be read")
	}
	img := &domain.ImageFile{Name: header.Filename, Body: file, Size: header.Size}
	return img, func() { _ = file.Close() }, nil
}
