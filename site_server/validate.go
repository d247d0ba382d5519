package main

import (
	"errors"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	nameCharsPattern  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	phoneCharsPattern = regexp.MustCompile(`^[0-9+\-()\s]+$`)

	formValidator = newFormValidator()
)

// One message per field, keyed by "field" with an optional "field.tag"
// override for fields that carry more than one rule.
var fieldMessages = map[string]string{
	"name":           "Name must be between 2 and 100 characters",
	"name.namechars": "Name can only contain letters and spaces",
	"email":          "Please enter a valid email address",
	"phone":          "Please enter a valid phone number",
	"subject":        "Subject must be between 2 and 200 characters",
	"message":        "Message must be between 10 and 5000 characters",
}

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("namechars", func(fl validator.FieldLevel) bool {
		return nameCharsPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phonechars", func(fl validator.FieldLevel) bool {
		return phoneCharsPattern.MatchString(fl.Field().String())
	})
	return v
}

func (f *ContactForm) normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Phone = strings.TrimSpace(f.Phone)
	f.Subject = strings.TrimSpace(f.Subject)
	f.Message = strings.TrimSpace(f.Message)
}

// sanitize HTML-escapes the free-text fields for storage. Called only
// after validation has passed on the normalized values.
func (f *ContactForm) sanitize() {
	f.Name = html.EscapeString(f.Name)
	f.Phone = html.EscapeString(f.Phone)
	f.Subject = html.EscapeString(f.Subject)
	f.Message = html.EscapeString(f.Message)
}

// validateContactForm normalizes the form in place and returns one error
// per offending field, or nil when every field passes.
func validateContactForm(form *ContactForm) []FieldError {
	form.normalize()

	err := formValidator.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "form", Message: "Invalid form payload"}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: messageForField(fe.Field(), fe.Tag())})
	}
	return out
}

func messageForField(field, tag string) string {
	if msg, ok := fieldMessages[field+"."+tag]; ok {
		return msg
	}
	if msg, ok := fieldMessages[field]; ok {
		return msg
	}
	return "Invalid value"
}
