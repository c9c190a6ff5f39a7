package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// bcrypt rejects passwords longer than this many bytes.
const maxPasswordBytes = 72

// Rules for single-field checks during profile updates; keep in step with RegisterInput.
const (
	usernameRules = "required,min=3,max=50,username"
	emailRules    = "required,email,max=254"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

// fieldErrors converts validator output into a ValidationError. Other errors pass through.
func fieldErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

// checkVar validates a single value and reports it under field.
func checkVar(v *validator.Validate, field string, value any, rules string) (string, bool) {
	err := v.Var(value, rules)
	if err == nil {
		return "", true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return describe(verrs[0]), false
	}
	return err.Error(), false
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "username":
		return "may only contain letters, numbers, _ and -"
	case "bcryptlen":
		return fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)
	}
	return "is invalid"
}
