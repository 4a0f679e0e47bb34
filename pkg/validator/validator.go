package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	phonePattern     = regexp.MustCompile(`^[0-9]{8,15}$`)
	clockTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// ValidationError is one failed rule on a request field. Message is safe to
// show to builder users.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors collects every failed rule of a struct.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, failure := range v {
		parts[i] = failure.Message
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct checks s against its validate tags. Field names follow the
// json tags so messages match what the client sent.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	failures := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		failures = append(failures, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe.Field(), fe.Tag(), fe.Param()),
		})
	}
	return failures
}

// ValidateVar validates a single value against a tag expression such as "email".
func ValidateVar(value any, tag string) error {
	return engine().Var(value, tag)
}

func describe(field, tag, param string) string {
	name := strings.ToLower(strings.ReplaceAll(field, "_", " "))
	if name == "" {
		name = "field"
	}
	switch tag {
	case "required", "required_without":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, param)
	case "uuid", "uuid4":
		return name + " must be a valid UUID"
	case "phone":
		return name + " must be a WhatsApp number with 8 to 15 digits"
	case "clock":
		return name + " must be a time of day as HH:MM"
	case "timezone":
		return name + " must be an IANA time zone such as America/Sao_Paulo"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, param)
	case "hexcolor":
		return name + " must be a hex colour"
	}
	if param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", name, tag, param)
	}
	return fmt.Sprintf("%s failed validation: %s", name, tag)
}

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return IsPhone(fl.Field().String())
		})
		_ = validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			return IsClockTime(fl.Field().String())
		})
		_ = validate.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
			return IsTimezone(fl.Field().String())
		})
	})
	return validate
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// IsPhone reports whether value looks like a WhatsApp number once
// punctuation and the leading plus are dropped.
func IsPhone(value string) bool {
	return phonePattern.MatchString(NormalizePhone(value))
}

// IsClockTime reports whether value is a 24-hour HH:MM time.
func IsClockTime(value string) bool {
	return clockTimePattern.MatchString(strings.TrimSpace(value))
}

// IsTimezone accepts IANA zone names. "Local" is rejected since it means a
// different zone on every host.
func IsTimezone(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || value == "Local" {
		return false
	}
	_, err := time.LoadLocation(value)
	return err == nil
}

// NormalizePhone reduces a phone number to its digits, dropping the leading plus
// and any spaces, dashes, dots or parentheses.
func NormalizePhone(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '+':
			return -1
		}
		return r
	}, strings.TrimSpace(value))
}
