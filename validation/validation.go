package validation

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"printportal-backend/apperr"
)

var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// DeadlineLayouts are the accepted deadline encodings, tried in order.
var DeadlineLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
		return emailShape.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("deadline", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := ParseDeadline(s)
		return err == nil
	})
	return v
}

// Engine exposes the shared instance for struct-level registrations.
func Engine() *validator.Validate { return validate }

// Struct validates v with the shared validator instance.
func Struct(v interface{}) error {
	return validate.Struct(v)
}

// ParseDeadline parses a deadline in any accepted layout.
func ParseDeadline(s string) (time.Time, error) {
	var err error
	for _, layout := range DeadlineLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// IsEmailShape applies the basic email-shape check.
func IsEmailShape(s string) bool { return emailShape.MatchString(s) }

// ToAppError converts validator output into a ValidationError listing every failing field.
// Non-validator errors are returned unchanged.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = describe(fe)
	}
	return apperr.Validation(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "emailshape":
		return "must be a valid email address"
	case "deadline":
		return "must be a valid date"
	case "excluded":
		return "is only allowed for work orders"
	}
	return "is invalid"
}
