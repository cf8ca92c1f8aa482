package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
)

var (
	phonePattern    = regexp.MustCompile(`^1[3-9]\d{9}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,50}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("cnphone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return name == "" || ValidUsername(name)
	})
	return v
}

// ValidPhone checks a mainland mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidUsername checks a login name. Phone-shaped names are refused since a
// phone-shaped identifier always logs in by phone.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name) && !ValidPhone(name)
}

// Struct validates s and reports every failing field, not only the first.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := apperr.FieldErrors{}
	for _, fe := range verrs {
		fields.Add(fe.Field(), message(fe))
	}
	return apperr.Validation(fields)
}

// Merge folds extra field errors into a validation result from Struct.
func Merge(err error, extra apperr.FieldErrors) error {
	if len(extra) == 0 {
		return err
	}
	var ae *apperr.Error
	if err != nil && errors.As(err, &ae) && ae.Kind == apperr.KindValidation {
		for f, msgs := range extra {
			for _, m := range msgs {
				ae.Fields.Add(f, m)
			}
		}
		return ae
	}
	if err != nil {
		return err
	}
	return apperr.Validation(extra)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "cnphone":
		return fe.Field() + " must be a valid mobile number"
	case "username":
		return fe.Field() + " must be 3-50 letters or digits and not a phone number"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
