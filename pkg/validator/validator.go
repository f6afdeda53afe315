// Package validator wraps go-playground/validator with the registry's custom tags.
package validator

import (
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"devreg/internal/imei"
	"devreg/pkg/domain"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// localPhone accepts national numbers such as 08031234567.
var localPhone = regexp.MustCompile(`^0\d{9,10}$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for frontend usage
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "email":
					msg = "Invalid email address"
				case "max":
					msg = fmt.Sprintf("Must be at most %s characters", e.Param())
				case "imei":
					msg = "IMEI must be 15 digits with a valid checksum"
				case "device_status":
					msg = "Unknown device status"
				case "phone":
					msg = "Invalid phone number"
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (v *Validator) registerCustomValidations() {
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.validate.RegisterValidation("imei", func(fl validator.FieldLevel) bool {
		return imei.IsValid(fl.Field().String())
	})

	_ = v.validate.RegisterValidation("device_status", func(fl validator.FieldLevel) bool {
		return domain.DeviceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})

	_ = v.validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		phone := strings.ReplaceAll(strings.TrimSpace(fl.Field().String()), " ", "")
		return e164.MatchString(phone) || localPhone.MatchString(phone)
	})
}

// Sanitize cleans string input to prevent XSS attacks
func Sanitize(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}
