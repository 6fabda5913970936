package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validations
	registerCustomValidations()
}

func registerCustomValidations() {
	// Wallet role validation
	validate.RegisterValidation("wallet_role", func(fl validator.FieldLevel) bool {
		role := strings.ToUpper(fl.Field().String())
		return role == "STUDENT" || role == "TUTOR"
	})

	// Transaction type filter validation (empty allowed)
	validate.RegisterValidation("tx_type", func(fl validator.FieldLevel) bool {
		typ := strings.ToUpper(fl.Field().String())
		switch typ {
		case "", "PURCHASE", "USAGE", "REFUND":
			return true
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "wallet_role":
			errors[field] = "Invalid role. Must be: STUDENT or TUTOR"
		case "tx_type":
			errors[field] = "Invalid transaction type. Must be: PURCHASE, USAGE, or REFUND"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
