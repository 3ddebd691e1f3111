package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator implements echo.Validator using go-playground/validator
type CustomValidator struct {
	v *validator.Validate
}

// New creates a new CustomValidator instance with the domain validations
// registered
func New() *CustomValidator {
	v := validator.New()

	// Transcript segments and chat messages arrive from UIs that happily
	// send whitespace-only strings; `required` alone lets those through.
	_ = v.RegisterValidation("notblank", notBlank)

	return &CustomValidator{v: v}
}

// Validate performs struct validation
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
