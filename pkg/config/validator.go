package config

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ratePattern matches the ulule/limiter formatted rate, e.g. "60-M" or "5-S".
var ratePattern = regexp.MustCompile(`^[1-9][0-9]*-[SMHD]$`)

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("rate_format", validateRateFormat)
}

func validateRateFormat(fl validator.FieldLevel) bool {
	return ratePattern.MatchString(fl.Field().String())
}
