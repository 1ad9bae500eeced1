package handler

import (
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	digitalAddressPattern = regexp.MustCompile(`^[A-Z]{2}-\d{3}-\d{4}$`)
	// Ghana numbers, international (+233XXXXXXXXX) or national (0XXXXXXXXX).
	ghanaPhonePattern = regexp.MustCompile(`^(\+233|0)[235]\d{8}$`)
)

// RegisterValidators adds the custom binding rules used by the request
// structs to gin's validator engine. Call it once before serving.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("digital_address", func(fl validator.FieldLevel) bool {
		return digitalAddressPattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("register digital_address: %w", err)
	}
	if err := v.RegisterValidation("gh_phone", func(fl validator.FieldLevel) bool {
		return ghanaPhonePattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("register gh_phone: %w", err)
	}
	return nil
}
