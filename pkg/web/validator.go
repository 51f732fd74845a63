package web

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Custom validation tags.
const (
	TagPositiveAmount    = "positive_amount"
	TagNonNegativeAmount = "nonnegative_amount"
)

func parseAmount(fl validator.FieldLevel) (decimal.Decimal, bool) {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}

	return d, true
}

// PositiveAmount validates that the field is a decimal string greater than zero.
var PositiveAmount validator.Func = func(fl validator.FieldLevel) bool {
	d, ok := parseAmount(fl)
	return ok && d.IsPositive()
}

// NonNegativeAmount validates that the field is a decimal string not less than zero.
var NonNegativeAmount validator.Func = func(fl validator.FieldLevel) bool {
	d, ok := parseAmount(fl)
	return ok && !d.IsNegative()
}

// RegisterValidators registers custom tags on the gin binding validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}

	if err := v.RegisterValidation(TagPositiveAmount, PositiveAmount); err != nil {
		return err
	}

	return v.RegisterValidation(TagNonNegativeAmount, NonNegativeAmount)
}

// GetErrorMsg returns a human readable message for the first failed field.
func GetErrorMsg(ve validator.ValidationErrors) string {
	if len(ve) == 0 {
		return ""
	}

	fe := ve[0]

	switch fe.Tag() {
	case "required":
		return fe.Field() + " field is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case TagPositiveAmount:
		return fe.Field() + " must be a positive decimal number"
	case TagNonNegativeAmount:
		return fe.Field() + " must be a non-negative decimal number"
	}

	return fe.Field() + " is invalid"
}
