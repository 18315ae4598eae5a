package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// decimal.Decimal is a struct, so the built-in numeric tags do not apply.
		_ = v.RegisterValidation("nonneg_decimal", func(fl validator.FieldLevel) bool {
			value, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && !value.IsNegative()
		})

		// Names end up in mail headers, so they must stay on one line.
		_ = v.RegisterValidation("single_line", func(fl validator.FieldLevel) bool {
			return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
		})

		validate = v
	})
	return validate
}

// validateStruct runs the struct tags of v and reports the first batch of
// failures as a single apperr.ErrValidation.
func validateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "alphanum":
		return fmt.Sprintf("%s must be alphanumeric", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "nonneg_decimal":
		return fmt.Sprintf("%s must not be negative", field)
	case "single_line":
		return fmt.Sprintf("%s must not contain control characters", field)
	case "gtefield":
		return fmt.Sprintf("%s must not be before %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

// validateItemRequest checks the tags of req and the cross-field invariants
// of the item it describes.
func validateItemRequest(req *model.ItemRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}

	if req.EndTime != nil && req.EndTime.Before(req.StartTime) {
		return apperr.Validation("endTime must not be before startTime")
	}

	if req.EventSpecificField != "" && req.Type != model.ItemTypeEvent {
		return apperr.Validation("eventSpecificField is only allowed on EVENT items")
	}

	return nil
}
