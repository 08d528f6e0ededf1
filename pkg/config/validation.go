package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Tag     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min", "gt":
		return fmt.Sprintf("%s is below its minimum", e.Field)
	case "max":
		return fmt.Sprintf("%s is above its maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s must be one of the supported values", e.Field)
	case "gtfield":
		return fmt.Sprintf("%s must be greater than its lower bound", e.Field)
	default:
		return fmt.Sprintf("%s failed validation", e.Field)
	}
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Validate checks structural tags plus the cross-field rules that tags
// cannot express: max_budget > min_budget is covered by gtfield, but the
// run budget needs exactly one of its four criteria set.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		var verrs ValidationErrors
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				verrs = append(verrs, ValidationError{
					Field: fe.Namespace(),
					Tag:   fe.Tag(),
				})
			}
			return verrs
		}
		return err
	}

	set := 0
	if c.Run.Fevals > 0 {
		set++
	}
	if c.Run.Brackets > 0 {
		set++
	}
	if c.Run.TotalCost > 0 {
		set++
	}
	if c.Run.TotalWallclockCost > 0 {
		set++
	}
	if set != 1 {
		return ValidationErrors{{
			Field:   "Run",
			Message: "exactly one of fevals, brackets, total_cost or total_wallclock_cost must be set",
		}}
	}

	if c.Hyperband.MinClip > 0 && c.Hyperband.MaxClip > 0 && c.Hyperband.MaxClip < c.Hyperband.MinClip {
		return ValidationErrors{{
			Field:   "Hyperband.MaxClip",
			Message: "max_clip must not be below min_clip",
		}}
	}

	return nil
}
