package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/prepstack/attempt-service/internal/models"
)

// FieldError describes a single failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationErrors is the typed error surfaced for malformed payloads. It is
// always rejected synchronously and never partially applied.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validator wraps go-playground/validator with the domain's custom rules.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterValidation("series_mode", validateSeriesMode)
	v.RegisterValidation("cheat_severity", validateCheatSeverity)
	v.RegisterValidation("confidence_level", validateConfidenceLevel)

	return &Validator{validate: v}
}

// Validate checks a request struct and converts failures into
// ValidationErrors.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	out := make(ValidationErrors, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "series_mode":
		return fmt.Sprintf("%s must be one of practice, live, official", fe.Field())
	case "cheat_severity":
		return fmt.Sprintf("%s must be one of low, medium, high", fe.Field())
	case "confidence_level":
		return fmt.Sprintf("%s must be between 1 and 5", fe.Field())
	default:
		return fmt.Sprintf("%s failed validation rule %s", fe.Field(), fe.Tag())
	}
}

func validateSeriesMode(fl validator.FieldLevel) bool {
	switch models.SeriesMode(fl.Field().String()) {
	case models.SeriesPractice, models.SeriesLive, models.SeriesOfficial:
		return true
	}
	return false
}

func validateCheatSeverity(fl validator.FieldLevel) bool {
	switch models.CheatSeverity(fl.Field().String()) {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
		return true
	}
	return false
}

func validateConfidenceLevel(fl validator.FieldLevel) bool {
	v := fl.Field().Int()
	return v >= 1 && v <= 5
}
