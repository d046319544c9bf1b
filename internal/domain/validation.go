package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks owner and learner payloads before they reach the core.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the quiz-specific struct rules.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterStructValidation(validateAnswerContent, AnswerInput{})
	return &Validator{validate: v}
}

// Validate returns a *ValidationError describing every failed rule, or nil.
func (v *Validator) Validate(payload any) error {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate payload: %w", err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describe(fe))
	}
	return NewValidationError(messages...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Namespace() + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Namespace(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param())
	case "text_xor_image":
		return fe.Namespace() + " must be either text or image, not both"
	default:
		return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
}

// An answer is text or an image, never both.
func validateAnswerContent(sl validator.StructLevel) {
	answer := sl.Current().Interface().(AnswerInput)
	if strings.TrimSpace(answer.Text) != "" && strings.TrimSpace(answer.ImageURL) != "" {
		sl.ReportError(answer.Text, "Text", "text", "text_xor_image", "")
	}
}
