package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers mcpgate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings like "24h" or "30m"
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration accepts any positive Go duration string.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors turns validator errors into readable messages.
func formatValidationErrors(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, fe := range errs {
		switch fe.Tag() {
		case "hostname_port":
			return fmt.Errorf("config: %s must be a host:port address, got %q", fe.Namespace(), fe.Value())
		case "oneof":
			return fmt.Errorf("config: %s must be one of [%s], got %q", fe.Namespace(), fe.Param(), fe.Value())
		case "duration":
			return fmt.Errorf("config: %s must be a positive duration like \"24h\", got %q", fe.Namespace(), fe.Value())
		case "min":
			return fmt.Errorf("config: %s must be at least %s, got %v", fe.Namespace(), fe.Param(), fe.Value())
		}
	}
	return err
}
