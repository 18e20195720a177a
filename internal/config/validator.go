package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field: preferring the socket transport requires a socket URL.
	if c.Backend.Transport == "socket" && c.Backend.SocketURL == "" {
		return errors.New("backend.transport is \"socket\" but backend.socket_url is empty")
	}
	if c.Backend.SocketURL != "" &&
		!strings.HasPrefix(c.Backend.SocketURL, "ws://") &&
		!strings.HasPrefix(c.Backend.SocketURL, "wss://") {
		return errors.New("backend.socket_url must use the ws:// or wss:// scheme")
	}

	return nil
}

// formatValidationErrors converts validator errors to actionable messages
// keyed by the config path.
func formatValidationErrors(err error) error {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return err
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace looks like "Config.Backend.HTTPBaseURL"; drop the
		// root to keep messages short.
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", path))
		case "url", "uri":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", path))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", path, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", path, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
