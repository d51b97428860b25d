package config

import (
	"fmt"
	"net/url"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks that the configuration is usable by the service.
func (v *Validator) Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Server.CallbackBaseURL != "" {
		if err := v.validateURL(cfg.Server.CallbackBaseURL, "callback base URL"); err != nil {
			return err
		}
	}

	if cfg.Platform.BaseURL == "" {
		return fmt.Errorf("platform base URL cannot be empty")
	}
	if err := v.validateURL(cfg.Platform.BaseURL, "platform base URL"); err != nil {
		return err
	}
	if cfg.Platform.APIKey == "" {
		return fmt.Errorf("platform API key cannot be empty")
	}

	if cfg.Actions.BaseURL != "" {
		if err := v.validateURL(cfg.Actions.BaseURL, "actions base URL"); err != nil {
			return err
		}
	}

	if cfg.Messaging.BaseURL == "" {
		return fmt.Errorf("messaging base URL cannot be empty")
	}

	if cfg.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}

	return nil
}

func (v *Validator) validateURL(raw string, what string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", what)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s: missing host", what)
	}
	return nil
}
