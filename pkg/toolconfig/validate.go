package toolconfig

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every validation failure so callers can map the
// whole class with errors.Is.
var ErrInvalid = errors.New("invalid tool configuration")

var validParamTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// Validate checks a tool configuration for structural problems. It returns
// nil when the config can safely be built and persisted.
func Validate(cfg Config) error {
	if cfg.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalid)
	}
	if !KnownTypes[cfg.Type] {
		return fmt.Errorf("%w: unknown tool type %q", ErrInvalid, cfg.Type)
	}
	if cfg.Label == "" {
		return fmt.Errorf("%w: label is required", ErrInvalid)
	}

	// A tool that is neither AI-attachable nor proactively run is unreachable.
	if !cfg.Attachable() && !cfg.ExecuteOnCallStart {
		return fmt.Errorf("%w: a tool with attach_to_agent disabled must have execute_on_call_start enabled", ErrInvalid)
	}

	for _, p := range cfg.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%w: parameter name cannot be empty", ErrInvalid)
		}
		if p.Type != "" && !validParamTypes[p.Type] {
			return fmt.Errorf("%w: invalid parameter type %q for %s", ErrInvalid, p.Type, p.Name)
		}
		if p.Static && p.Value == nil {
			return fmt.Errorf("%w: static parameter %s requires a value", ErrInvalid, p.Name)
		}
	}

	switch cfg.Type {
	case TypeAutomationAction:
		if cfg.Action == nil {
			return fmt.Errorf("%w: automation-action tools require an action section", ErrInvalid)
		}
		if cfg.Action.ActionKey == "" {
			return fmt.Errorf("%w: automation-action tools require an action key", ErrInvalid)
		}
		if cfg.Action.AppKey == "" {
			return fmt.Errorf("%w: automation-action tools require an app key", ErrInvalid)
		}
	case TypeSMS:
		if cfg.SMS == nil {
			return fmt.Errorf("%w: sms tools require an sms section", ErrInvalid)
		}
		switch cfg.SMS.SenderMode {
		case SenderCalledNumber:
		case SenderFixed:
			if cfg.SMS.PhoneNumberID == "" {
				return fmt.Errorf("%w: fixed sender mode requires a phone number id", ErrInvalid)
			}
		default:
			return fmt.Errorf("%w: unknown sender mode %q", ErrInvalid, cfg.SMS.SenderMode)
		}
	}

	return nil
}
