package execution

import (
	"context"

	"github.com/voxkit/voxkit/pkg/toolstore"
	"github.com/voxkit/voxkit/pkg/variables"
)

// executeAction runs an automation-action tool: substitute the static
// config, overlay it on the AI parameters, inject the account binding and
// hand the merged object to the action provider.
func (e *Engine) executeAction(ctx context.Context, tool *toolstore.Tool, aiParams map[string]interface{}, vars variables.Context) *Result {
	cfg := tool.Config.Action
	if cfg == nil || cfg.ActionKey == "" {
		return failure(KindValidationFailed, "tool %s has no action configuration", tool.ID)
	}

	static := vars.SubstituteMap(tool.StaticConfig)
	params := mergeParams(aiParams, static)

	if cfg.ConnectionID != "" {
		authField := cfg.AuthField
		if authField == "" {
			// Older configs predate the explicit auth field.
			authField = cfg.AppKey
		}
		params[authField] = cfg.ConnectionID
	}

	invoked, err := e.actions.Invoke(ctx, cfg.ActionKey, params)
	if err != nil {
		e.logger.Error().Err(err).
			Str("tool_id", tool.ID).
			Str("action_key", cfg.ActionKey).
			Msg("Action invocation failed")
		return failure(KindActionFailed, "action execution failed")
	}

	if !invoked.Success {
		message := invoked.Error
		if message == "" {
			message = "action execution failed"
		}
		return &Result{
			Success:   false,
			ErrorKind: KindActionFailed,
			Error:     message,
			Logs:      invoked.Logs,
		}
	}

	return &Result{
		Success: true,
		Result:  invoked.ReturnValue,
		Exports: invoked.Exports,
		Logs:    invoked.Logs,
	}
}
