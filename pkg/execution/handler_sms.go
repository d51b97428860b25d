package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxkit/voxkit/pkg/messaging"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/toolstore"
	"github.com/voxkit/voxkit/pkg/variables"
)

// executeSMS sends one message to every resolved recipient. Each recipient
// is an independent send; one failure does not stop the rest, and overall
// success requires every recipient to succeed.
func (e *Engine) executeSMS(ctx context.Context, tool *toolstore.Tool, aiParams map[string]interface{}, vars variables.Context) *Result {
	cfg := tool.Config.SMS
	if cfg == nil {
		return failure(KindValidationFailed, "tool %s has no sms configuration", tool.ID)
	}

	recipients := resolveRecipients(cfg, aiParams, vars)
	if len(recipients) == 0 {
		return failure(KindValidationFailed, "no recipients resolved")
	}

	body := resolveMessage(cfg, aiParams, vars)
	if body == "" {
		return failure(KindValidationFailed, "no message text resolved")
	}

	number, err := e.resolveSender(ctx, tool, cfg, vars)
	if err != nil {
		return failure(KindMessagingFailed, "%v", err)
	}
	if number.AccountSID == "" || number.AuthToken == "" {
		return failure(KindMessagingFailed, "sending number %s has no credentials", number.Number)
	}
	creds := messaging.Credentials{AccountSID: number.AccountSID, AuthToken: number.AuthToken}

	sent := []interface{}{}
	failed := []interface{}{}
	for _, to := range recipients {
		msg, sendErr := e.sms.Send(ctx, creds, number.Number, to, body)
		if sendErr != nil {
			e.metrics.SMSSendsTotal.WithLabelValues("error").Inc()
			e.logger.Error().Err(sendErr).
				Str("tool_id", tool.ID).
				Str("to", to).
				Msg("SMS send failed")
			failed = append(failed, map[string]interface{}{
				"to":    to,
				"error": sendErr.Error(),
			})
			continue
		}
		e.metrics.SMSSendsTotal.WithLabelValues("success").Inc()
		sent = append(sent, map[string]interface{}{
			"to":     to,
			"sid":    msg.SID,
			"status": msg.Status,
		})
	}

	payload := map[string]interface{}{
		"results": sent,
		"errors":  failed,
	}

	if len(failed) > 0 {
		return &Result{
			Success:   false,
			ErrorKind: KindMessagingFailed,
			Error:     fmt.Sprintf("%d of %d sends failed", len(failed), len(recipients)),
			Result:    payload,
		}
	}
	return &Result{Success: true, Result: payload}
}

// resolveRecipients unions the three recipient sources, de-duplicated in
// first-seen order: fixed static recipients, templated base recipients, and
// AI-provided recipients.
func resolveRecipients(cfg *toolconfig.SMSConfig, aiParams map[string]interface{}, vars variables.Context) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(number string) {
		if number == "" || seen[number] {
			return
		}
		seen[number] = true
		out = append(out, number)
	}

	for _, r := range cfg.Recipients {
		add(r)
	}
	for _, r := range vars.SubstituteStrings(cfg.BaseRecipients) {
		add(r)
	}
	for _, r := range aiRecipients(aiParams) {
		add(vars.SubstituteString(r))
	}
	return out
}

func aiRecipients(aiParams map[string]interface{}) []string {
	raw, ok := aiParams["recipients"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// resolveMessage prefers the organization-fixed text over an AI-provided
// one. Only the static text is substituted.
func resolveMessage(cfg *toolconfig.SMSConfig, aiParams map[string]interface{}, vars variables.Context) string {
	if cfg.Message != "" {
		return vars.SubstituteString(cfg.Message)
	}
	if msg, ok := aiParams["message"].(string); ok {
		return msg
	}
	return ""
}

func (e *Engine) resolveSender(ctx context.Context, tool *toolstore.Tool, cfg *toolconfig.SMSConfig, vars variables.Context) (*toolstore.PhoneNumber, error) {
	switch cfg.SenderMode {
	case toolconfig.SenderCalledNumber:
		if vars.CalledPhoneNumber == "" {
			return nil, errors.New("no called number in variable context")
		}
		number, err := e.store.GetPhoneNumberByNumber(ctx, tool.OrganizationID, vars.CalledPhoneNumber)
		if err != nil {
			return nil, fmt.Errorf("no provisioned number matches %s: %w", vars.CalledPhoneNumber, err)
		}
		return number, nil

	case toolconfig.SenderFixed:
		number, err := e.store.GetPhoneNumber(ctx, cfg.PhoneNumberID)
		if err != nil {
			return nil, fmt.Errorf("sending number %s not found: %w", cfg.PhoneNumberID, err)
		}
		if number.OrganizationID != tool.OrganizationID {
			return nil, fmt.Errorf("sending number %s belongs to another organization", cfg.PhoneNumberID)
		}
		return number, nil

	default:
		return nil, fmt.Errorf("unknown sender mode %q", cfg.SenderMode)
	}
}
