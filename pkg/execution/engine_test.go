package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxkit/voxkit/internal/metrics"
	"github.com/voxkit/voxkit/pkg/actions"
	"github.com/voxkit/voxkit/pkg/messaging"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/toolstore"
	"github.com/voxkit/voxkit/pkg/variables"
)

type fakeInvoker struct {
	result *actions.InvokeResult
	err    error

	gotKey    string
	gotParams map[string]interface{}
}

func (f *fakeInvoker) Invoke(ctx context.Context, actionKey string, params map[string]interface{}) (*actions.InvokeResult, error) {
	f.gotKey = actionKey
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type sentMessage struct {
	from, to, body string
}

type fakeSender struct {
	failFor map[string]error
	sent    []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, creds messaging.Credentials, from, to, body string) (*messaging.Message, error) {
	if err, ok := f.failFor[to]; ok {
		return nil, err
	}
	f.sent = append(f.sent, sentMessage{from: from, to: to, body: body})
	return &messaging.Message{SID: "SM" + to, Status: "queued"}, nil
}

type engineFixture struct {
	engine  *Engine
	store   *toolstore.Store
	invoker *fakeInvoker
	sender  *fakeSender
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store, err := toolstore.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	invoker := &fakeInvoker{result: &actions.InvokeResult{Success: true}}
	sender := &fakeSender{}
	engine := NewEngine(store, invoker, sender, zerolog.Nop(), metrics.New())
	return &engineFixture{engine: engine, store: store, invoker: invoker, sender: sender}
}

func (f *engineFixture) seedTool(t *testing.T, cfg toolconfig.Config) *toolstore.Tool {
	t.Helper()
	tool := &toolstore.Tool{
		ID:             uuid.NewString(),
		OrganizationID: "org-1",
		Type:           cfg.Type,
		Name:           toolconfig.NormalizeName(cfg.Label),
		Label:          cfg.Label,
		FunctionSchema: toolconfig.BuildFunctionSchema(cfg),
		StaticConfig:   toolconfig.BuildStaticConfig(cfg),
		Config:         cfg,
		AttachToAgent:  cfg.Attachable(),
	}
	require.NoError(t, f.store.CreateTool(context.Background(), tool))
	return tool
}

func (f *engineFixture) seedNumber(t *testing.T, number, sid, token string) *toolstore.PhoneNumber {
	t.Helper()
	pn := &toolstore.PhoneNumber{
		ID:             uuid.NewString(),
		OrganizationID: "org-1",
		Number:         number,
		AccountSID:     sid,
		AuthToken:      token,
	}
	require.NoError(t, f.store.CreatePhoneNumber(context.Background(), pn))
	return pn
}

func TestEngine_ToolNotFound(t *testing.T) {
	f := newEngineFixture(t)
	result := f.engine.Execute(context.Background(), "missing", nil, variables.Context{})
	assert.False(t, result.Success)
	assert.Equal(t, KindNotFound, result.ErrorKind)
}

func TestEngine_UnsupportedType(t *testing.T) {
	f := newEngineFixture(t)
	tool := f.seedTool(t, toolconfig.Config{
		Type:  toolconfig.TypeKnowledgeQuery,
		Label: "Lookup FAQ",
	})

	result := f.engine.Execute(context.Background(), tool.ID, nil, variables.Context{})
	assert.False(t, result.Success)
	assert.Equal(t, KindNotImplemented, result.ErrorKind)
}

func TestEngine_ParamValidation(t *testing.T) {
	f := newEngineFixture(t)
	tool := f.seedTool(t, toolconfig.Config{
		Type:  toolconfig.TypeAutomationAction,
		Label: "Create Ticket",
		Action: &toolconfig.ActionConfig{
			AppKey:    "helpdesk",
			ActionKey: "create-ticket",
		},
		Parameters: []toolconfig.Parameter{
			{Name: "subject", Type: "string", Required: true},
		},
	})

	result := f.engine.Execute(context.Background(), tool.ID, map[string]interface{}{}, variables.Context{})
	assert.False(t, result.Success)
	assert.Equal(t, KindValidationFailed, result.ErrorKind)
	assert.Empty(t, f.invoker.gotKey, "provider must not be called on invalid input")
}

func TestEngine_Action_StaticOverridesAI(t *testing.T) {
	f := newEngineFixture(t)
	tool := f.seedTool(t, toolconfig.Config{
		Type:  toolconfig.TypeAutomationAction,
		Label: "Forward Call Record",
		Action: &toolconfig.ActionConfig{
			AppKey:    "crm",
			ActionKey: "log-call",
		},
		Parameters: []toolconfig.Parameter{
			{Name: "number", Static: true, Value: "STATIC_NUM"},
			{Name: "note", Type: "string"},
		},
	})

	aiParams := map[string]interface{}{
		"number": "AI_NUM",
		"note":   "caller asked for a refund",
	}
	result := f.engine.Execute(context.Background(), tool.ID, aiParams, variables.Context{})

	require.True(t, result.Success)
	assert.Equal(t, "log-call", f.invoker.gotKey)
	assert.Equal(t, "STATIC_NUM", f.invoker.gotParams["number"])
	assert.Equal(t, "caller asked for a refund", f.invoker.gotParams["note"])
}

func TestEngine_Action_VariableSubstitutionAndAuthBinding(t *testing.T) {
	f := newEngineFixture(t)
	tool := f.seedTool(t, toolconfig.Config{
		Type:  toolconfig.TypeAutomationAction,
		Label: "Notify Team",
		Action: &toolconfig.ActionConfig{
			AppKey:       "slack",
			ActionKey:    "post-message",
			AuthField:    "slack_account",
			ConnectionID: "conn-42",
		},
		Parameters: []toolconfig.Parameter{
			{Name: "text", Static: true, Value: "Call from {{caller_phone_number}}"},
		},
	})

	vars := variables.Context{CallerPhoneNumber: "+15550001111"}
	result := f.engine.Execute(context.Background(), tool.ID, map[string]interface{}{toolconfig.DummyField: ""}, vars)

	require.True(t, result.Success)
	assert.Equal(t, "Call from +15550001111", f.invoker.gotParams["text"])
	assert.Equal(t, "conn-42", f.invoker.gotParams["slack_account"])
	assert.NotContains(t, f.invoker.gotParams, toolconfig.DummyField)
}

func TestEngine_Action_AuthBindingFallsBackToAppKey(t *testing.T) {
	f := newEngineFixture(t)
	tool := f.seedTool(t, toolconfig.Config{
		Type:  toolconfig.TypeAutomationAction,
		Label: "Send Invoice",
		Action: &toolconfig.ActionConfig{
			AppKey:       "stripe",
			ActionKey:    "create-invoice",
			ConnectionID: "conn-7",
		},
	})

	result := f.engine.Execute(context.Background(), tool.ID, nil, variables.Context{})
	require.True(t, result.Success)
	assert.Equal(t, "conn-7", f.invoker.gotParams["stripe"])
}

func TestEngine_Action_ProviderFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.invoker.err = errors.New("provider down")
	tool := f.seedTool(t, toolconfig.Config{
		Type:  toolconfig.TypeAutomationAction,
		Label: "Create Ticket",
		Action: &toolconfig.ActionConfig{
			AppKey:    "helpdesk",
			ActionKey: "create-ticket",
		},
	})

	result := f.engine.Execute(context.Background(), tool.ID, nil, variables.Context{})
	assert.False(t, result.Success)
	assert.Equal(t, KindActionFailed, result.ErrorKind)
}

func TestEngine_Action_ProviderReportsFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.invoker.result = &actions.InvokeResult{
		Success: false,
		Error:   "rate limited",
		Logs:    []string{"attempt 1 failed"},
	}
	tool := f.seedTool(t, toolconfig.Config{
		Type:  toolconfig.TypeAutomationAction,
		Label: "Create Ticket",
		Action: &toolconfig.ActionConfig{
			AppKey:    "helpdesk",
			ActionKey: "create-ticket",
		},
	})

	result := f.engine.Execute(context.Background(), tool.ID, nil, variables.Context{})
	assert.False(t, result.Success)
	assert.Equal(t, KindActionFailed, result.ErrorKind)
	assert.Equal(t, "rate limited", result.Error)
	assert.Equal(t, []string{"attempt 1 failed"}, result.Logs)
}

func smsTool(message string, senderMode toolconfig.SenderMode, phoneNumberID string) toolconfig.Config {
	return toolconfig.Config{
		Type:  toolconfig.TypeSMS,
		Label: "Send Followup",
		SMS: &toolconfig.SMSConfig{
			Message:        message,
			SenderMode:     senderMode,
			PhoneNumberID:  phoneNumberID,
			BaseRecipients: []string{"{{caller_phone_number}}"},
		},
	}
}

func TestEngine_SMS_SendsToCaller(t *testing.T) {
	f := newEngineFixture(t)
	f.seedNumber(t, "+15550009999", "AC1", "tok")
	tool := f.seedTool(t, smsTool("Thanks for calling {{called_phone_number}}!", toolconfig.SenderCalledNumber, ""))

	vars := variables.Context{
		CallerPhoneNumber: "+15550001111",
		CalledPhoneNumber: "+15550009999",
	}
	result := f.engine.Execute(context.Background(), tool.ID, nil, vars)

	require.True(t, result.Success)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+15550009999", f.sender.sent[0].from)
	assert.Equal(t, "+15550001111", f.sender.sent[0].to)
	assert.Equal(t, "Thanks for calling +15550009999!", f.sender.sent[0].body)
}

func TestEngine_SMS_FixedSenderAndRecipientUnion(t *testing.T) {
	f := newEngineFixture(t)
	pn := f.seedNumber(t, "+15550009999", "AC1", "tok")

	cfg := smsTool("Your appointment is confirmed.", toolconfig.SenderFixed, pn.ID)
	cfg.SMS.Recipients = []string{"+15550002222"}
	tool := f.seedTool(t, cfg)

	vars := variables.Context{CallerPhoneNumber: "+15550001111"}
	aiParams := map[string]interface{}{
		"recipients": []interface{}{"+15550003333", "+15550002222"}, // one duplicate
	}
	result := f.engine.Execute(context.Background(), tool.ID, aiParams, vars)

	require.True(t, result.Success)
	var to []string
	for _, s := range f.sender.sent {
		to = append(to, s.to)
	}
	assert.Equal(t, []string{"+15550002222", "+15550001111", "+15550003333"}, to)
}

func TestEngine_SMS_PartialFailure(t *testing.T) {
	f := newEngineFixture(t)
	pn := f.seedNumber(t, "+15550009999", "AC1", "tok")
	f.sender.failFor = map[string]error{"+15550003333": errors.New("undeliverable")}

	cfg := smsTool("Hello.", toolconfig.SenderFixed, pn.ID)
	cfg.SMS.BaseRecipients = nil
	cfg.SMS.Recipients = []string{"+15550002222", "+15550003333"}
	tool := f.seedTool(t, cfg)

	result := f.engine.Execute(context.Background(), tool.ID, nil, variables.Context{})

	assert.False(t, result.Success)
	assert.Equal(t, KindMessagingFailed, result.ErrorKind)

	payload, ok := result.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, payload["results"], 1)
	assert.Len(t, payload["errors"], 1)
}

func TestEngine_SMS_RejectsEmptyMessage(t *testing.T) {
	f := newEngineFixture(t)
	pn := f.seedNumber(t, "+15550009999", "AC1", "tok")
	tool := f.seedTool(t, smsTool("", toolconfig.SenderFixed, pn.ID))

	result := f.engine.Execute(context.Background(), tool.ID, nil, variables.Context{CallerPhoneNumber: "+15550001111"})
	assert.False(t, result.Success)
	assert.Equal(t, KindValidationFailed, result.ErrorKind)
	assert.Empty(t, f.sender.sent)
}

func TestEngine_SMS_AIMessageWhenNoStaticText(t *testing.T) {
	f := newEngineFixture(t)
	pn := f.seedNumber(t, "+15550009999", "AC1", "tok")
	tool := f.seedTool(t, smsTool("", toolconfig.SenderFixed, pn.ID))

	vars := variables.Context{CallerPhoneNumber: "+15550001111"}
	aiParams := map[string]interface{}{"message": "See you at 3pm"}
	result := f.engine.Execute(context.Background(), tool.ID, aiParams, vars)

	require.True(t, result.Success)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "See you at 3pm", f.sender.sent[0].body)
}

func TestEngine_SMS_MissingCredentials(t *testing.T) {
	f := newEngineFixture(t)
	pn := f.seedNumber(t, "+15550009999", "AC1", "")
	tool := f.seedTool(t, smsTool("Hello.", toolconfig.SenderFixed, pn.ID))

	result := f.engine.Execute(context.Background(), tool.ID, nil, variables.Context{CallerPhoneNumber: "+15550001111"})
	assert.False(t, result.Success)
	assert.Equal(t, KindMessagingFailed, result.ErrorKind)
}

func TestEngine_SMS_NoMatchingCalledNumber(t *testing.T) {
	f := newEngineFixture(t)
	tool := f.seedTool(t, smsTool("Hello.", toolconfig.SenderCalledNumber, ""))

	vars := variables.Context{
		CallerPhoneNumber: "+15550001111",
		CalledPhoneNumber: "+15550008888", // not provisioned
	}
	result := f.engine.Execute(context.Background(), tool.ID, nil, vars)
	assert.False(t, result.Success)
	assert.Equal(t, KindMessagingFailed, result.ErrorKind)
}
