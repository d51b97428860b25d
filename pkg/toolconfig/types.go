// Package toolconfig defines tool configuration and derives the AI-facing
// function schema, the organization-fixed static parameter set, and a
// machine-safe unique tool name from it.
package toolconfig

// ToolType discriminates which execution handler applies to a tool.
type ToolType string

const (
	TypeAutomationAction ToolType = "automation_action"
	TypeSMS              ToolType = "sms"
	TypeHTTPRequest      ToolType = "http_request"
	TypeCallTransfer     ToolType = "call_transfer"
	TypeKnowledgeQuery   ToolType = "knowledge_query"
	TypeExternalApp      ToolType = "external_app"
)

// KnownTypes lists every tool type the system stores. Types without an
// execution handler are still valid configurations.
var KnownTypes = map[ToolType]bool{
	TypeAutomationAction: true,
	TypeSMS:              true,
	TypeHTTPRequest:      true,
	TypeCallTransfer:     true,
	TypeKnowledgeQuery:   true,
	TypeExternalApp:      true,
}

// SenderMode selects how the SMS handler resolves its sending number.
type SenderMode string

const (
	// SenderCalledNumber sends from the number the caller dialed.
	SenderCalledNumber SenderMode = "called_number"
	// SenderFixed sends from a specific configured number.
	SenderFixed SenderMode = "fixed"
)

// Parameter describes one tool parameter. Static parameters carry an
// organization-fixed value, are hidden from the AI, and may contain
// variable placeholders resolved at execution time.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Static      bool        `json:"static,omitempty"`
	Value       interface{} `json:"value,omitempty"`
}

// ActionConfig configures an automation-action tool.
type ActionConfig struct {
	// AppKey identifies the integration app on the action provider.
	AppKey string `json:"app_key"`
	// ActionKey identifies the action to invoke.
	ActionKey string `json:"action_key"`
	// AuthField is the parameter name the provider expects the account
	// binding under. Older configs leave it empty and fall back to AppKey.
	AuthField string `json:"auth_field,omitempty"`
	// ConnectionID is the configured account binding, if any.
	ConnectionID string `json:"connection_id,omitempty"`
}

// SMSConfig configures an SMS tool.
type SMSConfig struct {
	// Recipients are fixed destination numbers.
	Recipients []string `json:"recipients,omitempty"`
	// BaseRecipients are templated destinations, e.g. {{caller_phone_number}}.
	BaseRecipients []string `json:"base_recipients,omitempty"`
	// Message is the organization-fixed message text. When set it takes
	// precedence over any AI-provided message. Placeholders allowed.
	Message string `json:"message,omitempty"`
	// SenderMode selects the sending number.
	SenderMode SenderMode `json:"sender_mode"`
	// PhoneNumberID names the sending number when SenderMode is fixed.
	PhoneNumberID string `json:"phone_number_id,omitempty"`
}

// Config is the full tool configuration an operator submits. It is stored
// verbatim as the tool's config metadata.
type Config struct {
	Type        ToolType `json:"type"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`

	Async              bool  `json:"async,omitempty"`
	ExecuteOnCallStart bool  `json:"execute_on_call_start,omitempty"`
	AttachToAgent      *bool `json:"attach_to_agent,omitempty"` // nil = true

	Parameters []Parameter `json:"parameters,omitempty"`

	Action *ActionConfig `json:"action,omitempty"`
	SMS    *SMSConfig    `json:"sms,omitempty"`
}

// Attachable reports the effective attach-to-agent flag (defaults true).
func (c Config) Attachable() bool {
	return c.AttachToAgent == nil || *c.AttachToAgent
}
