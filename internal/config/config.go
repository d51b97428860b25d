package config

// Config represents the main Voxkit configuration
type Config struct {
	// HTTP server surfaced to the voice-agent platform
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Local record store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Voice-agent platform credentials
	Platform PlatformConfig `json:"platform" mapstructure:"platform"`

	// Automation-action provider credentials
	Actions ActionsConfig `json:"actions" mapstructure:"actions"`

	// SMS provider endpoint
	Messaging MessagingConfig `json:"messaging" mapstructure:"messaging"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`

	// CallbackBaseURL is the externally-reachable address embedded into
	// platform tool definitions so the platform can call back into us.
	CallbackBaseURL string `json:"callback_base_url" mapstructure:"callback_base_url"`
}

// StoreConfig holds the sqlite store configuration
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// PlatformConfig holds voice-agent platform configuration
type PlatformConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	APIKey  string `json:"api_key" mapstructure:"api_key"`
}

// ActionsConfig holds automation-action provider configuration
type ActionsConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	APIKey  string `json:"api_key" mapstructure:"api_key"`
}

// MessagingConfig holds SMS provider configuration
type MessagingConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               3100,
			RateLimitPerMinute: 300,
		},
		Platform: PlatformConfig{
			BaseURL: "https://api.vapi.ai",
		},
		Messaging: MessagingConfig{
			BaseURL: "https://api.twilio.com/2010-04-01",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
		},
	}
}
