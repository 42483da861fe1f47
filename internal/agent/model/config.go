package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	HistoryLimit     int `envconfig:"CONVERSATION_HISTORY_LIMIT" default:"20"`
	MaxMessageLength int `envconfig:"CONVERSATION_MAX_MESSAGE_LENGTH" default:"4000"`
	PinMaxAttempts   int `envconfig:"CONVERSATION_PIN_MAX_ATTEMPTS" default:"3"`
	Tools            struct {
		MaxRounds int           `envconfig:"CONVERSATION_TOOL_MAX_ROUNDS" default:"5"`
		Timeout   time.Duration `envconfig:"CONVERSATION_TOOL_TIMEOUT" default:"30s"`
		MaxTries  uint          `envconfig:"CONVERSATION_TOOL_MAX_TRIES" default:"2"`
	}
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type JudgeModelConfig struct {
	Model       string  `envconfig:"JUDGE_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"JUDGE_MAX_TOKENS" default:"1500"`
	Temperature float32 `envconfig:"JUDGE_TEMPERATURE" default:"0"`
}

type ResponsePromptConfig struct {
	BusinessType string `envconfig:"PROMPT_BUSINESS_TYPE" default:"computer products retailer"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"TechStore"`
}

type MCPConfig struct {
	// ServerURL empty selects the built-in demo catalog.
	ServerURL string        `envconfig:"MCP_SERVER_URL"`
	Timeout   time.Duration `envconfig:"MCP_TIMEOUT" default:"30s"`
}

type StoreConfig struct {
	Backend     string        `envconfig:"STORE_BACKEND" default:"memory"`
	TTL         time.Duration `envconfig:"STORE_TTL" default:"0s"`
	PostgresDSN string        `envconfig:"POSTGRES_DSN"`
}

type EvaluationConfig struct {
	Auto      bool          `envconfig:"EVALUATION_AUTO" default:"false"`
	Timeout   time.Duration `envconfig:"EVALUATION_TIMEOUT" default:"60s"`
	Workers   int           `envconfig:"EVALUATION_WORKERS" default:"2"`
	QueueSize int           `envconfig:"EVALUATION_QUEUE_SIZE" default:"64"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"support-agent.events"`
}

type SessionConfig struct {
	// SigningKey empty disables state tokens and the client state is trusted as sent.
	SigningKey string        `envconfig:"SESSION_SIGNING_KEY"`
	TokenTTL   time.Duration `envconfig:"SESSION_TOKEN_TTL" default:"24h"`
}
