package model

// ================ Config ================

// OracleModelConfig selects the three reasoning capability tiers. Lightweight
// classification gates run on the low tier, observations and short responses
// on the medium tier, planning and synthesis on the high tier.
type OracleModelConfig struct {
	Low         string  `envconfig:"ORACLE_MODEL_LOW" default:"gemini-2.5-flash-lite"`
	Medium      string  `envconfig:"ORACLE_MODEL_MEDIUM" default:"gemini-2.5-flash"`
	High        string  `envconfig:"ORACLE_MODEL_HIGH" default:"gemini-2.5-pro"`
	MaxTokens   int     `envconfig:"ORACLE_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"ORACLE_TEMPERATURE" default:"0.0"`
	MaxRetries  int     `envconfig:"ORACLE_MAX_RETRIES" default:"3"`
}

// DatastoreConfig locates the external business database and the per-turn
// analytical workspace.
type DatastoreConfig struct {
	ExternalDBPath string `envconfig:"DATASTORE_EXTERNAL_DB_PATH" required:"true"`
	WorkspaceDir   string `envconfig:"DATASTORE_WORKSPACE_DIR" default:"./workspace"`
}

// MemoryConfig locates the internal long-term memory database.
type MemoryConfig struct {
	DBPath string `envconfig:"MEMORY_DB_PATH" default:"./memory.db"`
}

// SandboxConfig bounds the isolated python execution environment.
type SandboxConfig struct {
	Image      string `envconfig:"SANDBOX_IMAGE" default:"python:3.12-slim"`
	CPU        string `envconfig:"SANDBOX_CPU" default:"2"`
	Memory     string `envconfig:"SANDBOX_MEMORY" default:"1g"`
	TimeoutSec int    `envconfig:"SANDBOX_TIMEOUT_SEC" default:"120"`
}

// GraphConfig bounds one graph run. MaxRunSteps caps total node executions so
// the repair loops cannot spin forever when the oracle never converges.
type GraphConfig struct {
	MaxRunSteps int `envconfig:"GRAPH_MAX_RUN_STEPS" default:"60"`
}

// EventsConfig configures the UI-facing stage event stream.
type EventsConfig struct {
	RedisChannel string `envconfig:"EVENTS_REDIS_CHANNEL" default:"agent:stages"`
}
