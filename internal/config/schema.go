package config

// Config is the top-level YAML structure.
type Config struct {
	Version  string       `yaml:"version" validate:"required"`
	Engine   EngineConf   `yaml:"engine"`
	Executor ExecutorConf `yaml:"executor"`
	Store    StoreConf    `yaml:"store"`
	Catalog  []StageConf  `yaml:"catalog" validate:"required,min=1,dive"`
}

// EngineConf holds tunable chain dispatch settings.
type EngineConf struct {
	ChainWorkers   int `yaml:"chain_workers" validate:"gte=1"`
	QueueDepth     int `yaml:"queue_depth" validate:"gte=1"`
	ChainTimeoutMs int `yaml:"chain_timeout_ms" validate:"gte=0"`
}

// ExecutorConf points at the external chain execution backend.
type ExecutorConf struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"gte=0"`
}

// StoreConf selects the run history backend: PostgreSQL when DatabaseURL
// is set, an embedded badger database when BadgerPath is set, memory
// otherwise.
type StoreConf struct {
	DatabaseURL string `yaml:"database_url"`
	BadgerPath  string `yaml:"badger_path" validate:"excluded_with=DatabaseURL"`
}

// StageConf is one catalog entry.
type StageConf struct {
	ID       string `yaml:"id" validate:"required"`
	Label    string `yaml:"label" validate:"required"`
	Category string `yaml:"category" validate:"required,oneof=preprocessing model output"`
}
