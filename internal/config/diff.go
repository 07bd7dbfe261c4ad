package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RAGChanged bool
	NewRAG     RAGConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart — provider and
// store settings require a process restart to take effect.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.RAG != new.RAG {
		d.RAGChanged = true
		d.NewRAG = new.RAG
	}

	return d
}
