package config

// Diff describes what changed between two configs. Only fields that can be
// safely hot-reloaded (without tearing down a live engine) are tracked.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SchemaChanged     bool
	DelimitersChanged bool
	BufferLenChanged  bool
	NewBufferLen      int
}

// DiffConfigs compares old and new and returns what changed.
func DiffConfigs(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Engine.Schema != new.Engine.Schema {
		d.SchemaChanged = true
	}

	if !delimitersEqual(old.Engine.Delimiters, new.Engine.Delimiters) {
		d.DelimitersChanged = true
	}

	if old.Engine.BufferLength != new.Engine.BufferLength {
		d.BufferLenChanged = true
		d.NewBufferLen = new.Engine.BufferLength
	}

	return d
}

func delimitersEqual(a, b *Delimiters) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}
