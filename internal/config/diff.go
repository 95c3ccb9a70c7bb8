package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// server address changes need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is set when capture or mode settings differ.
	SessionChanged bool

	// StudyChanged is set when the quiz defaults differ.
	StudyChanged bool

	// RestartRequired lists top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Empty reports whether nothing reloadable or restart-worthy changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SessionChanged && !d.StudyChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Capture != new.Capture || old.Mode != new.Mode {
		d.SessionChanged = true
	}

	if old.Study.QuizCount != new.Study.QuizCount || old.Study.QuizDifficulty != new.Study.QuizDifficulty {
		d.StudyChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.StaticDir != new.Server.StaticDir ||
		!sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Study.MaxClaims != new.Study.MaxClaims || old.Study.Temperature != new.Study.Temperature {
		d.RestartRequired = append(d.RestartRequired, "study")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameProviders(a, b ProvidersConfig) bool {
	if !sameEntry(a.OCR, b.OCR) || !sameEntry(a.LLM, b.LLM) ||
		!sameEntry(a.STT, b.STT) || !sameEntry(a.Embeddings, b.Embeddings) {
		return false
	}
	if len(a.LLMFallbacks) != len(b.LLMFallbacks) {
		return false
	}
	for i := range a.LLMFallbacks {
		if !sameEntry(a.LLMFallbacks[i], b.LLMFallbacks[i]) {
			return false
		}
	}
	return true
}

func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Timeout == b.Timeout &&
		reflect.DeepEqual(a.Options, b.Options)
}
