package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes get their own flags; everything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// OrganisationChanged is set when the department identity printed on new
	// summaries changed.
	OrganisationChanged bool

	// VocabularyChanged is set when the vocabulary file path changed.
	VocabularyChanged bool

	// ExtractionChanged is set when the strategy or a correction stage was
	// switched.
	ExtractionChanged bool

	// RestartRequired names the sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// HotReloadable reports whether d holds any change that can be applied
// without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.OrganisationChanged || d.VocabularyChanged || d.ExtractionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldOrg, newOrg := old.OrganisationOrDefault(), new.OrganisationOrDefault()
	if !reflect.DeepEqual(oldOrg, newOrg) {
		d.OrganisationChanged = true
	}

	if old.Extraction.VocabularyFile != new.Extraction.VocabularyFile {
		d.VocabularyChanged = true
	}
	if old.Extraction.Strategy != new.Extraction.Strategy ||
		old.Extraction.PhoneticEnabled() != new.Extraction.PhoneticEnabled() ||
		old.Extraction.LLMCorrection != new.Extraction.LLMCorrection {
		d.ExtractionChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	slices.Sort(d.RestartRequired)

	return d
}
