package config

import "time"

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked — provider selection, store paths,
// and secrets require a process restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	FeaturesChanged bool
	FeatureChanges  []FeatureDiff

	// CallTuningChanged reports whether the per-call tunables consulted live
	// by the orchestrator (ASRConfidenceThreshold, SilenceTimeout) differ
	// between old and new.
	CallTuningChanged         bool
	NewASRConfidenceThreshold float64
	NewSilenceTimeout         time.Duration
}

// FeatureDiff describes a single feature flag transition.
type FeatureDiff struct {
	Name    string
	Enabled bool
	Added   bool
	Removed bool
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	for name, oldVal := range old.Features {
		newVal, exists := new.Features[name]
		if !exists {
			d.FeatureChanges = append(d.FeatureChanges, FeatureDiff{Name: name, Removed: true})
			d.FeaturesChanged = true
			continue
		}
		if newVal != oldVal {
			d.FeatureChanges = append(d.FeatureChanges, FeatureDiff{Name: name, Enabled: newVal})
			d.FeaturesChanged = true
		}
	}
	for name, newVal := range new.Features {
		if _, exists := old.Features[name]; !exists {
			d.FeatureChanges = append(d.FeatureChanges, FeatureDiff{Name: name, Enabled: newVal, Added: true})
			d.FeaturesChanged = true
		}
	}

	if old.Call.ASRConfidenceThreshold != new.Call.ASRConfidenceThreshold ||
		old.Call.SilenceTimeout != new.Call.SilenceTimeout {
		d.CallTuningChanged = true
		d.NewASRConfidenceThreshold = new.Call.ASRConfidenceThreshold
		d.NewSilenceTimeout = new.Call.SilenceTimeout
	}

	return d
}
