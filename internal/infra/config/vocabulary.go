package config

import (
	"fmt"
	"os"
	"regexp"

	"late_report_bot/internal/domain/latereport"

	"gopkg.in/yaml.v3"
)

// presetKeyPattern keeps preset keys inside the 64 byte callback data limit.
var presetKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// LoadVocabulary returns the built-in vocabulary, overridden section by
// section by the YAML document at path. An empty path keeps the defaults.
func LoadVocabulary(path string) (latereport.Vocabulary, error) {
	vocab := latereport.DefaultVocabulary()
	if path == "" {
		return vocab, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return vocab, fmt.Errorf("read vocabulary file: %w", err)
	}
	return mergeVocabulary(vocab, raw)
}

func mergeVocabulary(base latereport.Vocabulary, raw []byte) (latereport.Vocabulary, error) {
	var override latereport.Vocabulary
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return base, fmt.Errorf("parse vocabulary file: %w", err)
	}

	if len(override.LateKeywords) > 0 {
		base.LateKeywords = override.LateKeywords
	}
	if len(override.ReasonKeywords) > 0 {
		base.ReasonKeywords = override.ReasonKeywords
	}
	if len(override.Presets) > 0 {
		for _, p := range override.Presets {
			if p.Key == "" || p.Reason == "" {
				return base, fmt.Errorf("preset entries need a key and a reason")
			}
			if !presetKeyPattern.MatchString(p.Key) {
				return base, fmt.Errorf("preset key %q must match %s", p.Key, presetKeyPattern)
			}
			if p.Key == latereport.PresetOther {
				return base, fmt.Errorf("preset key %q is reserved", latereport.PresetOther)
			}
		}
		base.Presets = override.Presets
	}
	return base, nil
}
