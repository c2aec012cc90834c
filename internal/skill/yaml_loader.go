package skill

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// TriggerOverlay maps a skill name to extra natural-language phrases:
//
//	weather:
//	  phrases: ["forecast for", "is it raining in"]
type TriggerOverlay map[string]struct {
	Phrases []string `yaml:"phrases"`
}

// LoadTriggerOverlay reads a trigger overlay file. A missing file yields an
// empty overlay.
func LoadTriggerOverlay(path string, logger *slog.Logger) (TriggerOverlay, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("trigger overlay does not exist, skipping", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trigger overlay: %w", err)
	}

	var overlay TriggerOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse trigger overlay %s: %w", path, err)
	}
	logger.Info("loaded trigger overlay", "path", path, "skills", len(overlay))
	return overlay, nil
}

// ApplyOverlay adds the overlay's phrases to the registry. Unknown skill names
// are logged and skipped.
func (r *Registry) ApplyOverlay(overlay TriggerOverlay) {
	for name, entry := range overlay {
		if err := r.AddPhrases(name, entry.Phrases...); err != nil {
			r.logger.Warn("skipping trigger overlay entry", "skill", name, "err", err)
		}
	}
}
