package card

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileLayout struct {
	Cards []Config `yaml:"cards"`
}

// LoadFile reads and resolves the cards listed in a YAML file.
func LoadFile(path string) ([]Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse resolves the cards in a YAML document.
func Parse(data []byte) ([]Card, error) {
	var layout fileLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("card: decode: %w", err)
	}
	seen := make(map[string]struct{}, len(layout.Cards))
	cards := make([]Card, 0, len(layout.Cards))
	for _, cfg := range layout.Cards {
		if _, ok := seen[cfg.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		resolved, err := cfg.Resolve()
		if err != nil {
			return nil, err
		}
		cards = append(cards, resolved)
	}
	return cards, nil
}
