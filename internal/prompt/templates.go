package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultTemplates []byte

// Templates holds the instruction and user-message templates.
type Templates struct {
	System string `yaml:"SYSTEMPROMPT"`
	User   string `yaml:"USERPROMPT"`
}

// Default returns the templates compiled into the binary.
func Default() (Templates, error) {
	return Parse(defaultTemplates)
}

// LoadFile reads templates from a YAML file. An empty path selects the
// embedded defaults.
func LoadFile(path string) (Templates, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, fmt.Errorf("prompt: read templates %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML document with SYSTEMPROMPT and USERPROMPT keys.
func Parse(raw []byte) (Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Templates{}, fmt.Errorf("prompt: decode templates: %w", err)
	}
	if strings.TrimSpace(t.System) == "" {
		return Templates{}, errors.New("prompt: SYSTEMPROMPT is missing or empty")
	}
	if strings.TrimSpace(t.User) == "" {
		return Templates{}, errors.New("prompt: USERPROMPT is missing or empty")
	}
	return t, nil
}
