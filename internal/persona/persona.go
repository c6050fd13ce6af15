// Package persona loads the fixed behavioral instruction the relay
// hands to the generative backend on every completion call. The
// persona is constant configuration, never per-user state.
package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the assistant identity definition.
type Persona struct {
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
	Greeting    string `yaml:"greeting,omitempty"`
}

// LoadFile reads a persona from a YAML file.
func LoadFile(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a persona from YAML bytes. The instruction is
// required; a persona without one is a configuration error.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	p.Instruction = strings.TrimSpace(p.Instruction)
	if p.Instruction == "" {
		return nil, fmt.Errorf("persona instruction is empty")
	}
	if p.Name == "" {
		p.Name = "assistant"
	}
	return &p, nil
}

// Resolve returns the persona instruction to use: the YAML file when
// configured and readable, otherwise the inline fallback, otherwise
// the built-in default.
func Resolve(file, inline, builtin string) (string, error) {
	if file != "" {
		if _, err := os.Stat(file); err == nil {
			p, err := LoadFile(file)
			if err != nil {
				return "", err
			}
			return p.Instruction, nil
		}
	}
	if strings.TrimSpace(inline) != "" {
		return strings.TrimSpace(inline), nil
	}
	return builtin, nil
}

// Save writes a persona to a YAML file.
func Save(path string, p *Persona) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
