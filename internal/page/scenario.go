package page

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// FrameSpec describes one window of a page and its child frames
type FrameSpec struct {
	Name   string      `yaml:"name" toml:"name" json:"name"`
	Origin string      `yaml:"origin" toml:"origin" json:"origin"`
	Remote bool        `yaml:"remote,omitempty" toml:"remote,omitempty" json:"remote,omitempty"` // served over the websocket bridge
	Frames []FrameSpec `yaml:"frames,omitempty" toml:"frames,omitempty" json:"frames,omitempty"`
}

// Scenario is a page loaded from a file
type Scenario struct {
	Session string    `yaml:"session" toml:"session"`
	Top     FrameSpec `yaml:"top" toml:"top"`

	// HTML of the top document; its iframes are appended to Top.Frames
	HTML string `yaml:"html,omitempty" toml:"html,omitempty"`
}

// LoadScenario reads a scenario from a .yaml, .yml, .toml or .html file.
// An HTML file becomes a scenario whose top origin is origin.
func LoadScenario(path, origin string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		return Scenario{
			Top:  FrameSpec{Name: "top", Origin: origin},
			HTML: string(data),
		}, nil
	}
	return ParseScenario(data, strings.TrimPrefix(ext, "."))
}

// ParseScenario decodes a scenario in the given format: yaml, yml or toml
func ParseScenario(data []byte, format string) (Scenario, error) {
	var sc Scenario

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return Scenario{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &sc); err != nil {
			return Scenario{}, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return Scenario{}, fmt.Errorf("unsupported scenario format %q", format)
	}

	if err := sc.resolve(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// resolve validates the scenario and expands its HTML into frames
func (sc *Scenario) resolve() error {
	if sc.Top.Origin == "" {
		return fmt.Errorf("top.origin is required")
	}
	if sc.Top.Name == "" {
		sc.Top.Name = "top"
	}

	if sc.HTML != "" {
		frames, err := FromHTML(sc.HTML, sc.Top.Origin)
		if err != nil {
			return err
		}
		sc.Top.Frames = append(sc.Top.Frames, frames...)
		sc.HTML = ""
	}
	return validate(sc.Top, map[string]bool{})
}

func validate(spec FrameSpec, seen map[string]bool) error {
	if spec.Name == "" {
		return fmt.Errorf("frame without a name")
	}
	if seen[spec.Name] {
		return fmt.Errorf("%w %q", ErrDuplicateFrame, spec.Name)
	}
	seen[spec.Name] = true

	for _, f := range spec.Frames {
		if err := validate(f, seen); err != nil {
			return err
		}
	}
	return nil
}
