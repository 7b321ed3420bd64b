package persona

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownScene = errors.New("unknown scene")

// Catalog holds the personas and scenes known to the service.
type Catalog struct {
	personas map[string]Config
	scenes   map[string]Scene
}

type catalogFile struct {
	Personas []Config `yaml:"personas"`
	Scenes   []Scene  `yaml:"scenes"`
}

const defaultSystemPrompt = "Ava is a friendly, professional website assistant for Aptara. She welcomes visitors, " +
	"introduces Aptara's digital, content, and AI-enabled solutions, and guides users based on their interests. " +
	"Keep responses warm, clear, and concise, never salesy. Focus only on Aptara services, suggest solutions or " +
	"contacting the team when needed, and avoid pricing or competitor discussions."

// DefaultCatalog mirrors the guided tour shipped with the microsite.
func DefaultCatalog() *Catalog {
	c := &Catalog{personas: map[string]Config{}, scenes: map[string]Scene{}}
	c.personas["cara"] = Config{
		Name:         "Cara",
		AvatarID:     "30fa96d0-26c4-4e55-94a0-517025942e18",
		VoiceID:      "6bfbe25a-979d-40f3-a92b-5394170af54b",
		LLMID:        "9d8900ee-257d-4401-8817-ba9c835e9d36",
		SystemPrompt: defaultSystemPrompt,
		OpeningLine:  "Hi there! Welcome to Aptara. I'm Ava, your digital guide. Are you here to explore our solutions, learn about Aptara, or see how we can support your business?",
	}
	for _, s := range []Scene{
		{Name: "intro", Label: "Live", Persona: "cara"},
		{Name: "choose-path", Label: "Avatar continues talking while you choose", Persona: "cara"},
		{
			Name:                "showreel",
			Label:               "Live",
			Persona:             "cara",
			OpeningLine:         "Thanks for watching! Do you have any questions about the demo?",
			IdleFollowUpMessage: "Would you like to see our product-specific demo?",
			IdleSeconds:         10,
		},
		{Name: "demo-selector", Label: "Avatar explains how to choose industry + complexity", Persona: "cara"},
	} {
		c.scenes[s.Name] = s
	}
	return c
}

// LoadCatalog returns the default catalog extended by the YAML file at path.
// An empty path yields the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read catalog: %w", err)
	}
	if err := c.merge(raw); err != nil {
		return nil, fmt.Errorf("persona: %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) merge(raw []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	for _, p := range file.Personas {
		if err := p.Validate(); err != nil {
			return err
		}
		c.personas[key(p.Name)] = p
	}
	for _, s := range file.Scenes {
		if strings.TrimSpace(s.Name) == "" {
			return errors.New("scene without name")
		}
		if _, ok := c.personas[key(s.Persona)]; !ok {
			return fmt.Errorf("scene %q references unknown persona %q", s.Name, s.Persona)
		}
		if s.IdleSeconds < 0 {
			return fmt.Errorf("scene %q idle_seconds must be >= 0", s.Name)
		}
		c.scenes[key(s.Name)] = s
	}
	return nil
}

// Resolve returns the scene and its persona. The scene's opening line, when set,
// replaces the persona's own.
func (c *Catalog) Resolve(scene string) (Scene, Config, error) {
	s, ok := c.scenes[key(scene)]
	if !ok {
		return Scene{}, Config{}, fmt.Errorf("%w: %q", ErrUnknownScene, scene)
	}
	p, ok := c.personas[key(s.Persona)]
	if !ok {
		return Scene{}, Config{}, fmt.Errorf("scene %q references unknown persona %q", s.Name, s.Persona)
	}
	if strings.TrimSpace(s.OpeningLine) != "" {
		p.OpeningLine = s.OpeningLine
	}
	return s, p, nil
}

func (c *Catalog) Scenes() []Scene {
	out := make([]Scene, 0, len(c.scenes))
	for _, s := range c.scenes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
