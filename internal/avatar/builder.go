package avatar

import (
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/avatar-tour/internal/persona"
)

// Builder turns a scene name into a controller. Scene settings win over the
// defaults; the defaults fill whatever a scene leaves empty.
type Builder struct {
	Catalog  *persona.Catalog
	Defaults Config
	Deps     Deps
}

func (b *Builder) Build(sceneName string) (*Controller, persona.Scene, error) {
	if b.Catalog == nil {
		return nil, persona.Scene{}, fmt.Errorf("avatar: no persona catalog")
	}
	scene, p, err := b.Catalog.Resolve(sceneName)
	if err != nil {
		return nil, persona.Scene{}, err
	}

	cfg := b.Defaults
	cfg.Persona = p
	cfg.OpeningLine = p.OpeningLine
	if strings.TrimSpace(scene.Label) != "" {
		cfg.Label = scene.Label
	}
	if strings.TrimSpace(scene.IdleFollowUpMessage) != "" {
		cfg.IdleFollowUpMessage = scene.IdleFollowUpMessage
	}
	if scene.IdleSeconds > 0 {
		cfg.IdleDelay = time.Duration(scene.IdleSeconds * float64(time.Second))
	}

	c, err := NewController(cfg, b.Deps)
	if err != nil {
		return nil, persona.Scene{}, err
	}
	return c, scene, nil
}
