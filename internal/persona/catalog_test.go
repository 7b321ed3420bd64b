package persona

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogResolvesShowreel(t *testing.T) {
	c := DefaultCatalog()
	scene, p, err := c.Resolve("showreel")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Name != "Cara" {
		t.Fatalf("persona = %q, want %q", p.Name, "Cara")
	}
	if p.OpeningLine != scene.OpeningLine {
		t.Fatalf("OpeningLine = %q, want scene override %q", p.OpeningLine, scene.OpeningLine)
	}
	if scene.IdleSeconds != 10 {
		t.Fatalf("IdleSeconds = %v, want 10", scene.IdleSeconds)
	}
}

func TestResolveUnknownScene(t *testing.T) {
	_, _, err := DefaultCatalog().Resolve("nope")
	if !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("error = %v, want ErrUnknownScene", err)
	}
}

func TestLoadCatalogMergesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	raw := `
personas:
  - name: Max
    avatar_id: a1
    voice_id: v1
    llm_id: l1
    system_prompt: be brief
scenes:
  - name: pricing
    label: Pricing tour
    persona: max
    opening_line: Ask me anything.
    idle_follow_up_message: Still there?
    idle_seconds: 4
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	scene, p, err := c.Resolve("Pricing")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.AvatarID != "a1" || p.OpeningLine != "Ask me anything." {
		t.Fatalf("unexpected persona: %+v", p)
	}
	if scene.IdleFollowUpMessage != "Still there?" {
		t.Fatalf("IdleFollowUpMessage = %q", scene.IdleFollowUpMessage)
	}
	if _, _, err := c.Resolve("intro"); err != nil {
		t.Fatalf("default scenes should survive merge: %v", err)
	}
}

func TestLoadCatalogRejectsDanglingPersona(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	raw := "scenes:\n  - name: x\n    persona: ghost\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatalf("expected error for unknown persona")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Name: "x"}).Validate(); err == nil {
		t.Fatalf("expected missing fields error")
	}
}
