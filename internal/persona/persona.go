package persona

import (
	"errors"
	"strings"
)

// Config is the identity/voice/prompt bundle the avatar performs.
// It is chosen once per session and never mutated.
type Config struct {
	Name         string `json:"name" yaml:"name"`
	AvatarID     string `json:"avatarId" yaml:"avatar_id"`
	VoiceID      string `json:"voiceId" yaml:"voice_id"`
	LLMID        string `json:"llmId" yaml:"llm_id"`
	SystemPrompt string `json:"systemPrompt" yaml:"system_prompt"`
	OpeningLine  string `json:"openingLine,omitempty" yaml:"opening_line"`
}

func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(c.AvatarID) == "" {
		missing = append(missing, "avatar_id")
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		missing = append(missing, "voice_id")
	}
	if strings.TrimSpace(c.LLMID) == "" {
		missing = append(missing, "llm_id")
	}
	if len(missing) > 0 {
		return errors.New("persona missing " + strings.Join(missing, ", "))
	}
	return nil
}

// Scene is one tour screen that embeds the avatar.
type Scene struct {
	Name                string  `json:"name" yaml:"name"`
	Label               string  `json:"label" yaml:"label"`
	Persona             string  `json:"persona" yaml:"persona"`
	OpeningLine         string  `json:"opening_line,omitempty" yaml:"opening_line"`
	IdleFollowUpMessage string  `json:"idle_follow_up_message,omitempty" yaml:"idle_follow_up_message"`
	IdleSeconds         float64 `json:"idle_seconds,omitempty" yaml:"idle_seconds"`
}
