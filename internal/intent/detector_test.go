package intent

import (
	"testing"

	"github.com/ent0n29/avatar-tour/internal/realtime"
)

func TestMatchesDemoIntent(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"can you show me the demo", true},
		{"I love this demo", false},
		{"let's see the demo", true},
		{"demo", true},
		{"Demo, please.", true},
		{"SHOW ME THE DEMO", true},
		{"could you launch the product demo?", true},
		{"play it", false},
		{"tell me about pricing", false},
		{"showreel was nice", false},
		{"show me democracy", false},
		{"can we watch the demos", true},
		// Known accuracy gap: negations are not understood.
		{"no demo needed", false},
		{"don't show me the demo", true},
	}
	for _, tc := range cases {
		if got := MatchesDemoIntent(tc.text); got != tc.want {
			t.Fatalf("MatchesDemoIntent(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestDetectorFiresOnce(t *testing.T) {
	d := NewDetector()
	history := []realtime.Message{
		{Role: realtime.RoleAssistant, Content: "Hi there!"},
		{Role: realtime.RoleUser, Content: "show me the demo"},
	}
	if !d.Observe(history) {
		t.Fatalf("first matching update should latch")
	}
	history = append(history, realtime.Message{Role: realtime.RoleUser, Content: "play the demo"})
	for i := 0; i < 3; i++ {
		if d.Observe(history) {
			t.Fatalf("detector fired again on update %d", i)
		}
	}
	if !d.Latched() {
		t.Fatalf("Latched() = false, want true")
	}
}

func TestDetectorInspectsOnlyLastMessage(t *testing.T) {
	d := NewDetector()
	history := []realtime.Message{
		{Role: realtime.RoleUser, Content: "show me the demo"},
		{Role: realtime.RoleAssistant, Content: "Sure, one moment"},
	}
	if d.Observe(history) {
		t.Fatalf("assistant last message must not trigger")
	}
	if d.Observe(nil) {
		t.Fatalf("empty history must not trigger")
	}
	if d.Observe([]realtime.Message{{Role: realtime.RoleAssistant, Content: "watch the demo"}}) {
		t.Fatalf("assistant utterance must not trigger")
	}
}
