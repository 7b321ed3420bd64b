package policy

import (
	"strings"
	"testing"
)

func TestRedactSecrets(t *testing.T) {
	input := `upstream rejected Authorization: Bearer sk_live_abc123 for api_key=xyz789 (owner ops@example.com)`
	out, changed := RedactSecrets(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, leaked := range []string{"sk_live_abc123", "xyz789", "ops@example.com"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("output still contains %q: %q", leaked, out)
		}
	}
	if !strings.Contains(out, "api_key=[REDACTED]") {
		t.Fatalf("field name should survive: %q", out)
	}
}

func TestRedactSecretsJWT(t *testing.T) {
	out, changed := RedactSecrets("bad token eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig_part")
	if !changed || strings.Contains(out, "eyJhbGci") {
		t.Fatalf("jwt not redacted: %q", out)
	}
}

func TestDisplayMessageVerbatimByDefault(t *testing.T) {
	if got := DisplayMessage("invalid key", false); got != "invalid key" {
		t.Fatalf("DisplayMessage() = %q, want verbatim", got)
	}
	if got := DisplayMessage("invalid key", true); got != "invalid key" {
		t.Fatalf("DisplayMessage() = %q, want unchanged when nothing to redact", got)
	}
}
