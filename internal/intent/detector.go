// Package intent spots the visitor asking to see the product demo in the live
// transcript. Matching is keyword based, not NLU.
package intent

import (
	"regexp"
	"strings"
	"sync"

	"github.com/ent0n29/avatar-tour/internal/realtime"
)

var (
	demoWord  = regexp.MustCompile(`(?i)\bdemos?\b`)
	demoVerbs = regexp.MustCompile(`(?i)\b(show|display|view|open|play|watch|see|start|launch)\b`)
	wordSplit = regexp.MustCompile(`[a-z']+`)
)

// fillers may surround a bare "demo" without changing its meaning.
var fillers = map[string]bool{
	"the": true, "a": true, "your": true, "please": true, "ok": true, "okay": true,
	"sure": true, "yes": true, "yeah": true, "um": true, "uh": true,
}

// MatchesDemoIntent reports whether text asks to see the demo: it mentions
// "demo" and either uses one of the demo verbs or is nothing but the word demo.
func MatchesDemoIntent(text string) bool {
	if !demoWord.MatchString(text) {
		return false
	}
	if demoVerbs.MatchString(text) {
		return true
	}
	return isBareDemo(text)
}

func isBareDemo(text string) bool {
	words := wordSplit.FindAllString(strings.ToLower(text), -1)
	var rest []string
	for _, w := range words {
		if fillers[w] {
			continue
		}
		rest = append(rest, w)
	}
	return len(rest) == 1 && (rest[0] == "demo" || rest[0] == "demos")
}

// Detector latches the first demo request of a session. Only the newest
// message of each history update is inspected.
type Detector struct {
	mu      sync.Mutex
	latched bool
}

func NewDetector() *Detector { return &Detector{} }

// Observe returns true exactly once: on the first update whose last message is a
// user message matching the demo intent. Later updates are not evaluated.
func (d *Detector) Observe(history []realtime.Message) bool {
	if len(history) == 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latched {
		return false
	}
	last := history[len(history)-1]
	if last.Role != realtime.RoleUser || !MatchesDemoIntent(last.Content) {
		return false
	}
	d.latched = true
	return true
}

func (d *Detector) Latched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latched
}
