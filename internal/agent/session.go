// Package agent implements the stdio Agent Runtime: session lifecycle,
// slash-command handling, and ask_code streaming over the MCP Bridge.
package agent

import (
	"strconv"
	"strings"
	"sync"

	"github.com/codecompass/core/internal/models"
)

// overrides holds the session-scoped mutable config described in spec §4.J.
type overrides struct {
	repo            string
	model           string
	modelProfile    string
	provider        string
	apiURL          string
	apiKey          string
	grounded        models.GroundedOverride
	contentType     string // "", "code", "docs", "all"
}

func (o overrides) snapshot() overrides { return o }

// SessionState is the per-conversation mutable record the Agent keeps.
type SessionState struct {
	ID string

	cancelMu sync.Mutex
	cancelCh chan struct{}

	promptMutex sync.Mutex

	bridgeMu sync.Mutex
	bridge   bridgeHandle

	overridesMu sync.Mutex
	ov          overrides
}

func newSessionState(id string, bridge bridgeHandle) *SessionState {
	return &SessionState{ID: id, bridge: bridge, cancelCh: make(chan struct{})}
}

// signalCancel raises the session's cancel signal exactly once per prompt
// cycle; resetCancel rearms it for the next prompt.
func (s *SessionState) signalCancel() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	select {
	case <-s.cancelCh:
	default:
		close(s.cancelCh)
	}
}

func (s *SessionState) resetCancel() <-chan struct{} {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancelCh = make(chan struct{})
	return s.cancelCh
}

func (s *SessionState) isCancelled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *SessionState) currentBridge() bridgeHandle {
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()
	return s.bridge
}

func (s *SessionState) swapBridge(b bridgeHandle) {
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()
	s.bridge = b
}

func (s *SessionState) snapshotOverrides() overrides {
	s.overridesMu.Lock()
	defer s.overridesMu.Unlock()
	return s.ov.snapshot()
}

func (s *SessionState) restoreOverrides(snap overrides) {
	s.overridesMu.Lock()
	defer s.overridesMu.Unlock()
	s.ov = snap
}

func (s *SessionState) withOverrides(fn func(*overrides)) {
	s.overridesMu.Lock()
	defer s.overridesMu.Unlock()
	fn(&s.ov)
}

// parseCSVDedup splits on commas, trims whitespace, drops empties, and
// de-duplicates while preserving order.
func parseCSVDedup(raw string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func parseOptionalInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseOptionalFloat(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
