package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codecompass/core/internal/models"
)

// commandNames are matched with hyphens collapsed, per spec §4.J.
var commandNames = []string{"/config", "/repo", "/model", "/grounded", "/content-type", "/contenttype"}

func normalizeCommandWord(word string) string {
	return strings.ToLower(strings.ReplaceAll(word, "-", ""))
}

// isCommand reports whether text is a recognized slash-command invocation.
func isCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return false
	}
	head := normalizeCommandWord(fields[0])
	for _, name := range commandNames {
		if normalizeCommandWord(name) == head {
			return true
		}
	}
	return false
}

// handleCommand dispatches one slash-command and returns the single text
// block to emit back to the client.
func (a *Agent) handleCommand(session *SessionState, text string) string {
	fields := strings.Fields(text)
	head := normalizeCommandWord(fields[0])
	args := fields[1:]

	switch head {
	case "/config":
		return a.cmdConfig(session)
	case "/repo":
		return a.cmdRepo(session, args)
	case "/model":
		return a.cmdModel(session, args)
	case "/grounded":
		return a.cmdGrounded(session, args)
	case "/content-type", "/contenttype":
		return a.cmdContentType(session, args)
	default:
		return fmt.Sprintf("unrecognized command: %s", fields[0])
	}
}

func (a *Agent) cmdConfig(session *SessionState) string {
	ov := session.snapshotOverrides()
	payload := a.buildAskInput(ov, "<query omitted>")

	args := BuildAskArgumentsForPreview(payload)
	delete(args, "query")

	snapshot := map[string]any{
		"repoOverride":        ov.repo,
		"modelOverride":       ov.model,
		"modelProfileOverride": ov.modelProfile,
		"providerOverride":    ov.provider,
		"groundedOverride":    groundedLabel(ov.grounded),
		"contentTypeOverride": ov.contentType,
		"effectiveModel":      effectiveModel(ov),
		"effectiveProvider":   effectiveProvider(ov),
		"askCodePreview":      args,
	}

	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Sprintf("error rendering config: %v", err)
	}
	return string(encoded)
}

func (a *Agent) cmdRepo(session *SessionState, args []string) string {
	if len(args) == 0 {
		ov := session.snapshotOverrides()
		if ov.repo == "" {
			return "repo: " + firstEnv("ACP_REPO")
		}
		return "repo: " + ov.repo
	}

	entries := parseCSVDedup(strings.Join(args, " "))
	codebaseRoot := os.Getenv("CODEBASE_ROOT")

	if codebaseRoot != "" {
		var missing []string
		for _, e := range entries {
			info, err := os.Stat(filepath.Join(codebaseRoot, e))
			if err != nil || !info.IsDir() {
				missing = append(missing, e)
			}
		}
		if len(missing) > 0 {
			return fmt.Sprintf("repo not set: missing repositories %s", strings.Join(missing, ", "))
		}
	}

	session.withOverrides(func(o *overrides) { o.repo = strings.Join(entries, ",") })
	return "repo set: " + strings.Join(entries, ",")
}

func (a *Agent) cmdModel(session *SessionState, args []string) string {
	if len(args) == 0 {
		ov := session.snapshotOverrides()
		return fmt.Sprintf("model: %s (profile: %s)", effectiveModel(ov), ov.modelProfile)
	}

	arg := args[0]
	switch strings.ToLower(arg) {
	case "reset", "default":
		snap := session.snapshotOverrides()
		session.withOverrides(func(o *overrides) {
			o.model, o.modelProfile, o.provider, o.apiURL, o.apiKey = "", "", "", "", ""
		})
		if err := a.refreshBridge(session); err != nil {
			session.restoreOverrides(snap)
			return "failed to rebuild MCP bridge: " + err.Error()
		}
		return "model overrides cleared"
	}

	if strings.HasPrefix(arg, "profile:") {
		name := strings.TrimPrefix(arg, "profile:")
		profile, err := a.profiles.Resolve(name)
		if err != nil {
			return "failed to load profile: " + err.Error()
		}

		snap := session.snapshotOverrides()
		session.withOverrides(func(o *overrides) {
			o.modelProfile = profile.Name
			o.model = profile.Model
			o.provider = profile.Provider
			o.apiURL = profile.APIURL
			o.apiKey = profile.ResolvedAPIKey()
		})
		if err := a.refreshBridge(session); err != nil {
			session.restoreOverrides(snap)
			return "failed to rebuild MCP bridge: " + err.Error()
		}
		return "profile applied: " + profile.Name
	}

	snap := session.snapshotOverrides()
	session.withOverrides(func(o *overrides) {
		o.model = arg
		o.modelProfile, o.provider, o.apiURL, o.apiKey = "", "", "", ""
	})
	if err := a.refreshBridge(session); err != nil {
		session.restoreOverrides(snap)
		return "failed to rebuild MCP bridge: " + err.Error()
	}
	return "model set: " + arg
}

func (a *Agent) cmdGrounded(session *SessionState, args []string) string {
	if len(args) == 0 {
		ov := session.snapshotOverrides()
		if ov.grounded == models.GroundedUnset {
			return fmt.Sprintf("grounded: %s (env)", strconv.FormatBool(parseGroundedEnv()))
		}
		return fmt.Sprintf("grounded: %t (sessão)", ov.grounded == models.GroundedOn)
	}

	switch strings.ToLower(args[0]) {
	case "on":
		session.withOverrides(func(o *overrides) { o.grounded = models.GroundedOn })
		return "grounded: true (sessão)"
	case "off":
		session.withOverrides(func(o *overrides) { o.grounded = models.GroundedOff })
		return "grounded: false (sessão)"
	case "reset", "default":
		session.withOverrides(func(o *overrides) { o.grounded = models.GroundedUnset })
		return "grounded override cleared"
	default:
		return "usage: /grounded [on|off|reset|default]"
	}
}

func (a *Agent) cmdContentType(session *SessionState, args []string) string {
	if len(args) == 0 {
		ov := session.snapshotOverrides()
		if ov.contentType == "" {
			return "content-type: " + firstEnv("ACP_CONTENT_TYPE")
		}
		return "content-type: " + ov.contentType
	}

	switch strings.ToLower(args[0]) {
	case "code", "docs", "all":
		session.withOverrides(func(o *overrides) { o.contentType = strings.ToLower(args[0]) })
		return "content-type set: " + strings.ToLower(args[0])
	case "reset", "default":
		session.withOverrides(func(o *overrides) { o.contentType = "" })
		return "content-type override cleared"
	default:
		return "usage: /content-type [code|docs|all|reset|default]"
	}
}

func groundedLabel(g models.GroundedOverride) string {
	switch g {
	case models.GroundedOn:
		return "on"
	case models.GroundedOff:
		return "off"
	default:
		return "unset"
	}
}

func parseGroundedEnv() bool {
	return isTruthy(os.Getenv("ACP_GROUNDED"))
}

