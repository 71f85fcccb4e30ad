package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/codecompass/core/internal/chunker"
	"github.com/codecompass/core/internal/mcpbridge"
	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/internal/profiles"
	"github.com/codecompass/core/internal/searchcli"
)

// Stop reasons, per spec §4.J.
const (
	StopEndTurn   = "end_turn"
	StopCancelled = "cancelled"
	StopRefusal   = "refusal"
)

// ContentBlock mirrors the tagged-variant content block from the agent
// protocol; only Type == "text" is consumed by this core.
type ContentBlock struct {
	Type string
	Text string
}

// Conn is the remote client reachable through session_update events.
type Conn interface {
	SessionUpdate(sessionID string, kind string, payload any)
}

// bridgeHandle is the slice of *mcpbridge.Bridge's lifecycle and
// request/response surface that the Agent depends on. Narrowing it to an
// interface lets tests exercise the cancellation race (spec §4.I/§4.J)
// against a fake bridge instead of a spawned child process.
type bridgeHandle interface {
	Start(ctx context.Context) error
	AskCode(ctx context.Context, arguments map[string]any, cancel <-chan struct{}) (map[string]any, error)
	Abort(ctx context.Context) error
	Close(ctx context.Context) error
}

// Agent implements the bidirectional stdio protocol described in spec §4.J.
type Agent struct {
	conn        Conn
	mcpCommand  []string
	profiles    *profiles.Set

	mu       sync.Mutex
	sessions map[string]*SessionState
}

// New builds an Agent. mcpCommand is the argv used to spawn the tool
// server child process; profileSet may be empty but never nil.
func New(conn Conn, mcpCommand []string, profileSet *profiles.Set) *Agent {
	return &Agent{
		conn:       conn,
		mcpCommand: mcpCommand,
		profiles:   profileSet,
		sessions:   make(map[string]*SessionState),
	}
}

// InitializeResponse echoes the negotiated protocol version.
type InitializeResponse struct {
	ProtocolVersion int
	AgentName       string
	AgentVersion    string
}

// Initialize handles the agent's initialize operation.
func (a *Agent) Initialize(protocolVersion int) InitializeResponse {
	return InitializeResponse{ProtocolVersion: protocolVersion, AgentName: "code-compass-agent", AgentVersion: "0.1.0"}
}

// NewSession allocates a session, eagerly starts its MCP Bridge, and
// announces the available slash-commands to the client.
func (a *Agent) NewSession(ctx context.Context, cwd string) (string, error) {
	ov := overrides{model: envLLMModel(), provider: envLLMProvider(), apiURL: envLLMAPIURL(), apiKey: envLLMAPIKey()}

	bridge := mcpbridge.New(mcpbridge.Config{Command: a.mcpCommand, Env: bridgeEnv(ov)})
	if err := bridge.Start(ctx); err != nil {
		return "", fmt.Errorf("agent: starting MCP bridge: %w", err)
	}

	sessionID := randomSessionID()
	session := newSessionState(sessionID, bridge)

	a.mu.Lock()
	a.sessions[sessionID] = session
	a.mu.Unlock()

	if a.conn != nil {
		a.conn.SessionUpdate(sessionID, "available_commands_update", commandNames)
	}

	return sessionID, nil
}

// Prompt implements the prompt state machine from spec §4.J.
func (a *Agent) Prompt(ctx context.Context, sessionID string, blocks []ContentBlock) string {
	a.mu.Lock()
	session, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		return StopRefusal
	}

	question := blocksToText(blocks)
	if question == "" {
		return StopRefusal
	}

	cancelCh := session.resetCancel()

	session.promptMutex.Lock()
	defer session.promptMutex.Unlock()

	if isCommand(question) {
		reply := a.handleCommand(session, question)
		a.emitText(sessionID, reply)
		return StopEndTurn
	}

	ov := session.snapshotOverrides()
	input := a.buildAskInput(ov, question)

	out, err := searchcli.Ask(ctx, session.currentBridge(), input, cancelCh)
	if err != nil {
		if err == mcpbridge.Cancelled {
			return StopCancelled
		}
		_ = session.currentBridge().Close(context.Background())
		a.emitText(sessionID, "error asking code: "+err.Error())
		return StopEndTurn
	}

	if showMeta() {
		a.emitText(sessionID, "__ACP_META__"+metaJSON(out.Meta))
	}

	for _, chunk := range chunker.ByParagraph(out.Answer, 300) {
		if session.isCancelled(cancelCh) {
			return StopCancelled
		}
		a.emitText(sessionID, chunk)

		if delay, ok := parseOptionalFloat(os.Getenv("ACP_TEST_SLOW_STREAM")); ok {
			time.Sleep(time.Duration(delay * float64(time.Second)))
		}
	}

	return StopEndTurn
}

// Cancel sets the session's cancel signal and aborts its bridge.
func (a *Agent) Cancel(sessionID string) {
	a.mu.Lock()
	session, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		return
	}

	session.signalCancel()
	_ = session.currentBridge().Abort(context.Background())
}

// CleanupAll closes every session's bridge; called on process exit.
func (a *Agent) CleanupAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, session := range a.sessions {
		_ = session.currentBridge().Close(context.Background())
	}
	a.sessions = make(map[string]*SessionState)
}

func (a *Agent) emitText(sessionID, text string) {
	if a.conn != nil {
		a.conn.SessionUpdate(sessionID, "agent_message_text", text)
	}
}

// refreshBridge builds a new Bridge from the session's current overrides,
// starts it, and closes the previous one on success only.
func (a *Agent) refreshBridge(session *SessionState) error {
	ov := session.snapshotOverrides()
	newBridge := mcpbridge.New(mcpbridge.Config{Command: a.mcpCommand, Env: bridgeEnv(ov)})

	if err := newBridge.Start(context.Background()); err != nil {
		return err
	}

	old := session.currentBridge()
	session.swapBridge(newBridge)
	if old != nil {
		_ = old.Close(context.Background())
	}
	return nil
}

// buildAskInput constructs the ask_code payload from the session's
// overrides layered over environment defaults, per spec §4.J.
func (a *Agent) buildAskInput(ov overrides, query string) models.AskInput {
	repo := ov.repo
	if repo == "" {
		repo = firstEnv("ACP_REPO")
	}

	input := models.AskInput{
		Query:      query,
		Scope:      scopeFromRepoString(repo),
		PathPrefix: firstEnv("ACP_PATH_PREFIX"),
		Language:   firstEnv("ACP_LANGUAGE"),
		LLMModel:   effectiveModel(ov),
	}

	if topK, ok := parseOptionalInt(os.Getenv("ACP_TOPK")); ok {
		input.TopK = topK
	}
	if minScore, ok := parseOptionalFloat(os.Getenv("ACP_MIN_SCORE")); ok {
		input.MinScore = minScore
	}

	switch ov.grounded {
	case models.GroundedOn:
		input.HasGrounded, input.Grounded = true, true
	case models.GroundedOff:
		input.HasGrounded, input.Grounded = true, false
	default:
		if parseGroundedEnv() {
			input.HasGrounded, input.Grounded = true, true
		}
	}

	contentType := ov.contentType
	if contentType == "" {
		contentType = firstEnv("ACP_CONTENT_TYPE")
	}
	input.ContentType = contentType

	input.Strict = isTruthy(os.Getenv("ACP_STRICT"))

	return input
}

func scopeFromRepoString(repo string) models.Scope {
	if repo == "" {
		return models.Scope{Type: "all"}
	}
	entries := parseCSVDedup(repo)
	if len(entries) <= 1 {
		single := repo
		if len(entries) == 1 {
			single = entries[0]
		}
		return models.Scope{Type: "repo", Repo: single}
	}
	return models.Scope{Type: "repos", Repos: entries}
}

// BuildAskArgumentsForPreview exposes the argument-lowering used by /config
// without requiring a live bridge.
func BuildAskArgumentsForPreview(in models.AskInput) map[string]any {
	return searchcli.BuildAskArguments(in)
}

func showMeta() bool {
	return isTruthy(os.Getenv("ACP_SHOW_META")) || isTruthy(os.Getenv("ACP_SHOW_CONTEXT"))
}

func metaJSON(meta map[string]any) string {
	if meta == nil {
		return "{}"
	}
	parts := make([]string, 0, len(meta))
	for k, v := range meta {
		parts = append(parts, fmt.Sprintf("%q:%q", k, fmt.Sprintf("%v", v)))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func blocksToText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func randomSessionID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "session-" + hex.EncodeToString(buf)
}
