// Command agent runs the stdio Agent Runtime: a bidirectional JSON-RPC-like
// control protocol that forwards questions to an external MCP tool server
// and streams paragraph-chunked answers back to the client.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/codecompass/core/internal/agent"
	"github.com/codecompass/core/internal/profiles"
)

// rpcRequest is one line of the stdio control protocol.
type rpcRequest struct {
	ID     any             `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any    `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type sessionUpdateEvent struct {
	Method string `json:"method"`
	Params struct {
		SessionID string `json:"sessionId"`
		Update    any    `json:"update"`
	} `json:"params"`
}

// stdoutConn implements agent.Conn by writing session_update notifications
// as newline-delimited JSON to stdout, serialized against concurrent
// rpcResponse writes.
type stdoutConn struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (c *stdoutConn) SessionUpdate(sessionID, kind string, payload any) {
	event := sessionUpdateEvent{Method: "session_update"}
	event.Params.SessionID = sessionID
	event.Params.Update = map[string]any{"session_update": kind, "value": payload}
	c.writeJSON(event)
}

func (c *stdoutConn) writeResponse(resp rpcResponse) {
	c.writeJSON(resp)
}

func (c *stdoutConn) writeJSON(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	encoded, err := json.Marshal(v)
	if err != nil {
		log.Printf("agent: marshal response: %v", err)
		return
	}
	c.w.Write(encoded)
	c.w.WriteByte('\n')
	c.w.Flush()
}

func main() {
	mcpCommand := strings.Fields(os.Getenv("MCP_COMMAND"))
	if len(mcpCommand) == 0 {
		log.Fatal("agent: MCP_COMMAND must name the tool server executable and arguments")
	}

	repoRoot := os.Getenv("CODEBASE_ROOT")
	if repoRoot == "" {
		repoRoot = "."
	}
	profileSet, err := profiles.Load(profiles.DefaultPath(repoRoot))
	if err != nil {
		log.Fatalf("agent: loading model profiles: %v", err)
	}

	conn := &stdoutConn{w: bufio.NewWriter(os.Stdout)}
	a := agent.New(conn, mcpCommand, profileSet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("agent: received shutdown signal, closing sessions")
		a.CleanupAll()
		cancel()
	}()
	defer a.CleanupAll()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			conn.writeResponse(rpcResponse{Error: "invalid request: " + err.Error()})
			continue
		}

		// Each request is dispatched on its own goroutine: prompt handling
		// blocks for the duration of a tool call, and cancel (along with
		// other sessions' requests) must still be read off stdin while
		// that is in flight.
		go handleRequest(ctx, a, conn, req)
	}
}

func handleRequest(ctx context.Context, a *agent.Agent, conn *stdoutConn, req rpcRequest) {
	switch req.Method {
	case "initialize":
		var params struct {
			ProtocolVersion int `json:"protocolVersion"`
		}
		_ = json.Unmarshal(req.Params, &params)
		resp := a.Initialize(params.ProtocolVersion)
		conn.writeResponse(rpcResponse{ID: req.ID, Result: resp})

	case "new_session":
		var params struct {
			Cwd string `json:"cwd"`
		}
		_ = json.Unmarshal(req.Params, &params)
		sessionID, err := a.NewSession(ctx, params.Cwd)
		if err != nil {
			conn.writeResponse(rpcResponse{ID: req.ID, Error: err.Error()})
			return
		}
		conn.writeResponse(rpcResponse{ID: req.ID, Result: map[string]string{"sessionId": sessionID}})

	case "prompt":
		var params struct {
			SessionID string `json:"sessionId"`
			Prompt    []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"prompt"`
		}
		_ = json.Unmarshal(req.Params, &params)

		blocks := make([]agent.ContentBlock, len(params.Prompt))
		for i, b := range params.Prompt {
			blocks[i] = agent.ContentBlock{Type: b.Type, Text: b.Text}
		}

		stopReason := a.Prompt(ctx, params.SessionID, blocks)
		conn.writeResponse(rpcResponse{ID: req.ID, Result: map[string]string{"stopReason": stopReason}})

	case "cancel":
		var params struct {
			SessionID string `json:"sessionId"`
		}
		_ = json.Unmarshal(req.Params, &params)
		a.Cancel(params.SessionID)
		conn.writeResponse(rpcResponse{ID: req.ID, Result: map[string]any{}})

	default:
		conn.writeResponse(rpcResponse{ID: req.ID, Error: "unknown method: " + req.Method})
	}
}
