// Package mcpbridge wraps a long-lived child process speaking MCP
// (JSON-RPC 2.0 over stdio) as the Agent Runtime's gateway to the external
// tool server. It is built on mark3labs/mcp-go's client package rather than
// a hand-rolled JSON-RPC client.
package mcpbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	askCodeTool        = "ask_code"
	shutdownGraceDelay = 2 * time.Second
	stderrTailMaxLines = 30
	stderrTailMaxChars = 1200
)

// HandshakeError is returned when start() fails the MCP handshake.
type HandshakeError struct{ Message string }

func (e *HandshakeError) Error() string { return "mcpbridge: handshake failed: " + e.Message }

// ProtocolError wraps a malformed or error response from the child.
type ProtocolError struct{ Message string }

func (e *ProtocolError) Error() string { return "mcpbridge: " + e.Message }

// Cancelled is returned from AskCode when the caller's cancel signal fires
// before the child responds.
var Cancelled = fmt.Errorf("mcpbridge: cancelled")

// Config describes how to spawn the child process.
type Config struct {
	Command []string
	Env     []string
}

// Bridge owns one child process and its MCP client handle.
type Bridge struct {
	cfg Config

	mu     sync.Mutex
	client *client.Client

	stderrMu   sync.Mutex
	stderrTail []string
}

// New builds an unstarted Bridge.
func New(cfg Config) *Bridge {
	return &Bridge{cfg: cfg}
}

// Start spawns the child and performs the handshake described in spec
// §4.I: initialize → initialized → tools/list (must contain ask_code).
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return nil
	}

	if len(b.cfg.Command) == 0 {
		return &HandshakeError{Message: "empty MCP command"}
	}

	c, err := client.NewStdioMCPClient(b.cfg.Command[0], b.cfg.Env, b.cfg.Command[1:]...)
	if err != nil {
		return fmt.Errorf("mcpbridge: spawning child: %w", err)
	}

	if stdio, ok := c.GetTransport().(*transport.Stdio); ok {
		go b.tailStderr(stdio.Stderr())
	}

	initResult, err := c.Initialize(ctx, mcp.InitializeRequest{})
	if err != nil || initResult.ProtocolVersion == "" {
		_ = c.Close()
		return &HandshakeError{Message: fmt.Sprintf("initialize: %v", err)}
	}

	toolsResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return &HandshakeError{Message: fmt.Sprintf("tools/list: %v", err)}
	}

	found := false
	for _, tool := range toolsResult.Tools {
		if tool.Name == askCodeTool {
			found = true
			break
		}
	}
	if !found {
		_ = c.Close()
		return &HandshakeError{Message: "tool ask_code not advertised"}
	}

	b.client = c
	return nil
}

// AskCode sends ask_code and races the response against cancelSignal. On
// cancellation, the child is aborted and Cancelled is returned without
// waiting for a response.
func (b *Bridge) AskCode(ctx context.Context, arguments map[string]any, cancelSignal <-chan struct{}) (map[string]any, error) {
	if err := b.Start(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	c := b.client
	b.mu.Unlock()

	if c == nil {
		return nil, &ProtocolError{Message: "bridge not started"}
	}

	type callResult struct {
		result *mcp.CallToolResult
		err    error
	}
	resultCh := make(chan callResult, 1)

	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()

	go func() {
		req := mcp.CallToolRequest{}
		req.Params.Name = askCodeTool
		req.Params.Arguments = arguments

		result, err := c.CallTool(callCtx, req)
		resultCh <- callResult{result: result, err: err}
	}()

	select {
	case <-cancelSignal:
		cancelCall()
		_ = b.Abort(context.Background())
		return nil, Cancelled
	case res := <-resultCh:
		if res.err != nil {
			return nil, &ProtocolError{Message: res.err.Error()}
		}
		return parseToolsCallResult(res.result)
	}
}

func parseToolsCallResult(result *mcp.CallToolResult) (map[string]any, error) {
	if result == nil || len(result.Content) == 0 {
		return nil, &ProtocolError{Message: "response without content"}
	}

	textContent, ok := mcp.AsTextContent(result.Content[0])
	if !ok || textContent.Text == "" {
		return nil, &ProtocolError{Message: "response without text block"}
	}

	if result.IsError {
		return nil, &ProtocolError{Message: textContent.Text}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(textContent.Text), &out); err != nil {
		return nil, &ProtocolError{Message: "response text is not valid JSON"}
	}
	return out, nil
}

// Abort is a synonym for Close: the same shutdown, started immediately.
func (b *Bridge) Abort(ctx context.Context) error {
	return b.shutdown(ctx)
}

// Close shuts the bridge down through the MCP client's Close and waits up
// to shutdownGraceDelay for it to return. If it has not returned by then,
// Close returns a timeout error carrying the stderr tail; it does not
// itself kill the child process.
func (b *Bridge) Close(ctx context.Context) error {
	return b.shutdown(ctx)
}

func (b *Bridge) shutdown(ctx context.Context) error {
	b.mu.Lock()
	c := b.client
	b.client = nil
	b.mu.Unlock()

	if c == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownGraceDelay):
		return fmt.Errorf("mcpbridge: shutdown timed out (%s)", b.StderrTail())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) tailStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.stderrMu.Lock()
		b.stderrTail = append(b.stderrTail, line)
		if len(b.stderrTail) > stderrTailMaxLines {
			b.stderrTail = b.stderrTail[len(b.stderrTail)-stderrTailMaxLines:]
		}
		b.stderrMu.Unlock()
	}
}

// StderrTail returns the last captured stderr lines, truncated to
// stderrTailMaxChars, for operator triage on crash.
func (b *Bridge) StderrTail() string {
	b.stderrMu.Lock()
	defer b.stderrMu.Unlock()

	joined := strings.Join(b.stderrTail, " | ")
	if len(joined) > stderrTailMaxChars {
		joined = "..." + joined[len(joined)-stderrTailMaxChars:]
	}
	return joined
}
