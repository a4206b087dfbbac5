package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/agent-router/domain/tool"
)

var (
	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("client not connected")

	// ErrAlreadyConnected indicates the client is already connected.
	ErrAlreadyConnected = errors.New("client already connected")

	// ErrConnectionFailed indicates the connection to the server failed.
	ErrConnectionFailed = errors.New("connection failed")
)

const protocolVersion = "2024-11-05"

// ToolDef is a tool definition advertised by an MCP server.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolResult is the result of a tools/call request.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text joins the text content blocks.
func (r ToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "" || c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Content is one content block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// PeerInfo names an MCP client or server.
type PeerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientConfig configures a stdio MCP client.
type ClientConfig struct {
	Name    string
	Version string
	// Command starts the server process.
	Command []string
}

// ClientOption configures a client.
type ClientOption func(*ClientConfig)

// WithClientName sets the client name.
func WithClientName(name string) ClientOption {
	return func(c *ClientConfig) {
		c.Name = name
	}
}

// WithClientVersion sets the client version.
func WithClientVersion(version string) ClientOption {
	return func(c *ClientConfig) {
		c.Version = version
	}
}

// WithServerCommand sets the server command.
func WithServerCommand(cmd ...string) ClientOption {
	return func(c *ClientConfig) {
		c.Command = cmd
	}
}

// Client consumes tools from an MCP server over newline-delimited JSON-RPC.
// It implements tool.Invoker and tool.Lister for the command-tool port.
type Client struct {
	config     ClientConfig
	serverInfo *PeerInfo
	connected  bool
	mu         sync.RWMutex

	cmd     *exec.Cmd
	closers []io.Closer
	encoder *json.Encoder
	encMu   sync.Mutex

	reqID     atomic.Int64
	responses map[int64]chan *rpcResponse
	respMu    sync.Mutex
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initParams struct {
	ProtocolVersion string   `json:"protocolVersion"`
	Capabilities    any      `json:"capabilities"`
	ClientInfo      PeerInfo `json:"clientInfo"`
}

type initResult struct {
	ProtocolVersion string   `json:"protocolVersion"`
	ServerInfo      PeerInfo `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []ToolDef `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewClient creates a new MCP client.
func NewClient(opts ...ClientOption) *Client {
	cfg := ClientConfig{
		Name:    "agent-router",
		Version: "1.0.0",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		config:    cfg,
		responses: make(map[int64]chan *rpcResponse),
	}
}

// Connect starts the server process and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if len(c.config.Command) == 0 {
		return fmt.Errorf("%w: no command specified", ErrConnectionFailed)
	}

	// The process outlives ctx, which only bounds the handshake.
	c.cmd = exec.Command(c.config.Command[0], c.config.Command[1:]...) // #nosec G204 -- operator-configured command

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrConnectionFailed, err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("%w: stdout pipe: %v", ErrConnectionFailed, err)
	}
	if err := c.cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return fmt.Errorf("%w: start command: %v", ErrConnectionFailed, err)
	}

	if err := c.attach(ctx, stdout, stdin); err != nil {
		c.shutdown()
		return err
	}
	return nil
}

// ConnectStreams runs the protocol over an existing reader/writer pair.
func (c *Client) ConnectStreams(ctx context.Context, r io.ReadCloser, w io.WriteCloser) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if err := c.attach(ctx, r, w); err != nil {
		c.shutdown()
		return err
	}
	return nil
}

// attach must be called with c.mu held.
func (c *Client) attach(ctx context.Context, r io.ReadCloser, w io.WriteCloser) error {
	c.closers = []io.Closer{w, r}
	c.encoder = json.NewEncoder(w)
	go c.readResponses(bufio.NewScanner(r))

	if err := c.initialize(ctx); err != nil {
		return err
	}
	c.connected = true
	return nil
}

func (c *Client) readResponses(scanner *bufio.Scanner) {
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}

		var reqID int64
		switch id := resp.ID.(type) {
		case float64:
			reqID = int64(id)
		default:
			continue
		}

		c.respMu.Lock()
		if ch, exists := c.responses[reqID]; exists {
			ch <- &resp
			delete(c.responses, reqID)
		}
		c.respMu.Unlock()
	}
}

func (c *Client) initialize(ctx context.Context) error {
	params := initParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    struct{}{},
		ClientInfo: PeerInfo{
			Name:    c.config.Name,
			Version: c.config.Version,
		},
	}

	resp, err := c.sendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("%w: initialize: %v", ErrConnectionFailed, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: initialize: %s", ErrConnectionFailed, resp.Error.Message)
	}

	var result initResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.serverInfo = &result.ServerInfo

	return c.encode(rpcRequest{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
}

func (c *Client) encode(v any) error {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	return c.encoder.Encode(v)
}

func (c *Client) sendRequest(ctx context.Context, method string, params any) (*rpcResponse, error) {
	id := c.reqID.Add(1)

	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	respCh := make(chan *rpcResponse, 1)
	c.respMu.Lock()
	c.responses[id] = respCh
	c.respMu.Unlock()

	if err := c.encode(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramsBytes}); err != nil {
		c.respMu.Lock()
		delete(c.responses, id)
		c.respMu.Unlock()
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		c.respMu.Lock()
		delete(c.responses, id)
		c.respMu.Unlock()
		return nil, ctx.Err()
	}
}

// Close closes the connection and stops the server process.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	for _, cl := range c.closers {
		_ = cl.Close()
	}
	c.closers = nil
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	c.cmd = nil
}

func (c *Client) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ListTools returns the tools advertised by the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolDef, error) {
	if !c.isConnected() {
		return nil, ErrNotConnected
	}

	resp, err := c.sendRequest(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("list tools error: %s", resp.Error.Message)
	}

	var result listToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse list tools result: %w", err)
	}
	return result.Tools, nil
}

// CallTool calls a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	if !c.isConnected() {
		return nil, ErrNotConnected
	}

	resp, err := c.sendRequest(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("call tool error: %s", resp.Error.Message)
	}

	var result ToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse call tool result: %w", err)
	}
	return &result, nil
}

// ServerInfo returns information about the connected server.
func (c *Client) ServerInfo() *PeerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Invoke implements tool.Invoker. Failures are reported as *tool.Error.
func (c *Client) Invoke(ctx context.Context, name string, args json.RawMessage) (tool.Result, error) {
	result, err := c.CallTool(ctx, name, args)
	if err != nil {
		return tool.Result{}, tool.NewError(name, err)
	}
	if result.IsError {
		msg := result.Text()
		if msg == "" {
			msg = "tool execution failed"
		}
		return tool.Result{}, tool.NewError(name, errors.New(msg))
	}
	return tool.TextResult(result.Text()), nil
}

// Tools implements tool.Lister.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	defs, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names, nil
}

// ImportTools registers every remote tool in the registry as a proxy.
// Names already registered are skipped.
func ImportTools(ctx context.Context, client *Client, registry tool.Registry) (int, error) {
	defs, err := client.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, def := range defs {
		if err := registry.Register(NewProxyTool(def, client)); err != nil {
			continue
		}
		imported++
	}
	return imported, nil
}

var (
	_ tool.Invoker = (*Client)(nil)
	_ tool.Lister  = (*Client)(nil)
)
