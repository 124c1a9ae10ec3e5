// Package mcp connects to external MCP tool servers and exposes the agent
// itself as an MCP tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codefionn/seeky/internal/config"
	"github.com/codefionn/seeky/internal/logger"
)

// Separator joins server and tool into the name offered to the model.
const Separator = "__"

// ToolInfo describes one tool discovered on a connected server.
type ToolInfo struct {
	Server      string
	Name        string
	Description string
	InputSchema json.RawMessage
}

// QualifiedName is the name the model uses to call the tool.
func (t ToolInfo) QualifiedName() string { return QualifiedName(t.Server, t.Name) }

func QualifiedName(server, tool string) string { return server + Separator + tool }

// SplitQualifiedName reverses QualifiedName. Server names never contain
// the separator, tool names may.
func SplitQualifiedName(name string) (server, tool string, ok bool) {
	server, tool, ok = strings.Cut(name, Separator)
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// CallResult is the flattened outcome of a tool call.
type CallResult struct {
	Text    string
	IsError bool
}

// Manager owns one client session per configured server.
type Manager struct {
	version string
	log     *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*mcp.ClientSession
	tools    map[string][]ToolInfo
}

func NewManager(version string) *Manager {
	return &Manager{
		version:  version,
		log:      logger.Global().WithPrefix("mcp"),
		sessions: make(map[string]*mcp.ClientSession),
		tools:    make(map[string][]ToolInfo),
	}
}

// ConnectConfigured starts every enabled server in cfg. Servers that fail
// are skipped and reported.
func (m *Manager) ConnectConfigured(ctx context.Context, cfg *config.Config) []error {
	if cfg == nil {
		return nil
	}
	var errs []error
	for _, name := range cfg.EnabledServers() {
		server := cfg.MCP.Servers[name]
		if len(server.Command) == 0 {
			errs = append(errs, fmt.Errorf("%s: command configuration requires at least one argument", name))
			continue
		}
		cmd := exec.Command(server.Command[0], server.Command[1:]...)
		cmd.Dir = cfg.WorkingDir
		cmd.Env = os.Environ()
		for k, v := range server.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		if err := m.Connect(ctx, name, &mcp.CommandTransport{Command: cmd}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

// Connect opens a session over transport and lists its tools.
func (m *Manager) Connect(ctx context.Context, name string, transport mcp.Transport) error {
	name = sanitizeName(name)
	client := mcp.NewClient(&mcp.Implementation{Name: "seeky", Version: m.version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	var discovered []ToolInfo
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("failed to list tools: %w", err)
		}
		for _, t := range res.Tools {
			info := ToolInfo{Server: name, Name: t.Name, Description: t.Description}
			if t.InputSchema != nil {
				if raw, err := json.Marshal(t.InputSchema); err == nil {
					info.InputSchema = raw
				}
			}
			discovered = append(discovered, info)
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}

	m.mu.Lock()
	if old, ok := m.sessions[name]; ok {
		_ = old.Close()
	}
	m.sessions[name] = session
	m.tools[name] = discovered
	m.mu.Unlock()

	m.log.Info("connected to %s with %d tools", name, len(discovered))
	return nil
}

// Tools lists every discovered tool ordered by qualified name.
func (m *Manager) Tools() []ToolInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ToolInfo
	for _, ts := range m.tools {
		out = append(out, ts...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

// Call invokes tool on server. Tool-level failures come back as a
// CallResult with IsError set; transport failures as an error.
func (m *Manager) Call(ctx context.Context, server, tool string, args json.RawMessage) (CallResult, error) {
	m.mu.RLock()
	session, ok := m.sessions[server]
	m.mu.RUnlock()
	if !ok {
		return CallResult{}, fmt.Errorf("unknown MCP server %q", server)
	}

	var arguments any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return CallResult{}, fmt.Errorf("tool arguments are not JSON: %w", err)
		}
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: arguments})
	if err != nil {
		return CallResult{}, fmt.Errorf("call %s: %w", QualifiedName(server, tool), err)
	}
	return CallResult{Text: flattenContent(res.Content), IsError: res.IsError}, nil
}

// Close ends every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, s := range m.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", name, err)
		}
		delete(m.sessions, name)
		delete(m.tools, name)
	}
	return firstErr
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if raw, err := json.Marshal(v); err == nil {
				parts = append(parts, string(raw))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName keeps server names usable as tool-name prefixes. Runs of
// other characters become one '-' so the separator stays unambiguous.
func sanitizeName(name string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}
	result := strings.Trim(b.String(), "-")
	if result == "" {
		return "mcp"
	}
	return result
}
