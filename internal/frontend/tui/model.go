// Package tui is the interactive front end: a scrolling transcript, a
// prompt line and an approval dialog over one session.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/protocol"
)

var (
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type entryKind int

const (
	entryUser entryKind = iota
	entryAgent
	entryReasoning
	entryTool
	entryNotice
	entryError
)

type entry struct {
	kind entryKind
	text string
}

// eventMsg delivers one session event; closedMsg follows the last one.
type eventMsg struct{ ev protocol.Event }
type closedMsg struct{}

type rendererReadyMsg struct {
	renderer *glamour.TermRenderer
	width    int
}

// Options tune the model; tests turn markdown rendering off.
type Options struct {
	Markdown bool
}

// Model is the bubbletea model for one session.
type Model struct {
	bus    *protocol.Bus
	events *protocol.Queue[protocol.Event]
	opts   Options
	log    *logger.Logger

	vp       viewport.Model
	input    textinput.Model
	renderer *glamour.TermRenderer

	header   string
	entries  []entry
	pending  []protocol.Event
	dialog   *approvalDialog
	running  map[string]bool
	width    int
	height   int
	ready    bool
	quitting bool
}

// New builds a model reading events from a subscription taken on bus.
func New(bus *protocol.Bus, events *protocol.Queue[protocol.Event], opts Options) *Model {
	in := textinput.New()
	in.Placeholder = "Ask for a change, Enter to send"
	in.Prompt = "› "
	in.Focus()
	return &Model{
		bus:     bus,
		events:  events,
		opts:    opts,
		log:     logger.Global().WithPrefix("tui"),
		vp:      viewport.New(80, 20),
		input:   in,
		running: make(map[string]bool),
		width:   80,
		height:  24,
	}
}

// Run drives h to completion in the terminal.
func Run(ctx context.Context, h *agent.Handle) error {
	m := New(h.Bus, h.Bus.Subscribe(), Options{Markdown: true})
	h.Start(ctx)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil {
		_, _ = h.Bus.Submit(protocol.Shutdown{})
	}
	if werr := h.Wait(); err == nil {
		err = werr
	}
	return err
}

func waitForEvent(q *protocol.Queue[protocol.Event]) tea.Cmd {
	return func() tea.Msg {
		ev, err := q.Pop(context.Background())
		if err != nil {
			return closedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func createRenderer(width int) tea.Cmd {
	return func() tea.Msg {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
			glamour.WithPreservedNewLines(),
		)
		if err != nil {
			return nil
		}
		return rendererReadyMsg{renderer: r, width: width}
	}
}

func (m *Model) Init() tea.Cmd {
	initialWindowSize := func() tea.Msg {
		fd := int(os.Stdout.Fd())
		if !term.IsTerminal(fd) {
			return nil
		}
		if width, height, err := term.GetSize(fd); err == nil && width > 0 && height > 0 {
			return tea.WindowSizeMsg{Width: width, Height: height}
		}
		return nil
	}
	return tea.Batch(textinput.Blink, initialWindowSize, waitForEvent(m.events))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.input.Width = max(msg.Width-4, 10)
		m.layout()
		if m.opts.Markdown {
			return m, createRenderer(max(msg.Width-4, 20))
		}
		return m, nil

	case rendererReadyMsg:
		if msg.width == max(m.width-4, 20) {
			m.renderer = msg.renderer
			m.refresh()
		}
		return m, nil

	case eventMsg:
		m.apply(msg.ev)
		m.refresh()
		return m, waitForEvent(m.events)

	case closedMsg:
		m.quitting = true
		return m, tea.Quit

	case decidedMsg:
		return m, m.resolve(msg)

	case tea.KeyMsg:
		if m.dialog != nil {
			if msg.String() == "ctrl+c" {
				return m, m.interrupt()
			}
			d, cmd := m.dialog.Update(msg)
			m.dialog = &d
			return m, cmd
		}
		switch msg.String() {
		case "ctrl+c":
			if len(m.running) > 0 {
				return m, m.interrupt()
			}
			return m, m.shutdown()
		case "ctrl+d":
			return m, m.shutdown()
		case "esc":
			if len(m.running) > 0 {
				return m, m.interrupt()
			}
			return m, nil
		case "enter":
			return m, m.send()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) send() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()
	switch text {
	case "/quit", "/exit":
		return m.shutdown()
	case "/interrupt":
		return m.interrupt()
	}
	id, err := m.bus.Submit(protocol.UserInput{Items: []protocol.InputItem{protocol.TextItem{Text: text}}})
	if err != nil {
		m.add(entryError, fmt.Sprintf("session closed: %v", err))
		m.refresh()
		return nil
	}
	m.running[id] = true
	m.add(entryUser, text)
	m.refresh()
	return nil
}

func (m *Model) interrupt() tea.Cmd {
	return func() tea.Msg {
		_, _ = m.bus.Submit(protocol.Interrupt{})
		return nil
	}
}

func (m *Model) shutdown() tea.Cmd {
	m.quitting = true
	return func() tea.Msg {
		_, _ = m.bus.Submit(protocol.Shutdown{})
		return nil
	}
}

func (m *Model) resolve(d decidedMsg) tea.Cmd {
	if _, err := m.bus.Submit(protocol.ApprovalDecision{ID: d.id, Decision: d.decision}); err != nil {
		m.log.Warn("submit decision for %s: %v", d.id, err)
	}
	m.add(entryNotice, fmt.Sprintf("request %s: %s", d.id, d.decision))
	m.dialog = nil
	m.nextDialog()
	m.layout()
	m.refresh()
	return nil
}

func (m *Model) nextDialog() {
	if m.dialog != nil || len(m.pending) == 0 {
		return
	}
	d := newApprovalDialog(m.pending[0], m.width)
	m.pending = m.pending[1:]
	m.dialog = &d
}

// apply folds one event into the transcript.
func (m *Model) apply(ev protocol.Event) {
	switch msg := ev.Msg.(type) {
	case protocol.SessionConfigured:
		m.header = fmt.Sprintf("seeky  %s  sandbox %s  %s", msg.Model, msg.SandboxPolicy, msg.Cwd)
	case protocol.TaskStarted:
		m.running[ev.ID] = true
	case protocol.TaskComplete:
		delete(m.running, ev.ID)
		if len(msg.Denied) > 0 {
			m.add(entryNotice, "denied: "+strings.Join(msg.Denied, ", "))
		}
	case protocol.AgentMessage:
		m.add(entryAgent, msg.Message)
	case protocol.AgentReasoning:
		m.add(entryReasoning, msg.Text)
	case protocol.ExecApprovalRequest, protocol.ApplyPatchApprovalRequest, protocol.McpToolCallApprovalRequest:
		m.pending = append(m.pending, ev)
		m.nextDialog()
		m.layout()
	case protocol.ExecCommandBegin:
		m.add(entryTool, "$ "+strings.Join(msg.Command, " "))
	case protocol.ExecCommandEnd:
		out := strings.TrimRight(msg.Stdout+msg.Stderr, "\n")
		if out != "" {
			m.add(entryTool, out)
		}
		m.add(entryNotice, fmt.Sprintf("exit code %d", msg.ExitCode))
	case protocol.PatchApplyBegin:
		m.add(entryTool, fmt.Sprintf("applying patch to %d file(s)", len(msg.Changes)))
	case protocol.PatchApplyEnd:
		if msg.Success {
			m.add(entryTool, strings.TrimRight(msg.Stdout, "\n"))
		} else {
			m.add(entryError, "patch failed: "+strings.TrimRight(msg.Stderr, "\n"))
		}
	case protocol.McpToolCallBegin:
		m.add(entryTool, fmt.Sprintf("tool %s/%s", msg.Server, msg.Tool))
	case protocol.McpToolCallEnd:
		if msg.Success {
			m.add(entryTool, msg.Result)
		} else {
			m.add(entryError, "tool failed: "+msg.Result)
		}
	case protocol.Error:
		m.add(entryError, msg.Message)
	case protocol.TurnAborted:
		m.add(entryNotice, "aborted: "+msg.Reason)
	case protocol.BackgroundEvent:
		m.add(entryNotice, msg.Message)
	case protocol.ShutdownComplete:
		m.add(entryNotice, "session closed")
	default:
		m.add(entryNotice, "("+ev.Msg.EventType()+")")
	}
}

func (m *Model) add(kind entryKind, text string) {
	m.entries = append(m.entries, entry{kind: kind, text: text})
}

func (m *Model) layout() {
	footer := 3
	if m.dialog != nil {
		footer = lipgloss.Height(m.dialog.View()) + 1
	}
	m.vp.Width = m.width
	m.vp.Height = max(m.height-footer-1, 3)
}

func (m *Model) refresh() {
	m.vp.SetContent(m.transcript())
	m.vp.GotoBottom()
}

func (m *Model) transcript() string {
	var sb strings.Builder
	for _, e := range m.entries {
		switch e.kind {
		case entryUser:
			sb.WriteString(userStyle.Render("You") + "\n" + m.wrap(e.text) + "\n\n")
		case entryAgent:
			sb.WriteString(assistantStyle.Render("Assistant") + "\n" + m.markdown(e.text) + "\n\n")
		case entryReasoning:
			sb.WriteString(dimStyle.Render(m.wrap(e.text)) + "\n")
		case entryTool:
			sb.WriteString(toolStyle.Render(e.text) + "\n")
		case entryError:
			sb.WriteString(errorStyle.Render(m.wrap("error: "+e.text)) + "\n")
		default:
			sb.WriteString(dimStyle.Render(e.text) + "\n")
		}
	}
	return sb.String()
}

// wrap breaks plain entries at word boundaries; command output is left
// as is.
func (m *Model) wrap(text string) string {
	if m.width <= 0 {
		return text
	}
	return wordwrap.String(text, max(m.width-4, 20))
}

func (m *Model) markdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m *Model) View() string {
	if m.quitting && m.dialog == nil && len(m.running) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(m.header))
	sb.WriteString("\n")
	sb.WriteString(m.vp.View())
	sb.WriteString("\n")
	if m.dialog != nil {
		sb.WriteString(m.dialog.View())
		return sb.String()
	}
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	status := "ready"
	if n := len(m.running); n > 0 {
		status = fmt.Sprintf("working on %d task(s), Esc to interrupt", n)
	}
	sb.WriteString(headerStyle.Render(status + "  ·  ctrl+d to quit"))
	return sb.String()
}
