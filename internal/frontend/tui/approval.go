package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/codefionn/seeky/internal/frontend/execmode"
	"github.com/codefionn/seeky/internal/protocol"
)

var (
	approvalBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("170")).
				Padding(0, 1)

	approvalTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("170"))

	choiceItemStyle         = lipgloss.NewStyle().PaddingLeft(2)
	choiceSelectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
)

type choiceItem struct {
	label    string
	key      string
	decision protocol.ReviewDecision
}

func (i choiceItem) FilterValue() string { return i.label }

type choiceDelegate struct{}

func (choiceDelegate) Height() int                             { return 1 }
func (choiceDelegate) Spacing() int                            { return 0 }
func (choiceDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (choiceDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(choiceItem)
	if !ok {
		return
	}
	label := fmt.Sprintf("[%s] %s", item.key, item.label)
	if index == m.Index() {
		fmt.Fprint(w, choiceSelectedItemStyle.Render("▸ "+label))
		return
	}
	fmt.Fprint(w, choiceItemStyle.Render(label))
}

// approvalDialog asks about one pending request.
type approvalDialog struct {
	event protocol.Event
	list  list.Model
}

// decidedMsg carries the answer for one request id.
type decidedMsg struct {
	id       string
	decision protocol.ReviewDecision
}

func newApprovalDialog(ev protocol.Event, width int) approvalDialog {
	items := []list.Item{
		choiceItem{label: "Approve", key: "y", decision: protocol.DecisionApproved},
		choiceItem{label: "Approve for this session", key: "a", decision: protocol.DecisionApprovedForSession},
		choiceItem{label: "Deny", key: "n", decision: protocol.DecisionDenied},
	}
	l := list.New(items, choiceDelegate{}, max(width-4, 20), len(items))
	l.SetShowTitle(false)
	l.DisableQuitKeybindings()
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(false)
	l.Select(2)
	return approvalDialog{event: ev, list: l}
}

func (d approvalDialog) decide(decision protocol.ReviewDecision) tea.Cmd {
	id := d.event.ID
	return func() tea.Msg { return decidedMsg{id: id, decision: decision} }
}

func (d approvalDialog) Update(msg tea.Msg) (approvalDialog, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y":
			return d, d.decide(protocol.DecisionApproved)
		case "a":
			return d, d.decide(protocol.DecisionApprovedForSession)
		case "n", "esc":
			return d, d.decide(protocol.DecisionDenied)
		case "enter":
			if item, ok := d.list.SelectedItem().(choiceItem); ok {
				return d, d.decide(item.decision)
			}
		}
	}
	var cmd tea.Cmd
	d.list, cmd = d.list.Update(msg)
	return d, cmd
}

func (d approvalDialog) View() string {
	var sb strings.Builder
	sb.WriteString(approvalTitleStyle.Render("Approval required"))
	sb.WriteString("\n")
	sb.WriteString(execmode.Describe(d.event.Msg))
	sb.WriteString("\n\n")
	sb.WriteString(d.list.View())
	return approvalBoxStyle.Render(sb.String())
}
