package execmode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/codefionn/seeky/internal/protocol"
)

// Approver answers approval requests for a front end without a UI.
type Approver interface {
	Review(ev protocol.Event) protocol.ReviewDecision
}

// DenyAll refuses every request.
type DenyAll struct{}

func (DenyAll) Review(protocol.Event) protocol.ReviewDecision { return protocol.DecisionDenied }

// Prompter asks on a terminal: y approves once, a approves for the
// session, anything else denies.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// ForTerminal returns a Prompter on stdin/stderr when stdin is a terminal
// and DenyAll otherwise.
func ForTerminal() Approver {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return NewPrompter(os.Stdin, os.Stderr)
	}
	return DenyAll{}
}

func (p *Prompter) Review(ev protocol.Event) protocol.ReviewDecision {
	fmt.Fprintln(p.out, Describe(ev.Msg))
	fmt.Fprint(p.out, "Allow? [y]es / [a]lways this session / [n]o: ")
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return protocol.DecisionDenied
	}
	return ParseAnswer(line)
}

// ParseAnswer maps a typed answer to a decision. Unknown answers deny.
func ParseAnswer(s string) protocol.ReviewDecision {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return protocol.DecisionApproved
	case "a", "always":
		return protocol.DecisionApprovedForSession
	default:
		return protocol.DecisionDenied
	}
}

// Describe renders an approval request as a short human readable block.
func Describe(msg protocol.EventMsg) string {
	var b strings.Builder
	switch m := msg.(type) {
	case protocol.ExecApprovalRequest:
		fmt.Fprintf(&b, "Run command in %s:\n  %s", m.Cwd, strings.Join(m.Command, " "))
		if m.Reason != "" {
			fmt.Fprintf(&b, "\n  (%s)", m.Reason)
		}
	case protocol.ApplyPatchApprovalRequest:
		b.WriteString("Apply patch:")
		paths := make([]string, 0, len(m.Changes))
		for path := range m.Changes {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Fprintf(&b, "\n  %s %s", m.Changes[path].Kind, path)
		}
		if m.Reason != "" {
			fmt.Fprintf(&b, "\n  (%s)", m.Reason)
		}
	case protocol.McpToolCallApprovalRequest:
		fmt.Fprintf(&b, "Call tool %s on %s", m.Tool, m.Server)
		if len(m.Arguments) > 0 {
			fmt.Fprintf(&b, " with %s", m.Arguments)
		}
		if m.Reason != "" {
			fmt.Fprintf(&b, "\n  (%s)", m.Reason)
		}
	default:
		b.WriteString(msg.EventType())
	}
	return b.String()
}

// IsApprovalRequest reports whether msg needs a decision.
func IsApprovalRequest(msg protocol.EventMsg) bool {
	switch msg.(type) {
	case protocol.ExecApprovalRequest, protocol.ApplyPatchApprovalRequest, protocol.McpToolCallApprovalRequest:
		return true
	}
	return false
}
