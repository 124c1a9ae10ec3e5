package execmode

import (
	"fmt"
	"io"
	"strings"

	"github.com/codefionn/seeky/internal/protocol"
)

const outputPreviewLines = 20

type renderer struct {
	out io.Writer
	err io.Writer
}

func (r renderer) render(ev protocol.Event) {
	switch m := ev.Msg.(type) {
	case protocol.SessionConfigured:
		fmt.Fprintf(r.err, "session %s  model %s  sandbox %s\n  cwd %s\n", m.SessionID, m.Model, m.SandboxPolicy, m.Cwd)
	case protocol.AgentMessage:
		fmt.Fprintln(r.out, m.Message)
	case protocol.AgentReasoning:
		fmt.Fprintf(r.err, "thinking: %s\n", m.Text)
	case protocol.ExecCommandBegin:
		fmt.Fprintf(r.err, "$ %s\n", strings.Join(m.Command, " "))
	case protocol.ExecCommandEnd:
		fmt.Fprint(r.err, preview(m.Stdout))
		fmt.Fprint(r.err, preview(m.Stderr))
		fmt.Fprintf(r.err, "exit code %d\n", m.ExitCode)
	case protocol.PatchApplyBegin:
		mode := "approved"
		if m.AutoApproved {
			mode = "auto-approved"
		}
		fmt.Fprintf(r.err, "applying patch (%s) to %d file(s)\n", mode, len(m.Changes))
	case protocol.PatchApplyEnd:
		if m.Success {
			fmt.Fprint(r.err, preview(m.Stdout))
		} else {
			fmt.Fprintf(r.err, "patch failed: %s", preview(m.Stderr))
		}
	case protocol.McpToolCallBegin:
		fmt.Fprintf(r.err, "tool %s/%s\n", m.Server, m.Tool)
	case protocol.McpToolCallEnd:
		status := "ok"
		if !m.Success {
			status = "failed"
		}
		fmt.Fprintf(r.err, "tool %s: %s", status, preview(m.Result))
	case protocol.Error:
		fmt.Fprintf(r.err, "error: %s\n", m.Message)
	case protocol.TurnAborted:
		fmt.Fprintf(r.err, "aborted: %s\n", m.Reason)
	case protocol.BackgroundEvent:
		fmt.Fprintf(r.err, "%s\n", m.Message)
	case protocol.TaskComplete:
		if len(m.Denied) > 0 {
			fmt.Fprintf(r.err, "denied: %s\n", strings.Join(m.Denied, ", "))
		}
	case protocol.UnknownEvent:
		fmt.Fprintf(r.err, "(%s)\n", m.Type)
	}
}

// preview keeps the first lines of s and always ends with a newline
// unless s is empty.
func preview(s string) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > outputPreviewLines {
		more := len(lines) - outputPreviewLines
		lines = append(lines[:outputPreviewLines], fmt.Sprintf("... %d more lines", more))
	}
	return strings.Join(lines, "\n") + "\n"
}
