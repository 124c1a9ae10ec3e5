package patch

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

func splitLines(s string) ([]string, bool) {
	if s == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(s, "\n")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n"), trailing
}

func joinLines(lines []string, trailing bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, "\n")
	if trailing {
		s += "\n"
	}
	return s
}

func bodyLines(body []byte) []string {
	if len(body) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
}

func addedContent(fd *diff.FileDiff) string {
	var lines []string
	trailing := true
	for _, h := range fd.Hunks {
		for _, l := range bodyLines(h.Body) {
			switch {
			case strings.HasPrefix(l, "+"):
				lines = append(lines, l[1:])
			case strings.HasPrefix(l, `\`):
				trailing = false
			}
		}
	}
	return joinLines(lines, trailing)
}

// applyHunks requires every context and removed line to match exactly.
func applyHunks(original string, hunks []*diff.Hunk) (string, error) {
	lines, trailing := splitLines(original)
	out := make([]string, 0, len(lines))
	pos := 0

	for i, h := range hunks {
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			start = int(h.OrigStartLine)
		}
		if start < pos || start > len(lines) {
			return "", fmt.Errorf("hunk %d starts at line %d, outside the file", i+1, h.OrigStartLine)
		}
		out = append(out, lines[pos:start]...)
		pos = start

		last := byte(0)
		for _, l := range bodyLines(h.Body) {
			op, text := byte(' '), ""
			if l != "" {
				op, text = l[0], l[1:]
			}
			switch op {
			case ' ', '-':
				if pos >= len(lines) || lines[pos] != text {
					return "", fmt.Errorf("hunk %d does not apply at line %d", i+1, pos+1)
				}
				if op == ' ' {
					out = append(out, text)
				}
				pos++
			case '+':
				out = append(out, text)
			case '\\':
				trailing = last == '-'
				continue
			default:
				return "", fmt.Errorf("hunk %d: unexpected line %q", i+1, l)
			}
			last = op
		}
	}
	out = append(out, lines[pos:]...)
	return joinLines(out, trailing), nil
}
