package patch

import (
	"regexp"
	"strconv"
	"strings"
)

var hunkHeader = regexp.MustCompile(`^@@ -\d+(?:,(\d+))? \+\d+(?:,(\d+))? @@`)

// normalizeHeaders inserts a "diff --git" line before every ---/+++ file
// header that lacks one, so bare multi-file diffs split cleanly. Hunk line
// counts are tracked so body lines starting with "---" are left alone.
func normalizeHeaders(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+4)
	haveDiffLine := false
	origLeft, newLeft := 0, 0

	for i, line := range lines {
		if origLeft > 0 || newLeft > 0 {
			switch {
			case strings.HasPrefix(line, "-"):
				origLeft--
			case strings.HasPrefix(line, "+"):
				newLeft--
			case strings.HasPrefix(line, `\`):
			default:
				origLeft--
				newLeft--
			}
			out = append(out, line)
			continue
		}
		switch {
		case strings.HasPrefix(line, "diff "):
			haveDiffLine = true
		case strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			if !haveDiffLine {
				out = append(out, "diff --git "+headerName(line)+" "+headerName(lines[i+1]))
			}
			haveDiffLine = false
		case strings.HasPrefix(line, "@@ "):
			if m := hunkHeader.FindStringSubmatch(line); m != nil {
				origLeft, newLeft = hunkCount(m[1]), hunkCount(m[2])
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func headerName(line string) string {
	name := strings.TrimSpace(line[4:])
	if tab := strings.IndexByte(name, '\t'); tab >= 0 {
		name = name[:tab]
	}
	return name
}

func hunkCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
