package approval

import (
	"github.com/cespare/xxhash/v2"
)

// Key identifies an action class for the session allow-list. Two actions
// share a key only when they are the same kind and:
//   - exec: identical argv in the identical working directory
//   - apply_patch: the same grant root
//   - tool_call: the same server and tool
type Key struct {
	kind Kind
	sum  uint64
}

func digest(kind Kind, parts ...string) Key {
	d := xxhash.New()
	_, _ = d.WriteString(kind.String())
	for _, p := range parts {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(p)
	}
	return Key{kind: kind, sum: d.Sum64()}
}

func ExecKey(argv []string, cwd string) Key {
	parts := make([]string, 0, len(argv)+1)
	parts = append(parts, cwd)
	parts = append(parts, argv...)
	return digest(KindExec, parts...)
}

func PatchKey(grantRoot string) Key {
	return digest(KindApplyPatch, grantRoot)
}

func ToolKey(server, tool string) Key {
	return digest(KindToolCall, server, tool)
}
