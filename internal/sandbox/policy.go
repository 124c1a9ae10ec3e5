// Package sandbox selects the confinement a command runs under and
// dispatches it to the one enforcement back end the host supports.
package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode is the value of the --sandbox flag.
type Mode string

const (
	ModeReadOnly         Mode = "read-only"
	ModeWorkspaceWrite   Mode = "workspace-write"
	ModeDangerFullAccess Mode = "danger-full-access"
)

// ParseMode validates a --sandbox value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeReadOnly, ModeWorkspaceWrite, ModeDangerFullAccess:
		return m, nil
	}
	return "", fmt.Errorf("invalid sandbox mode %q (want %s, %s or %s)", s, ModeReadOnly, ModeWorkspaceWrite, ModeDangerFullAccess)
}

// Kind is the confinement variant.
type Kind int

const (
	KindReadOnly Kind = iota
	KindWorkspaceWrite
	KindFullAuto
	KindNone
)

var kindNames = map[Kind]string{
	KindReadOnly:       "read-only",
	KindWorkspaceWrite: "workspace-write",
	KindFullAuto:       "full-auto",
	KindNone:           "none",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown sandbox kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown sandbox kind %q", string(b))
}

// Policy is an immutable confinement descriptor.
type Policy struct {
	Kind           Kind     `json:"kind"`
	GrantRoot      string   `json:"grant_root,omitempty"`
	NetworkAccess  bool     `json:"network_access"`
	ReadOnlyPaths  []string `json:"read_only_paths,omitempty"`
	ReadWritePaths []string `json:"read_write_paths,omitempty"`
}

// Select resolves the --full-auto and --sandbox flags into one policy.
// full-auto wins over any explicit mode and no flag at all means read-only.
func Select(fullAuto bool, explicit *Mode) Policy {
	if fullAuto {
		return Policy{Kind: KindFullAuto}
	}
	if explicit != nil {
		switch *explicit {
		case ModeWorkspaceWrite:
			return Policy{Kind: KindWorkspaceWrite, NetworkAccess: true}
		case ModeDangerFullAccess:
			return Policy{Kind: KindNone, NetworkAccess: true}
		}
	}
	return Policy{Kind: KindReadOnly}
}

// WithGrantRoot returns a copy whose writable workspace is root.
func (p Policy) WithGrantRoot(root string) Policy {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	p.GrantRoot = filepath.Clean(root)
	return p
}

// WithExtraPaths returns a copy with additional readable and writable paths.
// Writable extras only apply to kinds that allow writes at all.
func (p Policy) WithExtraPaths(ro, rw []string) Policy {
	p.ReadOnlyPaths = append(append([]string(nil), p.ReadOnlyPaths...), ro...)
	p.ReadWritePaths = append(append([]string(nil), p.ReadWritePaths...), rw...)
	return p
}

// Confined reports whether an enforcement back end must be involved.
func (p Policy) Confined() bool { return p.Kind != KindNone }

// AsksForApproval is false only in full-auto, which never prompts.
func (p Policy) AsksForApproval() bool { return p.Kind != KindFullAuto }

// AllowsWrites reports whether any path outside temp space may be written.
func (p Policy) AllowsWrites() bool {
	return p.Kind == KindWorkspaceWrite || p.Kind == KindFullAuto || p.Kind == KindNone
}

// WritableRoots lists the directories a confined command may write.
func (p Policy) WritableRoots() []string {
	if p.Kind != KindWorkspaceWrite && p.Kind != KindFullAuto {
		return nil
	}
	var roots []string
	seen := map[string]bool{}
	add := func(dir string) {
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			roots = append(roots, dir)
		}
	}
	add(p.GrantRoot)
	add(os.TempDir())
	add("/tmp")
	for _, rw := range p.ReadWritePaths {
		add(rw)
	}
	return roots
}

// CanWrite reports whether path lies under a writable root. Unconfined
// policies can write anywhere; read-only policies nowhere.
func (p Policy) CanWrite(path string) bool {
	switch p.Kind {
	case KindNone:
		return true
	case KindReadOnly:
		return false
	}
	path = filepath.Clean(path)
	for _, root := range p.WritableRoots() {
		if within(root, path) {
			return true
		}
	}
	return false
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (p Policy) String() string {
	s := p.Kind.String()
	if p.GrantRoot != "" && (p.Kind == KindWorkspaceWrite || p.Kind == KindFullAuto) {
		s += " (" + p.GrantRoot + ")"
	}
	if !p.NetworkAccess {
		s += ", network denied"
	}
	return s
}

// Encode serializes p for the helper process that applies it.
func (p Policy) Encode() (string, error) {
	data, err := json.Marshal(p)
	return string(data), err
}

// DecodePolicy is the inverse of Encode.
func DecodePolicy(s string) (Policy, error) {
	var p Policy
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Policy{}, fmt.Errorf("decode sandbox policy: %w", err)
	}
	return p, nil
}
