// Package patch parses unified diffs proposed by the model and applies them
// to the working tree.
package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/sandbox"
)

const devNull = "/dev/null"

// FilePatch is the change to one file.
type FilePatch struct {
	Path   string // absolute
	MoveTo string // absolute, update only
	Kind   protocol.FileChangeKind

	fd *diff.FileDiff
}

// Patch is a parsed multi-file unified diff with paths resolved against a
// working directory.
type Patch struct {
	Files []FilePatch
}

// Parse reads a unified diff. Relative paths are resolved against cwd.
func Parse(text, cwd string) (*Patch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty patch")
	}
	fds, err := diff.ParseMultiFileDiff([]byte(normalizeHeaders(text)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse unified diff: %w", err)
	}
	if len(fds) == 0 {
		return nil, errors.New("patch contains no file changes")
	}

	p := &Patch{}
	seen := map[string]bool{}
	for _, fd := range fds {
		orig := stripPrefix(fd.OrigName, "a/")
		next := stripPrefix(fd.NewName, "b/")
		fp := FilePatch{fd: fd}
		switch {
		case orig == devNull && next == devNull:
			return nil, errors.New("patch entry has no file name")
		case orig == devNull:
			fp.Kind = protocol.ChangeAdd
			fp.Path = resolve(next, cwd)
		case next == devNull:
			fp.Kind = protocol.ChangeDelete
			fp.Path = resolve(orig, cwd)
		default:
			fp.Kind = protocol.ChangeUpdate
			fp.Path = resolve(orig, cwd)
			if next != orig {
				fp.MoveTo = resolve(next, cwd)
			}
		}
		if fp.Path == "" {
			return nil, errors.New("patch entry has no file name")
		}
		if seen[fp.Path] {
			return nil, fmt.Errorf("patch touches %s more than once", fp.Path)
		}
		seen[fp.Path] = true
		p.Files = append(p.Files, fp)
	}
	return p, nil
}

func stripPrefix(name, prefix string) string {
	name = strings.TrimSpace(name)
	if name == devNull {
		return name
	}
	return strings.TrimPrefix(name, prefix)
}

func resolve(name, cwd string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(cwd, name)
}

// Changes summarizes the patch for approval and begin events.
func (p *Patch) Changes() map[string]protocol.FileChange {
	out := make(map[string]protocol.FileChange, len(p.Files))
	for _, f := range p.Files {
		fc := protocol.FileChange{Kind: f.Kind, MovePath: f.MoveTo}
		switch f.Kind {
		case protocol.ChangeAdd:
			fc.Content = addedContent(f.fd)
		case protocol.ChangeUpdate:
			if data, err := diff.PrintFileDiff(f.fd); err == nil {
				fc.UnifiedDiff = string(data)
			}
		}
		out[f.Path] = fc
	}
	return out
}

// Paths lists every path the patch writes, including move targets.
func (p *Patch) Paths() []string {
	var paths []string
	for _, f := range p.Files {
		paths = append(paths, f.Path)
		if f.MoveTo != "" {
			paths = append(paths, f.MoveTo)
		}
	}
	sort.Strings(paths)
	return paths
}

// GrantRoot is the deepest directory containing every written path.
func (p *Patch) GrantRoot() string {
	paths := p.Paths()
	if len(paths) == 0 {
		return ""
	}
	root := filepath.Dir(paths[0])
	for _, path := range paths[1:] {
		for !isWithin(root, path) {
			parent := filepath.Dir(root)
			if parent == root {
				return root
			}
			root = parent
		}
	}
	return root
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// CanAutoApprove reports whether policy already permits writing every path
// the patch touches. Read-only policies never auto-approve.
func CanAutoApprove(p *Patch, policy sandbox.Policy) bool {
	if policy.Kind == sandbox.KindReadOnly {
		return false
	}
	for _, path := range p.Paths() {
		if !policy.CanWrite(path) {
			return false
		}
	}
	return true
}

// Result is the human readable outcome of Apply.
type Result struct {
	Stdout string
	Stderr string
}

// Apply checks every hunk against the current files and only then writes.
// Either all files change or none do.
func Apply(p *Patch) (Result, error) {
	type write struct {
		path    string
		content string
		remove  string
	}
	var plan []write
	var summary strings.Builder
	summary.WriteString("Success. Updated the following files:\n")

	for _, f := range p.Files {
		switch f.Kind {
		case protocol.ChangeAdd:
			if _, err := os.Stat(f.Path); err == nil {
				return failed(fmt.Errorf("%s already exists", f.Path))
			}
			plan = append(plan, write{path: f.Path, content: addedContent(f.fd)})
			fmt.Fprintf(&summary, "A %s\n", f.Path)
		case protocol.ChangeDelete:
			if _, err := os.Stat(f.Path); err != nil {
				return failed(fmt.Errorf("cannot delete %s: %w", f.Path, err))
			}
			plan = append(plan, write{remove: f.Path})
			fmt.Fprintf(&summary, "D %s\n", f.Path)
		case protocol.ChangeUpdate:
			data, err := os.ReadFile(f.Path)
			if err != nil {
				return failed(fmt.Errorf("cannot update %s: %w", f.Path, err))
			}
			updated, err := applyHunks(string(data), f.fd.Hunks)
			if err != nil {
				return failed(fmt.Errorf("%s: %w", f.Path, err))
			}
			if f.MoveTo != "" {
				plan = append(plan, write{path: f.MoveTo, content: updated, remove: f.Path})
				fmt.Fprintf(&summary, "M %s -> %s\n", f.Path, f.MoveTo)
			} else {
				plan = append(plan, write{path: f.Path, content: updated})
				fmt.Fprintf(&summary, "M %s\n", f.Path)
			}
		}
	}

	for _, w := range plan {
		if w.path != "" {
			if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
				return failed(err)
			}
			if err := os.WriteFile(w.path, []byte(w.content), fileMode(w.path)); err != nil {
				return failed(err)
			}
		}
		if w.remove != "" {
			if err := os.Remove(w.remove); err != nil {
				return failed(err)
			}
		}
	}
	return Result{Stdout: summary.String()}, nil
}

func failed(err error) (Result, error) {
	return Result{Stderr: err.Error() + "\n"}, err
}

func fileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
