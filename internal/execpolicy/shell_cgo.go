//go:build cgo

package execpolicy

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_bash "github.com/tree-sitter/tree-sitter-bash/bindings/go"
)

var bashLanguage = tree_sitter.NewLanguage(tree_sitter_bash.Language())

// Separators allowed between commands. Anything else, including "&", makes
// the script opaque.
var listOperators = map[string]struct{}{"&&": {}, "||": {}, ";": {}, "|": {}, "\n": {}}

// splitShellScript parses script with tree-sitter-bash and returns its
// simple commands. It reports false for redirections, expansions,
// substitutions, assignments, subshells and control flow.
func splitShellScript(script string) ([][]string, bool) {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(bashLanguage); err != nil {
		return nil, false
	}

	src := []byte(script)
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() || root.Kind() != "program" {
		return nil, false
	}
	var out [][]string
	if !collectCommands(root, src, &out) {
		return nil, false
	}
	return out, true
}

func collectCommands(n *tree_sitter.Node, src []byte, out *[][]string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			if _, ok := listOperators[child.Kind()]; !ok {
				return false
			}
			continue
		}
		switch child.Kind() {
		case "comment":
		case "list", "pipeline":
			if !collectCommands(child, src, out) {
				return false
			}
		case "command":
			argv, ok := commandWords(child, src)
			if !ok {
				return false
			}
			*out = append(*out, argv)
		default:
			return false
		}
	}
	return true
}

func commandWords(cmd *tree_sitter.Node, src []byte) ([]string, bool) {
	var argv []string
	for i := uint(0); i < cmd.NamedChildCount(); i++ {
		child := cmd.NamedChild(i)
		node := child
		if child.Kind() == "command_name" {
			if child.NamedChildCount() != 1 {
				return nil, false
			}
			node = child.NamedChild(0)
		}
		word, ok := literalWord(node, src)
		if !ok {
			return nil, false
		}
		argv = append(argv, word)
	}
	return argv, len(argv) > 0
}

func literalWord(n *tree_sitter.Node, src []byte) (string, bool) {
	text := n.Utf8Text(src)
	switch n.Kind() {
	case "word", "number":
		if strings.ContainsAny(text, "\\$`") {
			return "", false
		}
		return text, true
	case "raw_string":
		return strings.TrimSuffix(strings.TrimPrefix(text, "'"), "'"), true
	case "string":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if n.NamedChild(i).Kind() != "string_content" {
				return "", false
			}
		}
		if strings.ContainsAny(text, "\\$`") {
			return "", false
		}
		return strings.TrimSuffix(strings.TrimPrefix(text, `"`), `"`), true
	case "concatenation":
		if n.ChildCount() != n.NamedChildCount() {
			return "", false
		}
		var b strings.Builder
		for i := uint(0); i < n.NamedChildCount(); i++ {
			part, ok := literalWord(n.NamedChild(i), src)
			if !ok {
				return "", false
			}
			b.WriteString(part)
		}
		return b.String(), true
	}
	return "", false
}
