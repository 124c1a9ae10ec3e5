package execpolicy

import (
	"strings"

	"github.com/gobwas/glob"
)

const defaultReason = "no rule covers this command"

// Classify returns the verdict for argv.
func (p *Policy) Classify(argv []string) Verdict {
	return p.Evaluate(argv).Verdict
}

// Evaluate classifies argv and reports the deciding rule.
func (p *Policy) Evaluate(argv []string) Match {
	if len(argv) == 0 || argv[0] == "" {
		return Match{Verdict: MatchButInconclusive, Reason: "empty command"}
	}
	if script, ok := shellWrapperScript(argv); ok {
		if m, ok := p.evaluateScript(script); ok {
			return m
		}
	}
	return p.evaluateArgv(argv)
}

func (p *Policy) evaluateArgv(argv []string) Match {
	flags, positionals := splitArgs(argv[1:])
	for _, r := range p.rules {
		if r.matchesProgram(argv[0]) && r.matchesFlags(flags) && r.matchesArgs(positionals) {
			return Match{Verdict: r.verdict, RuleID: r.id, Reason: r.reason}
		}
	}
	return Match{Verdict: MatchButInconclusive, Reason: defaultReason}
}

func (r *rule) matchesProgram(prog string) bool {
	if _, ok := r.systemPaths[prog]; ok {
		return true
	}
	switch r.tier {
	case tierCatchAll:
		return true
	case tierGlob:
		return !strings.Contains(prog, "/") && r.programGlob.Match(prog)
	default:
		return !strings.Contains(prog, "/") && prog == r.program
	}
}

func (r *rule) matchesFlags(flags []string) bool {
	if r.flags == nil {
		return true
	}
	for _, f := range flags {
		if !anyMatch(r.flags, f) {
			return false
		}
	}
	return true
}

func (r *rule) matchesArgs(positionals []string) bool {
	if r.args == nil {
		return true
	}
	if len(positionals) < len(r.args) || (!r.rest && len(positionals) != len(r.args)) {
		return false
	}
	for i, g := range r.args {
		if !g.Match(positionals[i]) {
			return false
		}
	}
	return true
}

func anyMatch(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// splitArgs separates option-looking words from positionals. A lone "-" is
// positional. "--" is reported as a flag, so a rule with a flag allow-list
// must list it, and everything after it is positional.
func splitArgs(args []string) (flags, positionals []string) {
	for i, a := range args {
		if a == "--" {
			flags = append(flags, a)
			positionals = append(positionals, args[i+1:]...)
			return flags, positionals
		}
		if len(a) > 1 && a[0] == '-' {
			flags = append(flags, a)
			continue
		}
		positionals = append(positionals, a)
	}
	return flags, positionals
}

var shells = map[string]struct{}{
	"bash": {}, "sh": {}, "zsh": {}, "dash": {},
	"/bin/bash": {}, "/usr/bin/bash": {},
	"/bin/sh": {}, "/usr/bin/sh": {},
	"/bin/zsh": {}, "/usr/bin/zsh": {},
	"/bin/dash": {}, "/usr/bin/dash": {},
}

// shellWrapperScript recognizes `bash -c <script>` and `bash -lc <script>`.
// The shell must be named bare or by one of its system paths; any other
// binary called bash is just an unknown program.
func shellWrapperScript(argv []string) (string, bool) {
	if len(argv) != 3 {
		return "", false
	}
	if _, ok := shells[argv[0]]; !ok {
		return "", false
	}
	if argv[1] != "-c" && argv[1] != "-lc" {
		return "", false
	}
	return argv[2], true
}

// evaluateScript combines the verdicts of each simple command in script.
// It reports false when the script is not a plain list of literal commands.
func (p *Policy) evaluateScript(script string) (Match, bool) {
	commands, ok := splitShellScript(script)
	if !ok || len(commands) == 0 {
		return Match{}, false
	}
	result := Match{Verdict: Safe, RuleID: "shell", Reason: "every command in the script is safe"}
	for _, cmd := range commands {
		m := p.evaluateArgv(cmd)
		switch m.Verdict {
		case Forbidden:
			return m, true
		case MatchButInconclusive:
			result = Match{Verdict: MatchButInconclusive, RuleID: m.RuleID, Reason: m.Reason}
		}
	}
	return result, true
}
