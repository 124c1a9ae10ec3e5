// Package execpolicy classifies concrete command lines against a static
// rule set. Classification is deterministic: it depends only on the argv
// and the loaded rules.
package execpolicy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

//go:embed default.policy.yaml
var defaultPolicySource []byte

// Verdict is the outcome of classifying one command.
type Verdict int

const (
	// MatchButInconclusive is the default for commands no rule vouches for.
	MatchButInconclusive Verdict = iota
	Safe
	Forbidden
)

func (v Verdict) String() string {
	switch v {
	case Safe:
		return "safe"
	case Forbidden:
		return "forbidden"
	default:
		return "inconclusive"
	}
}

func parseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe":
		return Safe, nil
	case "forbidden":
		return Forbidden, nil
	case "inconclusive", "match_but_inconclusive":
		return MatchButInconclusive, nil
	}
	return MatchButInconclusive, fmt.Errorf("unknown verdict %q", s)
}

// RuleError identifies a malformed rule by position and id.
type RuleError struct {
	Index  int
	ID     string
	Reason string
}

func (e *RuleError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("rule #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("rule #%d (%s): %s", e.Index, e.ID, e.Reason)
}

type ruleSpec struct {
	ID          string    `yaml:"id"`
	Program     string    `yaml:"program"`
	SystemPaths []string  `yaml:"system_paths"`
	Verdict     string    `yaml:"verdict"`
	Flags       *[]string `yaml:"flags"`
	Args        *[]string `yaml:"args"`
	Reason      string    `yaml:"reason"`
}

type policyFile struct {
	Rules    []ruleSpec `yaml:"rules"`
	Examples struct {
		Good [][]string `yaml:"good"`
		Bad  [][]string `yaml:"bad"`
	} `yaml:"examples"`
}

type tier int

const (
	tierExact tier = iota
	tierGlob
	tierCatchAll
)

// restMarker in an args list matches zero or more remaining positionals.
const restMarker = "..."

type rule struct {
	id          string
	index       int
	tier        tier
	literal     int
	program     string
	programGlob glob.Glob
	systemPaths map[string]struct{}
	flags       []glob.Glob // nil: any flag allowed
	args        []glob.Glob // nil: any positionals
	rest        bool
	verdict     Verdict
	reason      string
}

// Policy is an immutable, compiled rule set.
type Policy struct {
	rules []*rule
	good  [][]string
	bad   [][]string
}

// Match describes which rule decided a classification.
type Match struct {
	Verdict Verdict
	RuleID  string
	Reason  string
}

// LoadPolicy parses and compiles a YAML rule set.
func LoadPolicy(data []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, errors.New("parse policy: no rules defined")
	}

	p := &Policy{good: file.Examples.Good, bad: file.Examples.Bad}
	seen := make(map[string]int, len(file.Rules))
	for i, spec := range file.Rules {
		r, err := compileRule(i, spec)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[r.id]; dup {
			return nil, &RuleError{Index: i, ID: r.id, Reason: fmt.Sprintf("duplicate id, first defined at rule #%d", prev)}
		}
		seen[r.id] = i
		p.rules = append(p.rules, r)
	}

	sort.SliceStable(p.rules, func(i, j int) bool {
		a, b := p.rules[i], p.rules[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.tier == tierGlob && a.literal != b.literal {
			return a.literal > b.literal
		}
		return a.index < b.index
	})

	for _, ex := range append(append([][]string{}, p.good...), p.bad...) {
		if len(ex) == 0 {
			return nil, errors.New("parse policy: empty example command")
		}
	}
	return p, nil
}

func compileRule(index int, spec ruleSpec) (*rule, error) {
	fail := func(format string, args ...any) error {
		return &RuleError{Index: index, ID: spec.ID, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(spec.ID) == "" {
		return nil, fail("missing id")
	}
	if strings.TrimSpace(spec.Program) == "" {
		return nil, fail("missing program")
	}
	verdict, err := parseVerdict(spec.Verdict)
	if err != nil {
		return nil, fail("%v", err)
	}

	r := &rule{
		id:      spec.ID,
		index:   index,
		program: spec.Program,
		verdict: verdict,
		reason:  spec.Reason,
	}
	switch {
	case spec.Program == "*":
		r.tier = tierCatchAll
	case strings.ContainsAny(spec.Program, "*?[{"):
		g, err := glob.Compile(spec.Program)
		if err != nil {
			return nil, fail("bad program pattern %q: %v", spec.Program, err)
		}
		r.tier = tierGlob
		r.programGlob = g
		r.literal = literalLength(spec.Program)
	default:
		if strings.Contains(spec.Program, "/") {
			return nil, fail("program must be a bare name; list absolute paths under system_paths")
		}
		r.tier = tierExact
	}

	if len(spec.SystemPaths) > 0 {
		r.systemPaths = make(map[string]struct{}, len(spec.SystemPaths))
		for _, sp := range spec.SystemPaths {
			if !strings.HasPrefix(sp, "/") {
				return nil, fail("system path %q is not absolute", sp)
			}
			r.systemPaths[sp] = struct{}{}
		}
	}

	if spec.Flags != nil {
		r.flags = make([]glob.Glob, 0, len(*spec.Flags))
		for _, f := range *spec.Flags {
			if !strings.HasPrefix(f, "-") {
				return nil, fail("flag pattern %q must start with '-'", f)
			}
			g, err := glob.Compile(f)
			if err != nil {
				return nil, fail("bad flag pattern %q: %v", f, err)
			}
			r.flags = append(r.flags, g)
		}
	}

	if spec.Args != nil {
		patterns := *spec.Args
		r.args = make([]glob.Glob, 0, len(patterns))
		for i, a := range patterns {
			if a == restMarker {
				if i != len(patterns)-1 {
					return nil, fail("%q is only allowed as the last argument pattern", restMarker)
				}
				r.rest = true
				continue
			}
			g, err := glob.Compile(a)
			if err != nil {
				return nil, fail("bad argument pattern %q: %v", a, err)
			}
			r.args = append(r.args, g)
		}
	}
	return r, nil
}

func literalLength(pattern string) int {
	n := 0
	for _, c := range pattern {
		if !strings.ContainsRune("*?[]{}", c) {
			n++
		}
	}
	return n
}

// LoadPolicyFile reads a rule set from disk.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return LoadPolicy(data)
}

var (
	defaultOnce   sync.Once
	defaultPolicy *Policy
	defaultErr    error
)

// GetDefaultPolicy returns the embedded rule set, compiled once.
func GetDefaultPolicy() (*Policy, error) {
	defaultOnce.Do(func() {
		defaultPolicy, defaultErr = LoadPolicy(defaultPolicySource)
	})
	return defaultPolicy, defaultErr
}

// Rules returns the rule ids in evaluation order.
func (p *Policy) Rules() []string {
	ids := make([]string, len(p.rules))
	for i, r := range p.rules {
		ids[i] = r.id
	}
	return ids
}
