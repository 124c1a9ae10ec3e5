package execpolicy

import (
	"fmt"
	"strings"
)

// NegativeExamplePassedCheck records a known-bad command that classified Safe.
type NegativeExamplePassedCheck struct {
	Command []string
	RuleID  string
}

func (c NegativeExamplePassedCheck) String() string {
	return fmt.Sprintf("bad example %q was marked safe by rule %s", strings.Join(c.Command, " "), c.RuleID)
}

// PositiveExampleFailedCheck records a known-good command that did not
// classify Safe.
type PositiveExampleFailedCheck struct {
	Command []string
	Verdict Verdict
	RuleID  string
}

func (c PositiveExampleFailedCheck) String() string {
	return fmt.Sprintf("good example %q classified %s (rule %s)", strings.Join(c.Command, " "), c.Verdict, c.RuleID)
}

// CheckEachBadListIndividually classifies every known-bad example on its
// own. A rule set is healthy when this returns nothing.
func (p *Policy) CheckEachBadListIndividually() []NegativeExamplePassedCheck {
	var violations []NegativeExamplePassedCheck
	for _, cmd := range p.bad {
		if m := p.Evaluate(cmd); m.Verdict == Safe {
			violations = append(violations, NegativeExamplePassedCheck{Command: cmd, RuleID: m.RuleID})
		}
	}
	return violations
}

// CheckEachGoodListIndividually reports known-good examples that would
// still prompt the user.
func (p *Policy) CheckEachGoodListIndividually() []PositiveExampleFailedCheck {
	var violations []PositiveExampleFailedCheck
	for _, cmd := range p.good {
		if m := p.Evaluate(cmd); m.Verdict != Safe {
			violations = append(violations, PositiveExampleFailedCheck{Command: cmd, Verdict: m.Verdict, RuleID: m.RuleID})
		}
	}
	return violations
}

// Examples returns copies of the labeled example lists.
func (p *Policy) Examples() (good, bad [][]string) {
	return cloneCommands(p.good), cloneCommands(p.bad)
}

func cloneCommands(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, c := range in {
		out[i] = append([]string(nil), c...)
	}
	return out
}
