// pkg/guardrail/guardrail.go
package guardrail

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Action is what a matching rule does with a command.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// MatchKind selects how a rule pattern is applied to a command.
type MatchKind string

const (
	MatchSubstring MatchKind = "substring"
	MatchGlob      MatchKind = "glob"
	MatchRegex     MatchKind = "regex"
)

// Rule is one ordered filter entry. The first matching rule decides.
type Rule struct {
	Action  Action    `yaml:"action"`
	Pattern string    `yaml:"pattern"`
	Match   MatchKind `yaml:"match"`
	Reason  string    `yaml:"reason"`

	re *regexp.Regexp
}

// Decision is the outcome of evaluating one command.
type Decision struct {
	Allowed bool
	Reason  string
	Rule    *Rule
}

// Filter evaluates outbound commands against ordered rules before the work
// step may run them. Commands matching no rule are allowed.
type Filter struct {
	rules []Rule
}

// NewFilter compiles the rule set. Invalid rules (unknown action or match
// kind, empty or uncompilable pattern) are rejected up front rather than
// silently skipped at evaluation time.
func NewFilter(rules []Rule) (*Filter, error) {
	compiled := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		if rule.Match == "" {
			rule.Match = MatchSubstring
		}
		switch rule.Action {
		case ActionAllow, ActionDeny:
		default:
			return nil, fmt.Errorf("guardrail rule %d: invalid action %q", i, rule.Action)
		}
		if strings.TrimSpace(rule.Pattern) == "" {
			return nil, fmt.Errorf("guardrail rule %d: empty pattern", i)
		}
		switch rule.Match {
		case MatchSubstring, MatchGlob:
		case MatchRegex:
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("guardrail rule %d: compiling pattern: %w", i, err)
			}
			rule.re = re
		default:
			return nil, fmt.Errorf("guardrail rule %d: invalid match kind %q", i, rule.Match)
		}
		compiled = append(compiled, rule)
	}
	return &Filter{rules: compiled}, nil
}

// Evaluate runs a command through the filter. First match wins; no match
// allows.
func (f *Filter) Evaluate(command string) Decision {
	if f == nil {
		return Decision{Allowed: true}
	}
	for i := range f.rules {
		rule := &f.rules[i]
		if !rule.matches(command) {
			continue
		}
		d := Decision{
			Allowed: rule.Action == ActionAllow,
			Reason:  rule.Reason,
			Rule:    rule,
		}
		if d.Reason == "" && !d.Allowed {
			d.Reason = fmt.Sprintf("command matches denied pattern %q", rule.Pattern)
		}
		return d
	}
	return Decision{Allowed: true}
}

func (r *Rule) matches(command string) bool {
	switch r.Match {
	case MatchGlob:
		ok, err := path.Match(r.Pattern, command)
		return err == nil && ok
	case MatchRegex:
		return r.re != nil && r.re.MatchString(command)
	default:
		return strings.Contains(command, r.Pattern)
	}
}
