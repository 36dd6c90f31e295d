// Package rules decides approval asks with CEL expressions.
//
// A rule matches when its expression evaluates to true over the ask:
//
//	type     "ask"
//	subtype  the ask subtype, e.g. "command" or "tool"
//	text     the raw ask text
//	tool     the tool name for tool asks, "" otherwise
//	path     the tool path for tool asks, "" otherwise
//
// Rules are tried in order and the first match decides.
package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/message"
)

// Decision is the outcome of a matching rule.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Rule is one approval rule as written in the config file.
type Rule struct {
	Name     string   `yaml:"name"`
	When     string   `yaml:"when"`
	Decision Decision `yaml:"decision"`
}

type compiled struct {
	rule    Rule
	program cel.Program
}

// Set is a compiled, ordered list of rules. The zero value and nil match
// nothing.
type Set struct {
	rules  []compiled
	logger *slog.Logger
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("subtype", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("tool", cel.StringType),
		cel.Variable("path", cel.StringType),
	)
}

// Compile checks and compiles rules. Every rule needs a boolean
// expression and a known decision.
func Compile(rules []Rule) (*Set, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	set := &Set{logger: logging.Approval()}
	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
			r.Name = name
		}
		switch Decision(strings.ToLower(string(r.Decision))) {
		case Approve:
			r.Decision = Approve
		case Reject:
			r.Decision = Reject
		default:
			return nil, fmt.Errorf("rule %s: unknown decision %q (expected %q or %q)", name, r.Decision, Approve, Reject)
		}
		if strings.TrimSpace(r.When) == "" {
			return nil, fmt.Errorf("rule %s: empty expression", name)
		}

		ast, iss := env.Compile(r.When)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("rule %s: %w", name, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %s", name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		set.rules = append(set.rules, compiled{rule: r, program: prg})
	}
	return set, nil
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Decide returns the decision of the first rule matching m.
func (s *Set) Decide(m message.Message) (approval.Response, bool) {
	if s == nil || len(s.rules) == 0 {
		return approval.Response{}, false
	}

	vars := map[string]any{
		"type":    string(m.Type),
		"subtype": m.Subtype(),
		"text":    m.Text,
		"tool":    "",
		"path":    "",
	}
	if t, ok := message.ParseTool(m.Text); ok {
		vars["tool"] = t.Name
		vars["path"] = t.Path
	}

	for _, c := range s.rules {
		out, _, err := c.program.Eval(vars)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("Rule evaluation failed", "rule", c.rule.Name, "error", err)
			}
			continue
		}
		matched, ok := out.Value().(bool)
		if !ok || !matched {
			continue
		}
		if s.logger != nil {
			s.logger.Debug("Rule matched", "rule", c.rule.Name, "decision", string(c.rule.Decision), "ts", m.TS)
		}
		if c.rule.Decision == Approve {
			return approval.Approved(), true
		}
		return approval.Rejected(), true
	}
	return approval.Response{}, false
}
