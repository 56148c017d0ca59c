package shape

import (
	"strings"

	"github.com/wippyai/webbind/errors"
)

// Rule is one overload: a fixed arity with a kind set per position.
type Rule struct {
	Kinds []Kind
}

// NewRule builds a rule from positional kinds.
func NewRule(kinds ...Kind) Rule {
	return Rule{Kinds: kinds}
}

// Arity returns the number of arguments the rule accepts.
func (r Rule) Arity() int {
	return len(r.Kinds)
}

// Match reports whether args satisfy the rule.
func (r Rule) Match(args []any) bool {
	if len(args) != len(r.Kinds) {
		return false
	}
	for i, a := range args {
		if !r.Kinds[i].Accepts(Of(a)) {
			return false
		}
	}
	return true
}

// Overlaps reports whether some argument list satisfies both rules.
func (r Rule) Overlaps(o Rule) bool {
	if len(r.Kinds) != len(o.Kinds) {
		return false
	}
	for i := range r.Kinds {
		if r.Kinds[i]&o.Kinds[i] == 0 {
			return false
		}
	}
	return true
}

func (r Rule) names() []string {
	out := make([]string, len(r.Kinds))
	for i, k := range r.Kinds {
		out[i] = k.String()
	}
	return out
}

func (r Rule) String() string {
	return "(" + strings.Join(r.names(), ", ") + ")"
}

// Method is the overload set of one exposed method name.
type Method struct {
	Name  string
	Rules []Rule
}

// NewMethod validates that no two rules accept a common argument list.
// Ambiguity is a registration defect, so it is reported here and never at call time.
func NewMethod(name string, rules ...Rule) (*Method, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseRegister, "method name cannot be empty")
	}
	if len(rules) == 0 {
		return nil, errors.InvalidInput(errors.PhaseRegister, "method "+name+" has no rules")
	}
	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			if rules[i].Overlaps(rules[j]) {
				return nil, errors.Ambiguous(name, rules[i].names(), rules[j].names())
			}
		}
	}
	return &Method{Name: name, Rules: rules}, nil
}

// Select returns the index of the first rule matching args.
// Rules are scanned in declaration order with no backtracking.
func (m *Method) Select(args []any) (int, error) {
	for i, r := range m.Rules {
		if r.Match(args) {
			return i, nil
		}
	}
	return -1, errors.InvalidArguments(errors.PhaseDispatch, m.Name, Describe(args))
}
