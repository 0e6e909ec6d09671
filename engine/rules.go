package engine

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RuleKind enumerates the validation rule variants a task definition may
// declare against a widget or variable. The set is closed: unknown kinds are
// a configuration error at definition load time, never at submit time.
type RuleKind string

const (
	// RulePattern matches the whole value against a regular expression.
	RulePattern RuleKind = "pattern"
	// RuleExpr evaluates an expression with `value` and `params` in scope;
	// it must yield a boolean.
	RuleExpr RuleKind = "expr"
	// RuleMaxLength bounds the value length in runes.
	RuleMaxLength RuleKind = "maxLength"
)

// Rule is one compiled validation rule. Compilation happens once when the
// task definition is loaded, so submit-time validation is allocation-light.
type Rule struct {
	Kind    RuleKind
	Message string

	pattern   *regexp.Regexp
	program   *vm.Program
	maxLength int
}

// CompileRule builds a Rule from its data form. arg is the regexp source,
// the expression source, or the numeric bound depending on kind.
func CompileRule(kind RuleKind, arg string, maxLength int, message string) (Rule, error) {
	r := Rule{Kind: kind, Message: message}
	switch kind {
	case RulePattern:
		re, err := regexp.Compile(arg)
		if err != nil {
			return Rule{}, fmt.Errorf("compiling pattern rule %q: %w", arg, err)
		}
		r.pattern = re
	case RuleExpr:
		prog, err := expr.Compile(arg, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return Rule{}, fmt.Errorf("compiling expr rule %q: %w", arg, err)
		}
		r.program = prog
	case RuleMaxLength:
		if maxLength <= 0 {
			return Rule{}, fmt.Errorf("maxLength rule requires a positive bound, got %d", maxLength)
		}
		r.maxLength = maxLength
	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", kind)
	}
	if r.Message == "" {
		r.Message = "is not valid"
	}
	return r, nil
}

// check validates one value. params is the full accumulated answer map so
// expr rules can cross-reference earlier answers.
func (r Rule) check(value any, params map[string]any) error {
	switch r.Kind {
	case RulePattern:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s", r.Message)
		}
		if !r.pattern.MatchString(s) {
			return fmt.Errorf("%s", r.Message)
		}
	case RuleExpr:
		env := map[string]any{"value": value, "params": params}
		out, err := expr.Run(r.program, env)
		if err != nil {
			return fmt.Errorf("%s", r.Message)
		}
		if ok, _ := out.(bool); !ok {
			return fmt.Errorf("%s", r.Message)
		}
	case RuleMaxLength:
		s, ok := value.(string)
		if !ok || len([]rune(s)) > r.maxLength {
			return fmt.Errorf("%s", r.Message)
		}
	}
	return nil
}

// validateValue runs the mandatory check and every rule against one
// collected value. name and label identify the widget or variable for the
// resulting field errors.
func validateValue(name, label string, mandatory bool, rules []Rule, value any, params map[string]any) []FieldError {
	if isEmptyValue(value) {
		if mandatory {
			return []FieldError{{Field: name, Message: fmt.Sprintf("%s is required", label)}}
		}
		return nil
	}

	var errs []FieldError
	for _, rule := range rules {
		if err := rule.check(value, params); err != nil {
			errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("%s %s", label, err.Error())})
		}
	}
	return errs
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}
