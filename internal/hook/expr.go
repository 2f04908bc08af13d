// Package hook builds pipeline hooks from expressions in the config file.
//
// Each rule applies to the records of its types (all types when empty).
// Keep drops a record when it evaluates to false. Set assigns fields from
// expressions; a nil result removes the field. Expressions see:
//
//	collection  the type name
//	contentId   the record id
//	fields      the content fields
//
// Example:
//
//	{types: ["article"], keep: "fields.draft != true", set: {title: "upper(fields.title)"}}
package hook

import (
	"context"
	"fmt"
	"slices"
	"sort"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/roach88/notacms/internal/record"
	"github.com/roach88/notacms/internal/syncer"
)

// Rule is one configured transform.
type Rule struct {
	Types []string          `json:"types,omitempty"`
	Keep  string            `json:"keep,omitempty"`
	Set   map[string]string `json:"set,omitempty"`
}

type compiledRule struct {
	types  []string
	keep   *exprvm.Program
	fields []string
	set    map[string]*exprvm.Program
}

// Compile compiles rules into a hook that runs them in order. An empty
// rule list compiles to a nil hook.
func Compile(rules []Rule) (syncer.Hook, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		c := compiledRule{types: r.Types, set: make(map[string]*exprvm.Program, len(r.Set))}
		if r.Keep != "" {
			p, err := compile(r.Keep)
			if err != nil {
				return nil, fmt.Errorf("rule %d keep: %w", i, err)
			}
			c.keep = p
		}
		for name, expression := range r.Set {
			if name == record.FieldType || name == record.FieldContentID {
				return nil, fmt.Errorf("rule %d set: %q is reserved", i, name)
			}
			p, err := compile(expression)
			if err != nil {
				return nil, fmt.Errorf("rule %d set %s: %w", i, name, err)
			}
			c.set[name] = p
			c.fields = append(c.fields, name)
		}
		sort.Strings(c.fields)
		compiled = append(compiled, c)
	}

	return func(_ context.Context, typeName string, rec *record.Record) (*record.Record, error) {
		for _, c := range compiled {
			if len(c.types) > 0 && !slices.Contains(c.types, typeName) {
				continue
			}
			keep, err := c.apply(typeName, rec)
			if err != nil || !keep {
				return nil, err
			}
		}
		return rec, nil
	}, nil
}

func compile(expression string) (*exprvm.Program, error) {
	return exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
}

func (c compiledRule) apply(typeName string, rec *record.Record) (bool, error) {
	if c.keep != nil {
		out, err := exprlang.Run(c.keep, environment(typeName, rec))
		if err != nil {
			return false, fmt.Errorf("keep: %w", err)
		}
		keep, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("keep: want bool, got %T", out)
		}
		if !keep {
			return false, nil
		}
	}

	// Every set expression sees the fields as they were before the rule.
	env := environment(typeName, rec)
	values := make(map[string]any, len(c.fields))
	for _, name := range c.fields {
		out, err := exprlang.Run(c.set[name], env)
		if err != nil {
			return false, fmt.Errorf("set %s: %w", name, err)
		}
		values[name] = out
	}
	for _, name := range c.fields {
		if values[name] == nil {
			delete(rec.Fields, name)
			continue
		}
		rec.Fields[name] = record.Normalize(values[name])
	}
	return true, nil
}

func environment(typeName string, rec *record.Record) map[string]any {
	return map[string]any{
		"collection": typeName,
		"contentId":  rec.ContentID,
		"fields":     rec.Fields,
	}
}
