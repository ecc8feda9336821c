// Package expr provides the reference-only expression forms the generator
// and its front end need: literals, variable references, and sequences. The
// full Make function grammar is deliberately not implemented here; anything
// richer arrives as an already-parsed vars.Value from the evaluation phase.
package expr

import (
	"fmt"
	"strings"

	"github.com/vk/mk2ninja/internal/vars"
)

// Literal is constant text.
type Literal string

// Eval implements vars.Value.
func (l Literal) Eval(*vars.Evaluator) (string, error) { return string(l), nil }

// IsFunc implements vars.Value.
func (l Literal) IsFunc() bool { return false }

func (l Literal) String() string { return string(l) }

// Ref is a reference to a variable, expanded against the environment
// current at evaluation time.
type Ref string

// Eval implements vars.Value by routing through Evaluator.ExpandVar, which
// records usage and guards against self-reference.
func (r Ref) Eval(ev *vars.Evaluator) (string, error) {
	return ev.ExpandVar(string(r))
}

// IsFunc implements vars.Value.
func (r Ref) IsFunc() bool { return false }

func (r Ref) String() string { return "$(" + string(r) + ")" }

// Seq concatenates the results of its parts.
type Seq []vars.Value

// Eval implements vars.Value.
func (s Seq) Eval(ev *vars.Evaluator) (string, error) {
	var sb strings.Builder
	for _, v := range s {
		part, err := v.Eval(ev)
		if err != nil {
			return "", err
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

// IsFunc implements vars.Value.
func (s Seq) IsFunc() bool {
	for _, v := range s {
		if v.IsFunc() {
			return true
		}
	}
	return false
}

func (s Seq) String() string {
	var sb strings.Builder
	for _, v := range s {
		sb.WriteString(v.String())
	}
	return sb.String()
}

// Parse turns text containing $$, $(NAME), ${NAME} and single-character $X
// references into a Value. Function calls are not part of this grammar; a
// `$(` group containing whitespace is rejected so a Make function sneaking
// in fails loudly instead of silently becoming a weird variable name.
func Parse(text string) (vars.Value, error) {
	var parts Seq
	var lit strings.Builder

	flushLit := func() {
		if lit.Len() > 0 {
			parts = append(parts, Literal(lit.String()))
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '$' {
			lit.WriteByte(c)
			continue
		}
		if i+1 >= len(text) {
			lit.WriteByte('$')
			break
		}
		i++
		switch next := text[i]; next {
		case '$':
			lit.WriteByte('$')
		case '(', '{':
			close := byte(')')
			if next == '{' {
				close = '}'
			}
			end := strings.IndexByte(text[i:], close)
			if end < 0 {
				return nil, fmt.Errorf("unterminated variable reference in %q", text)
			}
			name := text[i+1 : i+end]
			if strings.ContainsAny(name, " \t") {
				return nil, fmt.Errorf("unsupported function call %q (only variable references are accepted here)", name)
			}
			flushLit()
			parts = append(parts, Ref(name))
			i += end
		default:
			flushLit()
			parts = append(parts, Ref(string(next)))
		}
	}
	flushLit()

	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts, nil
}
