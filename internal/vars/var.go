// Package vars implements the Make-style variable environment: flavored
// variables (simple, recursive, undefined, name enumeration), origin-based
// override precedence, scoped rebinding, and the usage tracking the
// incremental regeneration stamp is built from.
package vars

import (
	"fmt"
	"strings"
)

// Value is the contract this package requires from the expression layer: an
// expression node that can evaluate itself into a string against an
// Evaluator. The Make expression grammar itself lives outside this module.
type Value interface {
	Eval(ev *Evaluator) (string, error)
	// IsFunc reports whether the expression invokes functions whose result
	// can change between evaluations. Used by the name-enumeration flavor.
	IsFunc() bool
	String() string
}

// Flavor selects the evaluation strategy of a Var.
type Flavor int

const (
	FlavorUndefined Flavor = iota
	FlavorSimple
	FlavorRecursive
	FlavorNameEnum
)

// String returns the flavor name make(1) reports.
func (f Flavor) String() string {
	switch f {
	case FlavorSimple:
		return "simple"
	case FlavorRecursive:
		return "recursive"
	case FlavorNameEnum:
		return "name_enumeration"
	}
	return "undefined"
}

// Var is one variable binding. It is a tagged union over the flavors: str
// holds the resolved text of a simple variable, expr/orig the unevaluated
// expression and original source text of a recursive one, enumAll the
// payload of the name-enumeration builtin.
type Var struct {
	flavor Flavor
	origin Origin
	def    *Frame
	loc    Loc
	op     AssignOp

	readonly   bool
	deprecated bool
	obsolete   bool
	selfRef    bool
	message    string

	str     string
	expr    Value
	orig    string
	enumAll bool
}

// undefined is the shared immutable sentinel returned for absent names.
var undefined = &Var{flavor: FlavorUndefined, origin: OriginUndefined}

// Undefined returns the shared sentinel for absent bindings.
func Undefined() *Var { return undefined }

// NewSimple creates a simple (immediately expanded) variable from already
// resolved text.
func NewSimple(v string, origin Origin, def *Frame, loc Loc) *Var {
	return &Var{flavor: FlavorSimple, origin: origin, def: def, loc: loc, str: v}
}

// NewSimpleEval creates a simple variable by one-shot evaluation of v
// against the environment current at assignment time.
func NewSimpleEval(origin Origin, def *Frame, loc Loc, ev *Evaluator, v Value) (*Var, error) {
	s, err := ev.EvalValue(v)
	if err != nil {
		return nil, err
	}
	return NewSimple(s, origin, def, loc), nil
}

// NewRecursive creates a recursive (lazily expanded) variable. orig is the
// original source text, reported by String.
func NewRecursive(v Value, origin Origin, def *Frame, loc Loc, orig string) *Var {
	return &Var{flavor: FlavorRecursive, origin: origin, def: def, loc: loc, expr: v, orig: orig}
}

// NewNameEnum creates the builtin that expands to every defined variable
// name. When all is false, names bound to function-invoking expressions are
// excluded. The binding is created readonly with a := operator, matching the
// builtin it models.
func NewNameEnum(all bool) *Var {
	return &Var{flavor: FlavorNameEnum, origin: OriginDefault, op: OpColonEq, readonly: true, enumAll: all}
}

func (v *Var) Flavor() Flavor      { return v.flavor }
func (v *Var) Origin() Origin      { return v.origin }
func (v *Var) Definition() *Frame  { return v.def }
func (v *Var) Loc() Loc            { return v.loc }
func (v *Var) IsDefined() bool     { return v.flavor != FlavorUndefined }
func (v *Var) ReadOnly() bool      { return v.readonly }
func (v *Var) SetReadOnly()        { v.readonly = true }
func (v *Var) Op() AssignOp        { return v.op }
func (v *Var) SetOp(op AssignOp)   { v.op = op }
func (v *Var) Deprecated() bool    { return v.deprecated }
func (v *Var) Obsolete() bool      { return v.obsolete }
func (v *Var) SelfReferential() bool { return v.selfRef }
func (v *Var) setSelfReferential() { v.selfRef = true }

// Message returns the deprecation or obsolescence message, if any.
func (v *Var) Message() string { return v.message }

// SetDeprecated flags the variable so its first use emits a warning.
func (v *Var) SetDeprecated(msg string) {
	v.deprecated = true
	v.message = msg
}

// SetObsolete flags the variable so any use fails the run.
func (v *Var) SetObsolete(msg string) {
	v.obsolete = true
	v.message = msg
}

// IsFunc reports whether evaluating the variable may invoke functions.
func (v *Var) IsFunc() bool {
	return v.flavor == FlavorRecursive && v.expr.IsFunc()
}

// String returns the unexpanded form: the resolved text of a simple
// variable, the original source text of a recursive one.
func (v *Var) String() string {
	switch v.flavor {
	case FlavorSimple:
		return v.str
	case FlavorRecursive:
		return v.orig
	default:
		return ""
	}
}

// DebugString renders the binding for diagnostics.
func (v *Var) DebugString() string {
	switch v.flavor {
	case FlavorSimple:
		return v.str
	case FlavorRecursive:
		return v.expr.String()
	case FlavorNameEnum:
		return "*name_enumeration*"
	default:
		return "*undefined*"
	}
}

// Eval expands the variable against ev. Simple variables return their text
// computed at assignment time; recursive ones re-evaluate their expression
// against the current environment; undefined expands to the empty string.
func (v *Var) Eval(ev *Evaluator) (string, error) {
	switch v.flavor {
	case FlavorSimple:
		return v.str, nil
	case FlavorRecursive:
		return v.expr.Eval(ev)
	case FlavorNameEnum:
		return v.evalNameEnum(ev), nil
	default:
		return "", nil
	}
}

func (v *Var) evalNameEnum(ev *Evaluator) string {
	var names []string
	for _, name := range ev.Vars().Names() {
		other := ev.Vars().Peek(name)
		if other.Obsolete() {
			continue
		}
		if !v.enumAll && other.IsFunc() {
			continue
		}
		names = append(names, name)
	}
	return strings.Join(names, " ")
}

// Append implements += on mutable flavors. A simple variable appends the
// evaluated text; a recursive one grows its expression so the appended part
// stays lazy. The defining frame moves to the current frame. Readonly
// bindings reject the append the same way Assign rejects replacement.
func (v *Var) Append(ev *Evaluator, val Value) error {
	if v.readonly {
		return fmt.Errorf("cannot append to readonly variable")
	}
	switch v.flavor {
	case FlavorSimple:
		s, err := ev.EvalValue(val)
		if err != nil {
			return err
		}
		v.str += " " + s
		v.def = ev.CurrentFrame()
		return nil
	case FlavorRecursive:
		v.expr = seqValue{v.expr, literalValue(" "), val}
		v.orig = v.orig + " " + val.String()
		v.def = ev.CurrentFrame()
		return nil
	default:
		return fmt.Errorf("cannot append to %s variable", v.flavor)
	}
}

// Used reports deprecation and obsolescence when the variable is read or
// written under the given name. Obsolete and self-referential uses are
// errors; deprecated ones warn once per binding.
func (v *Var) Used(ev *Evaluator, name string) error {
	if v.flavor == FlavorRecursive && v.selfRef {
		return fmt.Errorf("*** Recursive variable %q references itself (eventually)", name)
	}
	if v.obsolete {
		return fmt.Errorf("*** %s is obsolete%s", name, v.messageSuffix())
	}
	if v.deprecated && !ev.reported[v] {
		ev.reported[v] = true
		ev.logger.Warn(fmt.Sprintf("%s has been deprecated%s", name, v.messageSuffix()),
			"file", ev.loc.File, "line", ev.loc.Line)
	}
	return nil
}

func (v *Var) messageSuffix() string {
	if v.message == "" {
		return "."
	}
	return ", " + v.message
}

// literalValue and seqValue are the minimal Value forms this package needs
// to grow recursive variables on +=.
type literalValue string

func (l literalValue) Eval(*Evaluator) (string, error) { return string(l), nil }
func (l literalValue) IsFunc() bool                    { return false }
func (l literalValue) String() string                  { return string(l) }

type seqValue []Value

func (s seqValue) Eval(ev *Evaluator) (string, error) {
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

func (s seqValue) IsFunc() bool {
	for _, v := range s {
		if v.IsFunc() {
			return true
		}
	}
	return false
}

func (s seqValue) String() string {
	var sb strings.Builder
	for _, v := range s {
		sb.WriteString(v.String())
	}
	return sb.String()
}
