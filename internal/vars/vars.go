package vars

import "sort"

// Vars is the variable environment: a mapping from name to exclusively
// owned binding, plus the usage accumulators the stamp record is built from.
// One Vars instance spans a whole evaluation and lowering run.
type Vars struct {
	m             map[string]*Var
	usedEnv       map[string]struct{}
	usedUndefined map[string]struct{}
}

// NewVars returns an empty environment.
func NewVars() *Vars {
	return &Vars{
		m:             make(map[string]*Var),
		usedEnv:       make(map[string]struct{}),
		usedUndefined: make(map[string]struct{}),
	}
}

// Lookup returns the binding for name, or the shared Undefined sentinel.
// An absent name is recorded in the used-but-undefined set; a hit on an
// environment-origin binding is recorded in the used-environment set.
func (vs *Vars) Lookup(name string) *Var {
	v, ok := vs.m[name]
	if !ok {
		vs.usedUndefined[name] = struct{}{}
		return Undefined()
	}
	if v.Origin() == OriginEnvironment || v.Origin() == OriginEnvironmentOverride {
		vs.usedEnv[name] = struct{}{}
	}
	return v
}

// Peek is Lookup without usage recording.
func (vs *Vars) Peek(name string) *Var {
	if v, ok := vs.m[name]; ok {
		return v
	}
	return Undefined()
}

// Assign installs v under name, enforcing the override rules. The previous
// binding survives when it is readonly (reported through the readonly
// result so the caller can diagnose without aborting), or when it came from
// an override or the command line, which later file assignments never
// silently replace. Automatic bindings are scoped, not assigned; an attempt
// to overwrite one is rejected.
func (vs *Vars) Assign(name string, v *Var) (applied, readonly bool) {
	orig, ok := vs.m[name]
	if !ok {
		vs.m[name] = v
		return true, false
	}
	if orig.ReadOnly() {
		return false, true
	}
	switch orig.Origin() {
	case OriginOverride, OriginEnvironmentOverride, OriginCommandLine:
		return false, false
	case OriginAutomatic:
		return false, false
	}
	vs.m[name] = v
	return true, false
}

// Names returns every defined name in sorted order.
func (vs *Vars) Names() []string {
	names := make([]string, 0, len(vs.m))
	for name := range vs.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UsedEnv returns the names of environment-origin variables that were read,
// sorted for deterministic output.
func (vs *Vars) UsedEnv() []string {
	return sortedKeys(vs.usedEnv)
}

// UsedUndefined returns every name that was read while undefined, sorted.
func (vs *Vars) UsedUndefined() []string {
	return sortedKeys(vs.usedUndefined)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bind and unbind are the raw map operations ScopedVar needs; they bypass
// the override rules on purpose.
func (vs *Vars) bind(name string, v *Var) { vs.m[name] = v }
func (vs *Vars) unbind(name string)       { delete(vs.m, name) }

func (vs *Vars) peekRaw(name string) (*Var, bool) {
	v, ok := vs.m[name]
	return v, ok
}
