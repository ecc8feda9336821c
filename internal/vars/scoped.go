package vars

// ScopedVar temporarily rebinds a name, restoring the exact previous state
// on Restore — including absence, if the name had no prior binding. Scopes
// must be released in reverse acquisition order; pairing NewScoped with a
// deferred Restore makes that structural.
//
//	sv := vars.NewScoped(env, "@", out)
//	defer sv.Restore()
type ScopedVar struct {
	vars *Vars
	name string
	orig *Var
	had  bool
}

// NewScoped installs v under name and remembers what it shadowed.
func NewScoped(vs *Vars, name string, v *Var) *ScopedVar {
	sv := &ScopedVar{vars: vs, name: name}
	sv.orig, sv.had = vs.peekRaw(name)
	vs.bind(name, v)
	return sv
}

// Restore reinstates the shadowed binding, or removes the name entirely if
// it was absent before the scope was entered.
func (sv *ScopedVar) Restore() {
	if sv.had {
		sv.vars.bind(sv.name, sv.orig)
	} else {
		sv.vars.unbind(sv.name)
	}
}
