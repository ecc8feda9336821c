package vars

import "log/slog"

// Export records one exported (or explicitly unset) name from the
// evaluation phase, in declaration order.
type Export struct {
	Name     string
	Exported bool
}

// Evaluator is the run-scoped evaluation state threaded through variable
// expansion and graph lowering: the environment, the current source
// location and frame stack, the set of names currently being expanded
// (self-reference detection), and the export list. It is created at run
// start and discarded at run end; it is not ambient global state.
type Evaluator struct {
	vars   *Vars
	logger *slog.Logger

	loc       Loc
	frames    []*Frame
	expanding map[string]struct{}
	reported  map[*Var]bool
	exports   []Export

	shell     string
	shellFlag string
}

// NewEvaluator returns an Evaluator over a fresh environment. The logger
// receives all non-fatal diagnostics.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	ev := &Evaluator{
		vars:      NewVars(),
		logger:    logger,
		expanding: make(map[string]struct{}),
		reported:  make(map[*Var]bool),
		shell:     "/bin/sh",
		shellFlag: "-c",
	}
	ev.vars.Assign(".VARIABLES", NewNameEnum(false))
	return ev
}

// Vars returns the environment.
func (ev *Evaluator) Vars() *Vars { return ev.vars }

// Logger returns the diagnostics sink.
func (ev *Evaluator) Logger() *slog.Logger { return ev.logger }

// Loc returns the current source location used for diagnostics.
func (ev *Evaluator) Loc() Loc { return ev.loc }

// SetLoc moves the current source location.
func (ev *Evaluator) SetLoc(loc Loc) { ev.loc = loc }

// Shell returns the shell used to run synthesized commands.
func (ev *Evaluator) Shell() string { return ev.shell }

// ShellFlag returns the flag passed to the shell before the command.
func (ev *Evaluator) ShellFlag() string { return ev.shellFlag }

// SetShell overrides the shell and its flag.
func (ev *Evaluator) SetShell(shell, flag string) {
	ev.shell = shell
	ev.shellFlag = flag
}

// CurrentFrame returns the innermost frame, or nil outside any frame.
func (ev *Evaluator) CurrentFrame() *Frame {
	if len(ev.frames) == 0 {
		return nil
	}
	return ev.frames[len(ev.frames)-1]
}

// EnterFrame pushes a frame for diagnostics. The returned function pops it;
// defer it.
func (ev *Evaluator) EnterFrame(name string, loc Loc) func() {
	ev.frames = append(ev.frames, &Frame{Name: name, Loc: loc})
	return func() {
		ev.frames = ev.frames[:len(ev.frames)-1]
	}
}

// ExpandVar looks name up, reports its use, and expands it against the
// current environment. A recursive variable that reaches its own expansion
// again is marked self-referential and cut off with an empty string rather
// than recursing forever; its next use is an error.
func (ev *Evaluator) ExpandVar(name string) (string, error) {
	v := ev.vars.Lookup(name)
	if _, active := ev.expanding[name]; active {
		if v.Flavor() == FlavorRecursive {
			v.setSelfReferential()
		}
		return "", nil
	}
	if err := v.Used(ev, name); err != nil {
		return "", err
	}
	ev.expanding[name] = struct{}{}
	defer delete(ev.expanding, name)
	return v.Eval(ev)
}

// EvalValue evaluates an expression against the current environment.
func (ev *Evaluator) EvalValue(v Value) (string, error) {
	return v.Eval(ev)
}

// Export marks name as exported (or unset, when exported is false) for the
// generated environment script. A later call for the same name wins.
func (ev *Evaluator) Export(name string, exported bool) {
	for i := range ev.exports {
		if ev.exports[i].Name == name {
			ev.exports[i].Exported = exported
			return
		}
	}
	ev.exports = append(ev.exports, Export{Name: name, Exported: exported})
}

// Exports returns the export list in declaration order.
func (ev *Evaluator) Exports() []Export { return ev.exports }
