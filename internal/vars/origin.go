package vars

// Origin is the provenance category of a variable assignment, in ascending
// precedence order. Vars.Assign spells out which origins a later assignment
// may silently replace.
type Origin int

const (
	OriginUndefined Origin = iota
	OriginDefault
	OriginEnvironment
	OriginEnvironmentOverride
	OriginFile
	OriginCommandLine
	OriginOverride
	OriginAutomatic
)

// String returns the name make(1) itself would report for the origin.
func (o Origin) String() string {
	switch o {
	case OriginUndefined:
		return "undefined"
	case OriginDefault:
		return "default"
	case OriginEnvironment:
		return "environment"
	case OriginEnvironmentOverride:
		return "environment override"
	case OriginFile:
		return "file"
	case OriginCommandLine:
		return "command line"
	case OriginOverride:
		return "override"
	case OriginAutomatic:
		return "automatic"
	}
	return "*** broken origin ***"
}

// AssignOp is the operator of the assignment that produced a variable.
type AssignOp int

const (
	OpEq AssignOp = iota // =
	OpColonEq            // :=
	OpPlusEq             // +=
	OpQuestionEq         // ?=
)

// Loc is a source location used for diagnostics.
type Loc struct {
	File string
	Line int
}

// Frame identifies where a variable was defined. Multiple variables may
// share one frame; frames never reference variables back, so plain pointer
// sharing is safe.
type Frame struct {
	Name string
	Loc  Loc
}
