package vars_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mk2ninja/internal/expr"
	"github.com/vk/mk2ninja/internal/vars"
)

func newTestEvaluator() *vars.Evaluator {
	return vars.NewEvaluator(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func simpleVar(v string, origin vars.Origin) *vars.Var {
	return vars.NewSimple(v, origin, nil, vars.Loc{})
}

func TestOriginPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		first       vars.Origin
		second      vars.Origin
		wantApplied bool
	}{
		{"file over file", vars.OriginFile, vars.OriginFile, true},
		{"file over environment", vars.OriginEnvironment, vars.OriginFile, true},
		{"file over default", vars.OriginDefault, vars.OriginFile, true},
		{"file never beats command line", vars.OriginCommandLine, vars.OriginFile, false},
		{"file never beats override", vars.OriginOverride, vars.OriginFile, false},
		{"file never beats environment override", vars.OriginEnvironmentOverride, vars.OriginFile, false},
		{"command line over file", vars.OriginFile, vars.OriginCommandLine, true},
		{"environment over file", vars.OriginFile, vars.OriginEnvironment, true},
		{"automatic is never overwritten", vars.OriginAutomatic, vars.OriginFile, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := vars.NewVars()
			applied, readonly := vs.Assign("X", simpleVar("first", tt.first))
			require.True(t, applied)
			require.False(t, readonly)

			applied, readonly = vs.Assign("X", simpleVar("second", tt.second))
			assert.False(t, readonly)
			assert.Equal(t, tt.wantApplied, applied)

			want := "first"
			if tt.wantApplied {
				want = "second"
			}
			assert.Equal(t, want, vs.Lookup("X").String())
		})
	}
}

func TestReadonlyRejectsAnyOrigin(t *testing.T) {
	vs := vars.NewVars()
	v := simpleVar("locked", vars.OriginFile)
	v.SetReadOnly()
	applied, readonly := vs.Assign("X", v)
	require.True(t, applied)
	require.False(t, readonly)

	for _, origin := range []vars.Origin{
		vars.OriginFile, vars.OriginCommandLine, vars.OriginOverride,
	} {
		applied, readonly = vs.Assign("X", simpleVar("evil", origin))
		assert.False(t, applied, "origin %s", origin)
		assert.True(t, readonly, "origin %s", origin)
		assert.Equal(t, "locked", vs.Lookup("X").String())
	}
}

func TestSimpleVsRecursiveDivergence(t *testing.T) {
	ev := newTestEvaluator()
	vs := ev.Vars()

	vs.Assign("Y", simpleVar("hello", vars.OriginFile))

	// X := $(Y) captures the value at assignment time.
	x, err := vars.NewSimpleEval(vars.OriginFile, nil, vars.Loc{}, ev, expr.Ref("Y"))
	require.NoError(t, err)
	vs.Assign("X", x)

	// Z = $(Y) re-expands at every use.
	vs.Assign("Z", vars.NewRecursive(expr.Ref("Y"), vars.OriginFile, nil, vars.Loc{}, "$(Y)"))

	vs.Assign("Y", simpleVar("world", vars.OriginFile))

	got, err := ev.ExpandVar("X")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = ev.ExpandVar("Z")
	require.NoError(t, err)
	assert.Equal(t, "world", got)
}

func TestUndefinedTracking(t *testing.T) {
	ev := newTestEvaluator()
	vs := ev.Vars()

	v := vs.Lookup("NEVER_SET")
	assert.False(t, v.IsDefined())
	assert.Same(t, vars.Undefined(), v)

	got, err := ev.ExpandVar("NEVER_SET")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	// Repeated reads still record the name exactly once.
	_, err = ev.ExpandVar("NEVER_SET")
	require.NoError(t, err)
	assert.Equal(t, []string{"NEVER_SET"}, vs.UsedUndefined())
}

func TestPeekDoesNotRecordUsage(t *testing.T) {
	vs := vars.NewVars()
	envVar := simpleVar("from-env", vars.OriginEnvironment)
	vs.Assign("HOME_DIR", envVar)

	assert.Same(t, envVar, vs.Peek("HOME_DIR"))
	assert.False(t, vs.Peek("MISSING").IsDefined())

	assert.Empty(t, vs.UsedEnv())
	assert.Empty(t, vs.UsedUndefined())

	vs.Lookup("HOME_DIR")
	vs.Lookup("MISSING")
	assert.Equal(t, []string{"HOME_DIR"}, vs.UsedEnv())
	assert.Equal(t, []string{"MISSING"}, vs.UsedUndefined())
}

func TestScopedRestore(t *testing.T) {
	t.Run("shadowing an existing binding", func(t *testing.T) {
		vs := vars.NewVars()
		orig := simpleVar("orig", vars.OriginFile)
		vs.Assign("X", orig)

		shadow := simpleVar("shadow", vars.OriginAutomatic)
		sv := vars.NewScoped(vs, "X", shadow)
		assert.Same(t, shadow, vs.Peek("X"))

		sv.Restore()
		assert.Same(t, orig, vs.Peek("X"))
	})

	t.Run("shadowing an absent binding restores absence", func(t *testing.T) {
		vs := vars.NewVars()
		sv := vars.NewScoped(vs, "@", simpleVar("out.o", vars.OriginAutomatic))
		assert.Equal(t, "out.o", vs.Peek("@").String())

		sv.Restore()
		assert.False(t, vs.Lookup("@").IsDefined())
	})

	t.Run("nested scopes released in reverse order", func(t *testing.T) {
		vs := vars.NewVars()
		sv1 := vars.NewScoped(vs, "X", simpleVar("one", vars.OriginAutomatic))
		sv2 := vars.NewScoped(vs, "X", simpleVar("two", vars.OriginAutomatic))
		assert.Equal(t, "two", vs.Peek("X").String())

		sv2.Restore()
		assert.Equal(t, "one", vs.Peek("X").String())
		sv1.Restore()
		assert.False(t, vs.Peek("X").IsDefined())
	})
}

func TestAppend(t *testing.T) {
	ev := newTestEvaluator()
	vs := ev.Vars()

	t.Run("simple appends evaluated text", func(t *testing.T) {
		v := simpleVar("a", vars.OriginFile)
		vs.Assign("S", v)
		require.NoError(t, v.Append(ev, expr.Literal("b")))
		assert.Equal(t, "a b", v.String())
	})

	t.Run("recursive stays lazy", func(t *testing.T) {
		vs.Assign("W", simpleVar("first", vars.OriginFile))
		z := vars.NewRecursive(expr.Ref("W"), vars.OriginFile, nil, vars.Loc{}, "$(W)")
		vs.Assign("Z", z)
		require.NoError(t, z.Append(ev, expr.Ref("W")))

		vs.Assign("W", simpleVar("second", vars.OriginFile))
		got, err := ev.ExpandVar("Z")
		require.NoError(t, err)
		assert.Equal(t, "second second", got)
	})

	t.Run("undefined cannot append", func(t *testing.T) {
		err := vars.Undefined().Append(ev, expr.Literal("x"))
		assert.Error(t, err)
	})

	t.Run("readonly cannot append", func(t *testing.T) {
		v := simpleVar("locked", vars.OriginFile)
		v.SetReadOnly()
		err := v.Append(ev, expr.Literal("extra"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "readonly")
		assert.Equal(t, "locked", v.String())
	})
}

func TestNameEnumeration(t *testing.T) {
	ev := newTestEvaluator()
	vs := ev.Vars()
	vs.Assign("BETA", simpleVar("2", vars.OriginFile))
	vs.Assign("ALPHA", simpleVar("1", vars.OriginFile))

	obsolete := simpleVar("old", vars.OriginFile)
	obsolete.SetObsolete("gone")
	vs.Assign("OLD", obsolete)

	v := vars.NewNameEnum(true)
	assert.True(t, v.ReadOnly())

	got, err := v.Eval(ev)
	require.NoError(t, err)
	assert.Equal(t, ".VARIABLES ALPHA BETA", got)

	// The builtin itself is installed by the evaluator.
	got, err = ev.ExpandVar(".VARIABLES")
	require.NoError(t, err)
	assert.Equal(t, ".VARIABLES ALPHA BETA", got)
}

func TestSelfReference(t *testing.T) {
	ev := newTestEvaluator()
	vs := ev.Vars()

	x := vars.NewRecursive(expr.Ref("X"), vars.OriginFile, nil, vars.Loc{}, "$(X)")
	vs.Assign("X", x)

	// The first expansion terminates and flags the variable.
	got, err := ev.ExpandVar("X")
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.True(t, x.SelfReferential())

	// Any later use is an error.
	_, err = ev.ExpandVar("X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references itself")
}

func TestIndirectSelfReference(t *testing.T) {
	ev := newTestEvaluator()
	vs := ev.Vars()
	vs.Assign("A", vars.NewRecursive(expr.Ref("B"), vars.OriginFile, nil, vars.Loc{}, "$(B)"))
	vs.Assign("B", vars.NewRecursive(expr.Ref("A"), vars.OriginFile, nil, vars.Loc{}, "$(A)"))

	got, err := ev.ExpandVar("A")
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.True(t, vs.Peek("A").SelfReferential())
}

func TestDeprecatedWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	ev := vars.NewEvaluator(slog.New(slog.NewTextHandler(&buf, nil)))
	vs := ev.Vars()

	v := simpleVar("v", vars.OriginFile)
	v.SetDeprecated("use NEW_THING instead")
	vs.Assign("OLD_THING", v)

	for i := 0; i < 3; i++ {
		_, err := ev.ExpandVar("OLD_THING")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "deprecated"))
	assert.Contains(t, buf.String(), "use NEW_THING instead")
}

func TestObsoleteIsFatal(t *testing.T) {
	ev := newTestEvaluator()
	v := simpleVar("v", vars.OriginFile)
	v.SetObsolete("removed in this release")
	ev.Vars().Assign("GONE", v)

	_, err := ev.ExpandVar("GONE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obsolete")
	assert.Contains(t, err.Error(), "removed in this release")
}

func TestExportsOrderAndOverride(t *testing.T) {
	ev := newTestEvaluator()
	ev.Export("B", true)
	ev.Export("A", true)
	ev.Export("B", false)

	require.Len(t, ev.Exports(), 2)
	assert.Equal(t, vars.Export{Name: "B", Exported: false}, ev.Exports()[0])
	assert.Equal(t, vars.Export{Name: "A", Exported: true}, ev.Exports()[1])
}
