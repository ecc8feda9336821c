// Package manifest loads the hand-off format that stands in for the
// excluded Makefile front end: an HCL file declaring variables and resolved
// targets. It populates a vars.Evaluator environment and produces the
// dependency-graph nodes the lowering engine consumes.
package manifest

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mk2ninja/internal/config"
	"github.com/vk/mk2ninja/internal/expr"
	"github.com/vk/mk2ninja/internal/graph"
	"github.com/vk/mk2ninja/internal/vars"

	hcl "github.com/hashicorp/hcl/v2"
)

// File is the root HCL schema.
type File struct {
	Vars    []VarBlock    `hcl:"var,block"`
	Targets []TargetBlock `hcl:"target,block"`
}

// VarBlock declares one variable binding.
type VarBlock struct {
	Name     string `hcl:"name,label"`
	Value    string `hcl:"value"`
	Flavor   string `hcl:"flavor,optional"`   // "recursive" (default) or "simple"
	Origin   string `hcl:"origin,optional"`   // default "file"
	Append   bool   `hcl:"append,optional"`   // +=
	Export   bool   `hcl:"export,optional"`   // listed in env.sh
	Unexport bool   `hcl:"unexport,optional"` // unset in env.sh
	Readonly bool   `hcl:"readonly,optional"`
}

// TargetBlock declares one resolved dependency-graph node.
type TargetBlock struct {
	Output          string   `hcl:"output,label"`
	Recipe          []string `hcl:"recipe,optional"`
	Deps            []string `hcl:"deps,optional"`
	OrderOnly       []string `hcl:"order_only,optional"`
	Validations     []string `hcl:"validations,optional"`
	Phony           bool     `hcl:"phony,optional"`
	Restat          bool     `hcl:"restat,optional"`
	Default         bool     `hcl:"default,optional"`
	Depfile         string   `hcl:"depfile,optional"`
	Pool            string   `hcl:"pool,optional"`
	ImplicitOutputs []string `hcl:"implicit_outputs,optional"`
	SymlinkOutputs  []string `hcl:"symlink_outputs,optional"`
}

// Load parses path, assigns its variables into ev, and returns the root
// nodes in declaration order. cfg values are exposed to HCL expressions as
// out_dir, suffix, accel_dir and num_jobs.
func Load(path string, cfg *config.Config, ev *vars.Evaluator) ([]graph.Named, error) {
	hf, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, diags)
	}
	var f File
	if diags := gohcl.DecodeBody(hf.Body, evalContext(cfg), &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, diags)
	}
	varLines, targetLines := blockLines(hf.Body)

	for i := range f.Vars {
		if err := assignVar(ev, path, lineAt(varLines, i), &f.Vars[i]); err != nil {
			return nil, err
		}
	}

	return buildNodes(path, targetLines, f.Targets)
}

// blockLines collects the source line of every var and target block, in
// declaration order per type — the same order gohcl decodes them in, so
// index i of a decoded slice pairs with index i here.
func blockLines(body hcl.Body) (varLines, targetLines []int) {
	syn, ok := body.(*hclsyntax.Body)
	if !ok {
		return nil, nil
	}
	for _, b := range syn.Blocks {
		switch b.Type {
		case "var":
			varLines = append(varLines, b.TypeRange.Start.Line)
		case "target":
			targetLines = append(targetLines, b.TypeRange.Start.Line)
		}
	}
	return varLines, targetLines
}

func lineAt(lines []int, i int) int {
	if i < len(lines) {
		return lines[i]
	}
	return 0
}

func evalContext(cfg *config.Config) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"out_dir":   cty.StringVal(cfg.OutDir),
			"suffix":    cty.StringVal(cfg.Suffix),
			"accel_dir": cty.StringVal(cfg.AccelDir),
			"num_jobs":  cty.NumberIntVal(int64(cfg.NumJobs)),
		},
	}
}

func parseOrigin(s string) (vars.Origin, error) {
	switch s {
	case "", "file":
		return vars.OriginFile, nil
	case "default":
		return vars.OriginDefault, nil
	case "environment":
		return vars.OriginEnvironment, nil
	case "environment_override":
		return vars.OriginEnvironmentOverride, nil
	case "command_line":
		return vars.OriginCommandLine, nil
	case "override":
		return vars.OriginOverride, nil
	}
	return vars.OriginUndefined, fmt.Errorf("unknown variable origin %q", s)
}

func assignVar(ev *vars.Evaluator, file string, line int, b *VarBlock) error {
	origin, err := parseOrigin(b.Origin)
	if err != nil {
		return fmt.Errorf("var %q: %w", b.Name, err)
	}
	value, err := expr.Parse(b.Value)
	if err != nil {
		return fmt.Errorf("var %q: %w", b.Name, err)
	}
	loc := vars.Loc{File: file, Line: line}
	frame := &vars.Frame{Name: b.Name, Loc: loc}

	if b.Append {
		if existing := ev.Vars().Peek(b.Name); existing.IsDefined() {
			if existing.ReadOnly() {
				ev.Logger().Warn(fmt.Sprintf("*** cannot assign to readonly variable: %s", b.Name))
				return nil
			}
			if err := existing.Append(ev, value); err != nil {
				return fmt.Errorf("var %q: %w", b.Name, err)
			}
			existing.SetOp(vars.OpPlusEq)
			return nil
		}
	}

	var v *vars.Var
	switch b.Flavor {
	case "", "recursive":
		v = vars.NewRecursive(value, origin, frame, loc, b.Value)
		v.SetOp(vars.OpEq)
	case "simple":
		v, err = vars.NewSimpleEval(origin, frame, loc, ev, value)
		if err != nil {
			return fmt.Errorf("var %q: %w", b.Name, err)
		}
		v.SetOp(vars.OpColonEq)
	default:
		return fmt.Errorf("var %q: unknown flavor %q", b.Name, b.Flavor)
	}

	applied, readonly := ev.Vars().Assign(b.Name, v)
	if readonly {
		ev.Logger().Warn(fmt.Sprintf("*** cannot assign to readonly variable: %s", b.Name))
	} else if !applied {
		ev.Logger().Debug("assignment ignored by origin precedence",
			"name", b.Name, "origin", origin.String())
	}
	if applied && b.Readonly {
		v.SetReadOnly()
	}

	if b.Export {
		ev.Export(b.Name, true)
	} else if b.Unexport {
		ev.Export(b.Name, false)
	}
	return nil
}

func buildNodes(file string, lines []int, targets []TargetBlock) ([]graph.Named, error) {
	nodes := make(map[string]*graph.Node)
	getNode := func(name string) *graph.Node {
		if n, ok := nodes[name]; ok {
			return n
		}
		n := &graph.Node{Output: name}
		nodes[name] = n
		return n
	}

	var roots []graph.Named
	for i := range targets {
		t := &targets[i]
		node := getNode(t.Output)
		if node.HasRule {
			return nil, fmt.Errorf("target %q is defined more than once", t.Output)
		}

		node.HasRule = true
		node.IsPhony = t.Phony
		node.IsRestat = t.Restat
		node.IsDefaultTarget = t.Default
		node.ImplicitOutputs = t.ImplicitOutputs
		node.SymlinkOutputs = t.SymlinkOutputs
		node.Loc = vars.Loc{File: file, Line: lineAt(lines, i)}

		for _, line := range t.Recipe {
			v, err := expr.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("target %q: %w", t.Output, err)
			}
			node.Recipe = append(node.Recipe, v)
		}
		var err error
		if t.Depfile != "" {
			if node.DepfileVar, err = expr.Parse(t.Depfile); err != nil {
				return nil, fmt.Errorf("target %q: %w", t.Output, err)
			}
		}
		if t.Pool != "" {
			if node.PoolVar, err = expr.Parse(t.Pool); err != nil {
				return nil, fmt.Errorf("target %q: %w", t.Output, err)
			}
		}

		for _, d := range t.Deps {
			node.Deps = append(node.Deps, graph.Dep{Name: d, Node: getNode(d)})
		}
		for _, d := range t.OrderOnly {
			node.OrderOnlys = append(node.OrderOnlys, graph.Dep{Name: d, Node: getNode(d)})
		}
		for _, d := range t.Validations {
			node.Validations = append(node.Validations, graph.Dep{Name: d, Node: getNode(d)})
		}

		roots = append(roots, graph.Named{Name: t.Output, Node: node})
	}

	// Make semantics: the first target is the default when nothing is
	// flagged explicitly.
	if len(roots) > 0 {
		flagged := false
		for _, r := range roots {
			if r.Node.IsDefaultTarget {
				flagged = true
				break
			}
		}
		if !flagged {
			roots[0].Node.IsDefaultTarget = true
		}
	}

	return roots, nil
}
