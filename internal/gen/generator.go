// Package gen lowers a resolved dependency graph into a ninja build file,
// companion launcher scripts, and the incremental-regeneration stamp. The
// graph is walked exactly once; each reachable node with a rule is realized
// into concrete commands against the variable environment and emitted as a
// rule/build statement pair.
package gen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vk/mk2ninja/internal/config"
	"github.com/vk/mk2ninja/internal/ctxlog"
	"github.com/vk/mk2ninja/internal/graph"
	"github.com/vk/mk2ninja/internal/stamp"
	"github.com/vk/mk2ninja/internal/vars"
)

const version = "0.9.1"

// alwaysBuildTarget is the injected dependency that forces phony edges to
// re-run when the target format has no native phony-output support.
const alwaysBuildTarget = "_mk2ninja_always_build_"

// command is one realized recipe line.
type command struct {
	cmd string
	// echo is false when the recipe line carried a leading @ marker.
	echo bool
	// ignoreError is true when the recipe line carried a leading - marker.
	ignoreError bool
}

// ninjaNode pairs a graph node with its realized command list and rule id.
// ruleID is -1 for nodes without commands, which are emitted under the
// universal phony rule.
type ninjaNode struct {
	node     *graph.Node
	commands []*command
	ruleID   int
}

// Inputs carries the external-input traces accumulated before lowering
// runs: the makefiles that were read and the replayed results of the shell
// and glob layer. They flow unmodified into the stamp record.
type Inputs struct {
	Makefiles    []string
	Globs        []stamp.Glob
	ShellResults []stamp.ShellResult
}

// Generator performs one lowering run. It is single-use: create, Generate,
// discard.
type Generator struct {
	cfg    *config.Config
	ev     *vars.Evaluator
	inputs Inputs
	logger *slog.Logger

	startTime  time.Time
	binaryPath string

	shell       string
	shellFlag   string
	accelPrefix string
	useAccel    bool

	ruleID int
	done   map[string]struct{}
	nodes  []*ninjaNode

	usedEnvs []stamp.EnvVar

	// mu guards defaultTarget. Today traversal is single-threaded; the
	// guard keeps the tracker correct under a future parallel evaluator.
	mu            sync.Mutex
	defaultTarget *graph.Node
}

// New prepares a generator over an already-populated environment.
func New(cfg *config.Config, ev *vars.Evaluator, inputs Inputs) (*Generator, error) {
	g := &Generator{
		cfg:       cfg,
		ev:        ev,
		inputs:    inputs,
		logger:    ev.Logger(),
		startTime: time.Now(),
		shell:     escapeNinja(ev.Shell()),
		shellFlag: escapeNinja(ev.ShellFlag()),
		done:      make(map[string]struct{}),
	}

	useAccel, err := ev.ExpandVar("USE_ACCEL")
	if err != nil {
		return nil, err
	}
	g.useAccel = !(useAccel == "" || useAccel == "false")
	if cfg.AccelDir != "" {
		g.accelPrefix = cfg.AccelDir + "/accelcc "
	}

	if exe, err := os.Executable(); err == nil {
		g.binaryPath = exe
	} else {
		g.binaryPath = os.Args[0]
	}
	return g, nil
}

// Generate walks the graph from roots and writes the build file, the
// environment and launcher scripts, and the stamp. origArgs is the original
// command line, recorded in the stamp for the regeneration check.
func (g *Generator) Generate(ctx context.Context, roots []graph.Named, origArgs string) error {
	g.logger = ctxlog.FromContext(ctx)

	// Remove the old stamp first: if this run is interrupted the next one
	// must regenerate rather than trust stale state.
	os.Remove(g.stampPath())

	for _, root := range roots {
		if err := g.populate(root.Node); err != nil {
			return err
		}
	}
	if err := g.generateNinja(); err != nil {
		return err
	}
	if err := g.generateShell(); err != nil {
		return err
	}
	return g.generateStamp(origArgs)
}

func (g *Generator) ninjaPath() string { return g.cfg.Filename("build%s.ninja") }
func (g *Generator) envScriptPath() string {
	return g.cfg.Filename("env%s.sh")
}
func (g *Generator) launcherPath() string {
	return g.cfg.Filename("ninja%s.sh")
}
func (g *Generator) stampPath() string {
	return g.cfg.Filename(".mk2ninja_stamp%s")
}

// populate realizes node and everything reachable from it, depth-first over
// (deps, order-onlys, validations) in enumeration order. The visited set is
// keyed by output name, so a node reached over several edges is realized
// exactly once; traversal order fixes rule-id assignment and therefore the
// byte order of the generated file.
func (g *Generator) populate(node *graph.Node) error {
	if _, ok := g.done[node.Output]; ok {
		return nil
	}
	g.done[node.Output] = struct{}{}

	// The Android tree has a phony "out" target; realizing it would make
	// "ninja -t clean" try to remove the output directory.
	if g.cfg.AndroidHeuristics && node.Output == "out" {
		return nil
	}

	// Pure leaves: no rule, not phony. They stay reachable as names other
	// builds depend on, but get no rule/build of their own.
	if node.HasRule || node.IsPhony {
		cmds, err := g.evalCommands(node)
		if err != nil {
			return fmt.Errorf("realizing %s: %w", node.Output, err)
		}
		nn := &ninjaNode{node: node, commands: cmds, ruleID: -1}
		if len(cmds) > 0 {
			nn.ruleID = g.ruleID
			g.ruleID++
		}
		g.nodes = append(g.nodes, nn)
	} else {
		return nil
	}

	for _, d := range node.Deps {
		if err := g.populate(d.Node); err != nil {
			return err
		}
	}
	for _, d := range node.OrderOnlys {
		if err := g.populate(d.Node); err != nil {
			return err
		}
	}
	for _, d := range node.Validations {
		if err := g.populate(d.Node); err != nil {
			return err
		}
	}
	return nil
}

// evalCommands realizes the node's recipe lines against the environment
// with the automatic variables scoped in. Leading @ and - markers become
// the echo and ignore-error flags; lines that evaluate to nothing are
// dropped.
func (g *Generator) evalCommands(node *graph.Node) ([]*command, error) {
	exit := g.ev.EnterFrame("ninja: "+node.Output, node.Loc)
	defer exit()
	g.ev.SetLoc(node.Loc)

	depNames := make([]string, len(node.Deps))
	for i, d := range node.Deps {
		depNames[i] = d.Name
	}
	firstDep := ""
	if len(depNames) > 0 {
		firstDep = depNames[0]
	}

	env := g.ev.Vars()
	auto := func(v string) *vars.Var {
		return vars.NewSimple(v, vars.OriginAutomatic, nil, node.Loc)
	}
	svOut := vars.NewScoped(env, "@", auto(node.Output))
	defer svOut.Restore()
	svFirst := vars.NewScoped(env, "<", auto(firstDep))
	defer svFirst.Restore()
	svAll := vars.NewScoped(env, "^", auto(strings.Join(depNames, " ")))
	defer svAll.Restore()

	var cmds []*command
	for _, line := range node.Recipe {
		s, err := g.ev.EvalValue(line)
		if err != nil {
			return nil, err
		}
		s = strings.TrimLeft(s, " \t")
		echo := true
		ignoreError := false
	markers:
		for len(s) > 0 {
			switch s[0] {
			case '@':
				echo = false
			case '-':
				ignoreError = true
			case '+':
				// "run even under -n"; no effect here.
			default:
				break markers
			}
			s = s[1:]
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		cmds = append(cmds, &command{cmd: s, echo: echo, ignoreError: ignoreError})
	}
	return cmds, nil
}
