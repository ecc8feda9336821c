package gen

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vk/mk2ninja/internal/stamp"
)

// commandSizeThreshold is the inline-command limit. Linux tolerates about
// 130kB and Mac about 250kB of command line; anything longer goes through a
// response file.
const commandSizeThreshold = 100 * 1000

// escapeNinja escapes the characters ninja treats specially in paths and
// values.
func escapeNinja(s string) string {
	if !strings.ContainsAny(s, "$: ") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '$', ':', ' ':
			sb.WriteByte('$')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// isSpecialTarget reports reserved Make special-target names (".PHONY",
// ".SUFFIXES", ...), which never become build statements.
func isSpecialTarget(output string) bool {
	return strings.HasPrefix(output, ".") && !strings.ContainsRune(output, '/')
}

// emitNode writes the rule and build statements for one realized node.
func (g *Generator) emitNode(nn *ninjaNode, out *bytes.Buffer) error {
	node := nn.node

	ruleName := "phony"
	useLocalPool := false
	if isSpecialTarget(node.Output) {
		return nil
	}
	if g.cfg.EnableDebug {
		file := node.Loc.File
		if file == "" {
			file = "(null)"
		}
		fmt.Fprintf(out, "# %s:%d\n", file, node.Loc.Line)
	}
	if len(nn.commands) > 0 {
		ruleName = fmt.Sprintf("rule%d", nn.ruleID)
		fmt.Fprintf(out, "rule %s\n", ruleName)

		cmdBuf, description, ulp := g.synthesize(node.Output, nn.commands)
		if description == "" {
			description = "build $out"
		}
		useLocalPool = ulp
		fmt.Fprintf(out, " description = %s\n", description)

		depfile, ok, err := g.getDepfile(nn, &cmdBuf)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(out, " depfile = %s\n", depfile)
			fmt.Fprintf(out, " deps = gcc\n")
		}

		if len(cmdBuf) > commandSizeThreshold {
			fmt.Fprintf(out, " rspfile = $out.rsp\n")
			fmt.Fprintf(out, " rspfile_content = %s\n", cmdBuf)
			fmt.Fprintf(out, " command = %s $out.rsp\n", g.shell)
		} else {
			fmt.Fprintf(out, " command = %s %s \"%s\"\n", g.shell, g.shellFlag, escapeShell(cmdBuf))
		}
		if node.IsRestat {
			fmt.Fprintf(out, " restat = 1\n")
		}
	}

	return g.emitBuild(nn, ruleName, useLocalPool, out)
}

// emitBuild writes the build statement binding the rule to its outputs and
// the three dependency classes, plus the per-edge bindings.
func (g *Generator) emitBuild(nn *ninjaNode, ruleName string, useLocalPool bool, out *bytes.Buffer) error {
	node := nn.node

	fmt.Fprintf(out, "build %s", escapeNinja(node.Output))
	if len(node.ImplicitOutputs) > 0 {
		out.WriteString(" |")
		for _, o := range node.ImplicitOutputs {
			out.WriteString(" " + escapeNinja(o))
		}
	}
	fmt.Fprintf(out, ": %s", ruleName)
	if node.IsPhony && !g.cfg.UsePhonyOutput {
		out.WriteString(" " + alwaysBuildTarget)
	}
	for _, d := range node.Deps {
		out.WriteString(" " + escapeNinja(d.Name))
	}
	if len(node.OrderOnlys) > 0 {
		out.WriteString(" ||")
		for _, d := range node.OrderOnlys {
			out.WriteString(" " + escapeNinja(d.Name))
		}
	}
	if len(node.Validations) > 0 {
		out.WriteString(" |@")
		for _, d := range node.Validations {
			out.WriteString(" " + escapeNinja(d.Name))
		}
	}
	out.WriteByte('\n')

	if len(node.SymlinkOutputs) > 0 {
		out.WriteString(" symlink_outputs =")
		for _, s := range node.SymlinkOutputs {
			out.WriteString(" " + escapeNinja(s))
		}
		out.WriteByte('\n')
	}

	var pool string
	if node.PoolVar != nil {
		var err error
		if pool, err = g.ev.EvalValue(node.PoolVar); err != nil {
			return err
		}
	}
	if pool != "" {
		if pool != "none" {
			fmt.Fprintf(out, " pool = %s\n", pool)
		}
	} else if g.cfg.DefaultPool != "" && ruleName != "phony" {
		fmt.Fprintf(out, " pool = %s\n", g.cfg.DefaultPool)
	} else if useLocalPool {
		fmt.Fprintf(out, " pool = local_pool\n")
	}
	if node.IsPhony && g.cfg.UsePhonyOutput {
		fmt.Fprintf(out, " phony_output = true\n")
	}

	if node.IsDefaultTarget {
		g.mu.Lock()
		g.defaultTarget = node
		g.mu.Unlock()
	}
	return nil
}

// generateNinja emits the build file: header, used-environment comment,
// prelude, every realized node in traversal order, and the default line.
func (g *Generator) generateNinja() error {
	// Realize the node section first; emission evaluates depfile and pool
	// variables, and the used-environment header must observe those reads.
	var body bytes.Buffer
	if !g.cfg.GenerateEmpty {
		for _, nn := range g.nodes {
			if err := g.emitNode(nn, &body); err != nil {
				return err
			}
		}
	}
	g.captureUsedEnvs()

	var out bytes.Buffer
	fmt.Fprintf(&out, "# Generated by mk2ninja %s\n\n", version)

	if len(g.usedEnvs) > 0 {
		out.WriteString("# Environment variables used:\n")
		for _, e := range g.usedEnvs {
			fmt.Fprintf(&out, "# %s=%s\n", e.Name, e.Value)
		}
		out.WriteByte('\n')
	}

	if !g.cfg.NoPrelude {
		if g.cfg.OutDir != "" && g.cfg.OutDir != "." {
			fmt.Fprintf(&out, "builddir = %s\n\n", g.cfg.OutDir)
		}
		fmt.Fprintf(&out, "pool local_pool\n depth = %d\n\n", g.cfg.NumJobs)
		if !g.cfg.UsePhonyOutput {
			fmt.Fprintf(&out, "build %s: phony\n\n", alwaysBuildTarget)
		}
	}

	out.Write(body.Bytes())

	if !g.cfg.GenerateEmpty {
		defaultTargets, err := g.defaultTargets()
		if err != nil {
			return err
		}
		fmt.Fprintf(&out, "\ndefault %s\n", defaultTargets)
	}

	if err := os.WriteFile(g.ninjaPath(), out.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", g.ninjaPath(), err)
	}
	return nil
}

// defaultTargets renders the default line: explicitly requested targets
// win; otherwise the tracked default node is required to exist.
func (g *Generator) defaultTargets() (string, error) {
	if len(g.cfg.Targets) == 0 {
		g.mu.Lock()
		dt := g.defaultTarget
		g.mu.Unlock()
		if dt == nil {
			return "", fmt.Errorf("no default target was found")
		}
		return escapeNinja(dt.Output), nil
	}
	escaped := make([]string, len(g.cfg.Targets))
	for i, t := range g.cfg.Targets {
		escaped[i] = escapeNinja(t)
	}
	return strings.Join(escaped, " "), nil
}

// captureUsedEnvs snapshots the value of every consulted environment
// variable. PATH is always included: shell invocations depend on it.
func (g *Generator) captureUsedEnvs() {
	names := g.ev.Vars().UsedEnv()
	hasPath := false
	for _, n := range names {
		if n == "PATH" {
			hasPath = true
			break
		}
	}
	if !hasPath {
		names = append(names, "PATH")
		sort.Strings(names)
	}
	g.usedEnvs = g.usedEnvs[:0]
	for _, n := range names {
		g.usedEnvs = append(g.usedEnvs, stamp.EnvVar{Name: n, Value: os.Getenv(n)})
	}
}

// generateShell writes the environment-export script and the launcher that
// sources it and execs ninja.
func (g *Generator) generateShell() error {
	var env bytes.Buffer
	fmt.Fprintf(&env, "#!/bin/sh\n# Generated by mk2ninja %s\n\n", version)
	for _, e := range g.ev.Exports() {
		if e.Exported {
			val, err := g.ev.ExpandVar(e.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(&env, "export '%s'='%s'\n", e.Name, val)
		} else {
			fmt.Fprintf(&env, "unset '%s'\n", e.Name)
		}
	}
	if err := os.WriteFile(g.envScriptPath(), env.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", g.envScriptPath(), err)
	}

	var sh bytes.Buffer
	fmt.Fprintf(&sh, "#!/bin/sh\n# Generated by mk2ninja %s\n\n", version)
	fmt.Fprintf(&sh, ". %s\n", g.envScriptPath())
	fmt.Fprintf(&sh, "exec ninja -f %s ", g.ninjaPath())
	if g.cfg.RemoteNumJobs > 0 {
		fmt.Fprintf(&sh, "-j%d ", g.cfg.RemoteNumJobs)
	} else if g.cfg.AccelDir != "" {
		fmt.Fprintf(&sh, "-j500 ")
	}
	fmt.Fprintf(&sh, "\"$@\"\n")
	if err := os.WriteFile(g.launcherPath(), sh.Bytes(), 0755); err != nil {
		return fmt.Errorf("write %s: %w", g.launcherPath(), err)
	}
	return nil
}

// generateStamp records every external input consulted during the run and
// writes it atomically over the previous stamp.
func (g *Generator) generateStamp(origArgs string) error {
	rec := &stamp.Record{
		StartTime:     float64(g.startTime.UnixNano()) / 1e9,
		BinaryPath:    g.binaryPath,
		Makefiles:     g.inputs.Makefiles,
		UndefinedVars: g.ev.Vars().UsedUndefined(),
		Envs:          g.usedEnvs,
		Globs:         g.inputs.Globs,
		ShellResults:  g.inputs.ShellResults,
		OrigArgs:      origArgs,
	}
	return stamp.Write(g.stampPath(), rec)
}
