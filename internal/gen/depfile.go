package gen

import "strings"

// findFlag locates a command line flag such as " -MD" in cmd. The name
// carries its leading space; a hit at position zero would mean the command
// itself starts with the flag, which is never a real invocation.
func findFlag(cmd, name string) int {
	found := strings.Index(cmd, name)
	if found <= 0 {
		return -1
	}
	return found
}

// findFlagArg returns the argument following the last occurrence of a flag
// such as " -MF" or " -o", or "" when the flag is absent.
func findFlagArg(cmd, name string) string {
	idx := findFlag(cmd, name)
	if idx < 0 {
		return ""
	}
	val := strings.TrimLeft(cmd[idx+len(name):], " \t")
	for {
		j := strings.Index(val, name)
		if j < 0 {
			break
		}
		val = strings.TrimLeft(val[j+len(name):], " \t")
	}
	if k := strings.IndexAny(val, " \t"); k >= 0 {
		val = val[:k]
	}
	return val
}

func stripExt(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

func basename(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// depfileFromCommandImpl derives the dependency file a compiler invocation
// will write: it needs both a -MD/-MMD and a -c flag, prefers an explicit
// -MF argument, and otherwise rewrites the -o argument's extension to .d.
// A missing -o is reported and detection is skipped; the build still works,
// it just rebuilds more than needed.
func (g *Generator) depfileFromCommandImpl(cmd string) (string, bool) {
	if (findFlag(cmd, " -MD") < 0 && findFlag(cmd, " -MMD") < 0) ||
		findFlag(cmd, " -c") < 0 {
		return "", false
	}

	if mf := findFlagArg(cmd, " -MF"); mf != "" {
		return mf, true
	}

	o := findFlagArg(cmd, " -o")
	if o == "" {
		g.logger.Error("cannot find the depfile", "cmd", cmd)
		return "", false
	}
	return stripExt(o) + ".d", true
}

// depfileFromCommand applies the corrective heuristics on top of the plain
// derivation and may rewrite the command:
//   - llvm-rs-cc claims -MD but emits no dep file: detection disabled.
//   - a build convention renames .d to .P; when the command mentions the .P
//     sibling, the "; rm -f <depfile>" cleanup is stripped so the executor
//     can read the file (missing cleanup is an error: deleting without the
//     rm would corrupt behavior).
//   - assembler sources ignore -MF: detection disabled.
//   - otherwise the depfile is copied to a .tmp sibling and the .tmp path
//     is declared, decoupling what the executor reads from the transient
//     compiler write.
func (g *Generator) depfileFromCommand(cmd *string) (string, bool) {
	out, ok := g.depfileFromCommandImpl(*cmd)
	if !ok {
		return "", false
	}

	if strings.Contains(*cmd, "bin/llvm-rs-cc ") {
		return "", false
	}

	p := stripExt(out) + ".P"
	if strings.Contains(*cmd, p) {
		rmf := "; rm -f " + out
		found := strings.Index(*cmd, rmf)
		if found < 0 {
			g.logger.Error("cannot find removal of .d file", "cmd", *cmd)
			return "", false
		}
		*cmd = (*cmd)[:found] + (*cmd)[found+len(rmf):]
		return out, true
	}

	as := "/" + stripExt(basename(out)) + ".s"
	if strings.Contains(*cmd, as) {
		return "", false
	}

	*cmd += "&& cp " + out + " " + out + ".tmp "
	return out + ".tmp", true
}

// getDepfile resolves the depfile to declare for node: an explicit depfile
// variable wins; otherwise discovery runs over the synthesized command when
// auto-detection is enabled, possibly rewriting it.
func (g *Generator) getDepfile(node *ninjaNode, cmdBuf *string) (string, bool, error) {
	if node.node.DepfileVar != nil {
		depfile, err := g.ev.EvalValue(node.node.DepfileVar)
		if err != nil {
			return "", false, err
		}
		return depfile, true, nil
	}
	if !g.cfg.DetectDepfiles {
		return "", false, nil
	}

	// The trailing sentinel space lets flag searches match at the end of
	// the command; the rewrite appends with a trailing space of its own,
	// so exactly one byte comes off afterwards either way.
	*cmdBuf += " "
	depfile, ok := g.depfileFromCommand(cmdBuf)
	*cmdBuf = (*cmdBuf)[:len(*cmdBuf)-1]
	return depfile, ok, nil
}
