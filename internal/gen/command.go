package gen

import (
	"path"
	"strings"
)

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}

// translateCommand turns one raw recipe command into a fragment embeddable
// in a ninja command string: comments outside quotes are stripped,
// backslash-newline continuations are joined, bare newlines become spaces,
// every literal $ is doubled, and trailing whitespace and semicolons are
// trimmed. Quoting state (single, double, backtick) is tracked with
// escape awareness so none of this fires inside a quoted region.
func translateCommand(in string) string {
	// Recursive make invocations target the generated file instead.
	if rest, ok := strings.CutPrefix(in, "make "); ok {
		in = "ninja " + rest
	}

	buf := make([]byte, 0, len(in))
	prevBackslash := false
	// Seed with a space so a comment starting the command is stripped.
	prevChar := byte(' ')
	var quote byte

	for i := 0; i < len(in); i++ {
		switch c := in[i]; c {
		case '#':
			if quote == 0 && isSpaceByte(prevChar) {
				// Swallow the comment, newline included.
				for i+1 < len(in) && in[i] != '\n' {
					i++
				}
			} else {
				buf = append(buf, c)
			}

		case '\'', '"', '`':
			if quote != 0 {
				if quote == c {
					quote = 0
				}
			} else if !prevBackslash {
				quote = c
			}
			buf = append(buf, c)

		case '$':
			buf = append(buf, '$', '$')

		case '\n':
			if prevBackslash {
				buf = buf[:len(buf)-1]
			} else {
				buf = append(buf, ' ')
			}

		case '\\':
			buf = append(buf, '\\')

		default:
			buf = append(buf, c)
		}

		if in[i] == '\\' {
			prevBackslash = !prevBackslash
		} else {
			prevBackslash = false
		}
		prevChar = in[i]
	}

	if prevBackslash {
		buf = buf[:len(buf)-1]
	}

	for len(buf) > 0 {
		c := buf[len(buf)-1]
		if !isSpaceByte(c) && c != ';' {
			break
		}
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

// descriptionFromEcho extracts a human-readable description from a command
// that is exactly a plain echo: quoting must resolve fully and the echoed
// text must contain no shell metacharacters, otherwise extraction fails and
// the command is kept.
func descriptionFromEcho(cmd string) (string, bool) {
	rest, ok := strings.CutPrefix(cmd, "echo ")
	if !ok {
		return "", false
	}

	prevBackslash := false
	var quote byte
	var out strings.Builder

	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case prevBackslash:
			prevBackslash = false
			out.WriteByte(c)
		case c == '\\':
			prevBackslash = true
			out.WriteByte(c)
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				out.WriteByte(c)
			}
		default:
			switch c {
			case '\'', '"', '`':
				quote = c
			case '<', '>', '&', '|', ';':
				return "", false
			default:
				out.WriteByte(c)
			}
		}
	}
	return out.String(), true
}

// isOutputMkdir reports whether cmd is exactly "mkdir -p <dir>" for the
// directory portion of the output name. The executor creates parent
// directories of declared outputs itself, so such a command is redundant.
func isOutputMkdir(output, cmd string) bool {
	dir, ok := strings.CutPrefix(cmd, "mkdir -p ")
	if !ok {
		return false
	}
	dir = strings.TrimSuffix(dir, "/")
	if !strings.ContainsRune(output, '/') {
		return false
	}
	return dir == path.Dir(output)
}

// accelPos returns the byte position where the acceleration wrapper should
// be spliced into cmdline, or -1 when the command is not a recognized
// native-compiler invocation. A leading ccache wrapper is skipped
// recursively; the compiler must live under a prebuilts gcc/clang path and
// the command must compile (-c).
func accelPos(cmdline string) int {
	idx := strings.IndexByte(cmdline, ' ')
	if idx < 0 {
		return -1
	}
	cmd := cmdline[:idx]
	if strings.HasSuffix(cmd, "ccache") {
		idx++
		pos := accelPos(cmdline[idx:])
		if pos < 0 {
			return -1
		}
		return pos + idx
	}
	rest, ok := strings.CutPrefix(cmd, "prebuilts/")
	if !ok {
		return -1
	}
	if r, ok := strings.CutPrefix(rest, "gcc/"); ok {
		rest = r
	} else if r, ok := strings.CutPrefix(rest, "clang/"); ok {
		rest = r
	} else {
		return -1
	}
	if !strings.HasSuffix(rest, "gcc") && !strings.HasSuffix(rest, "g++") &&
		!strings.HasSuffix(rest, "clang") && !strings.HasSuffix(rest, "clang++") {
		return -1
	}
	if !strings.Contains(cmdline[idx:], " -c ") {
		return -1
	}
	return 0
}

// synthesize joins the realized commands of one node into a single
// shell-safe command string. It returns the string, the extracted
// description (empty when none was found), and whether the node should run
// in the shared local pool because acceleration is configured but this
// command does not use the wrapper.
func (g *Generator) synthesize(output string, cmds []*command) (string, string, bool) {
	var cmdBuf string
	var description string
	gotDescription := false
	useAccelWrapper := false
	commandCount := len(cmds)

	for _, c := range cmds {
		in := strings.TrimLeft(c.cmd, " \t\n\v\f\r")
		needsSubshell := commandCount > 1 || c.ignoreError

		translated := translateCommand(in)
		if g.cfg.AndroidHeuristics && !c.echo {
			if !gotDescription {
				if d, ok := descriptionFromEcho(translated); ok {
					gotDescription = true
					description = d
					translated = ""
				}
			}
			if translated != "" && cmdBuf == "" && isOutputMkdir(output, translated) {
				translated = ""
			}
		}
		if translated == "" {
			commandCount--
			continue
		}

		if g.cfg.AccelDir != "" {
			if pos := accelPos(translated); pos >= 0 {
				translated = translated[:pos] + g.accelPrefix + translated[pos:]
				useAccelWrapper = true
			}
		} else if strings.Contains(translated, "/accelcc") {
			useAccelWrapper = true
		}

		piece := translated
		if c.ignoreError {
			piece += " ; true"
		}
		if needsSubshell {
			piece = "(" + piece + " )"
		}
		if cmdBuf != "" {
			cmdBuf += " && "
		}
		cmdBuf += piece
	}

	useLocalPool := (g.useAccel || g.cfg.RemoteNumJobs > 0 || g.cfg.AccelDir != "") &&
		!useAccelWrapper
	return cmdBuf, description, useLocalPool
}

// escapeShell prepares a command string for embedding inside the double
// quotes of `sh -c "..."`: backquotes, double quotes, backslashes and
// newlines are backslash-escaped, and of every ninja-doubled $$ the first $
// is escaped so the shell sees a literal dollar after ninja unescapes.
func escapeShell(s string) string {
	if !strings.ContainsAny(s, "$`\"\\\n") {
		return s
	}
	var sb strings.Builder
	lastDollar := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '$':
			if lastDollar {
				sb.WriteByte(c)
				lastDollar = false
			} else {
				sb.WriteString("\\$")
				lastDollar = true
			}
		case '`', '"', '\\', '\n':
			sb.WriteByte('\\')
			sb.WriteByte(c)
			lastDollar = false
		default:
			sb.WriteByte(c)
			lastDollar = false
		}
	}
	return sb.String()
}
