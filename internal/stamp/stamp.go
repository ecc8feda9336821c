// Package stamp serializes the regeneration-invalidation record: every
// external input consulted during a generation run, in a fixed
// little-endian binary layout. The writer is atomic — a crash before the
// final rename leaves the previous stamp intact.
package stamp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// CommandOp classifies a recorded shell-layer invocation.
type CommandOp int32

const (
	OpShell CommandOp = iota
	OpFind
	OpRead
	OpReadMissing
)

// Glob is one glob pattern and its result file list.
type Glob struct {
	Pattern string
	Files   []string
}

// FindResult carries the filesystem-scan details of an OpFind invocation.
type FindResult struct {
	MissingDirs []string
	FoundFiles  []string
	ReadDirs    []string
}

// ShellResult is one replayed shell-layer invocation.
type ShellResult struct {
	Op        CommandOp
	Shell     string
	ShellFlag string
	Cmd       string
	Result    string
	File      string
	Line      int
	// Find is set only when Op == OpFind.
	Find *FindResult
}

// EnvVar is one consulted environment variable and its captured value.
type EnvVar struct {
	Name  string
	Value string
}

// Record is the full stamp payload, in serialization order.
type Record struct {
	StartTime     float64
	BinaryPath    string
	Makefiles     []string
	UndefinedVars []string
	Envs          []EnvVar
	Globs         []Glob
	ShellResults  []ShellResult
	OrigArgs      string
}

// Write serializes rec to path atomically: the bytes go to path + ".tmp"
// first and are renamed into place only after a successful flush.
func Write(path string, rec *Record) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create stamp temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := rec.encode(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write stamp: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush stamp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close stamp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename stamp into place: %w", err)
	}
	return nil
}

func (r *Record) encode(w io.Writer) error {
	e := encoder{w: w}
	e.float64(r.StartTime)

	// The tool binary is dumped as the first "makefile": a changed binary
	// invalidates the stamp the same way a changed makefile does.
	e.int32(int32(len(r.Makefiles) + 1))
	e.str(r.BinaryPath)
	for _, m := range r.Makefiles {
		e.str(m)
	}

	e.int32(int32(len(r.UndefinedVars)))
	for _, v := range r.UndefinedVars {
		e.str(v)
	}

	e.int32(int32(len(r.Envs)))
	for _, env := range r.Envs {
		e.str(env.Name)
		e.str(env.Value)
	}

	e.int32(int32(len(r.Globs)))
	for _, g := range r.Globs {
		e.str(g.Pattern)
		e.int32(int32(len(g.Files)))
		for _, f := range g.Files {
			e.str(f)
		}
	}

	e.int32(int32(len(r.ShellResults)))
	for i := range r.ShellResults {
		cr := &r.ShellResults[i]
		e.int32(int32(cr.Op))
		e.str(cr.Shell)
		e.str(cr.ShellFlag)
		e.str(cr.Cmd)
		e.str(cr.Result)
		e.str(cr.File)
		e.int32(int32(cr.Line))
		if cr.Op == OpFind {
			find := cr.Find
			if find == nil {
				find = &FindResult{}
			}
			e.strList(find.MissingDirs)
			e.strList(find.FoundFiles)
			e.strList(find.ReadDirs)
		}
	}

	e.str(r.OrigArgs)
	return e.err
}

// Read decodes a stamp previously produced by Write.
func Read(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := decoder{r: bufio.NewReader(f)}
	rec := &Record{}
	rec.StartTime = d.float64()

	n := d.int32()
	if d.err == nil && n < 1 {
		return nil, errors.New("stamp: corrupt makefile count")
	}
	rec.BinaryPath = d.str()
	for i := int32(1); i < n; i++ {
		rec.Makefiles = append(rec.Makefiles, d.str())
	}

	for i, n := int32(0), d.int32(); i < n; i++ {
		rec.UndefinedVars = append(rec.UndefinedVars, d.str())
	}
	for i, n := int32(0), d.int32(); i < n; i++ {
		rec.Envs = append(rec.Envs, EnvVar{Name: d.str(), Value: d.str()})
	}
	for i, n := int32(0), d.int32(); i < n; i++ {
		g := Glob{Pattern: d.str()}
		for j, m := int32(0), d.int32(); j < m; j++ {
			g.Files = append(g.Files, d.str())
		}
		rec.Globs = append(rec.Globs, g)
	}
	for i, n := int32(0), d.int32(); i < n; i++ {
		cr := ShellResult{
			Op:        CommandOp(d.int32()),
			Shell:     d.str(),
			ShellFlag: d.str(),
			Cmd:       d.str(),
			Result:    d.str(),
			File:      d.str(),
			Line:      int(d.int32()),
		}
		if cr.Op == OpFind {
			cr.Find = &FindResult{
				MissingDirs: d.strList(),
				FoundFiles:  d.strList(),
				ReadDirs:    d.strList(),
			}
		}
		rec.ShellResults = append(rec.ShellResults, cr)
	}
	rec.OrigArgs = d.str()

	if d.err != nil {
		return nil, fmt.Errorf("stamp: %w", d.err)
	}
	return rec, nil
}

type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) write(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *encoder) float64(v float64) { e.write(v) }
func (e *encoder) int32(v int32)     { e.write(v) }

func (e *encoder) str(s string) {
	e.int32(int32(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

func (e *encoder) strList(list []string) {
	e.int32(int32(len(list)))
	for _, s := range list {
		e.str(s)
	}
}

type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) read(v any) {
	if d.err != nil {
		return
	}
	d.err = binary.Read(d.r, binary.LittleEndian, v)
}

func (d *decoder) float64() (v float64) { d.read(&v); return }
func (d *decoder) int32() (v int32)     { d.read(&v); return }

func (d *decoder) str() string {
	n := d.int32()
	if d.err != nil {
		return ""
	}
	if n < 0 {
		d.err = errors.New("negative string length")
		return ""
	}
	buf := make([]byte, n)
	_, d.err = io.ReadFull(d.r, buf)
	return string(buf)
}

func (d *decoder) strList() []string {
	n := d.int32()
	var list []string
	for i := int32(0); i < n; i++ {
		list = append(list, d.str())
	}
	return list
}
