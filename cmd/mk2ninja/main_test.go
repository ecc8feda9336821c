package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
var "CC" {
  value  = "gcc"
  flavor = "simple"
}

var "OUT" {
  value  = "out"
  export = true
}

target "all" {
  phony   = true
  deps    = ["out/foo.o"]
  default = true
}

target "out/foo.o" {
  recipe = ["@echo building $@", "$(CC) -c -o $@ $<"]
  deps   = ["foo.c"]
}
`

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.hcl")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0644))

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"-C", dir, "-android-heuristics", "-debug-comments", path}))

	ninja, err := os.ReadFile(filepath.Join(dir, "build.ninja"))
	require.NoError(t, err)
	s := string(ninja)
	assert.Contains(t, s, "# "+path+":12\nbuild all: phony")
	assert.Contains(t, s, "# "+path+":18\n")
	assert.Contains(t, s, "build all: phony")
	assert.Contains(t, s, "build out/foo.o: rule0 foo.c")
	assert.Contains(t, s, " description = building out/foo.o\n")
	assert.Contains(t, s, `command = /bin/sh -c "gcc -c -o out/foo.o foo.c"`)
	assert.Contains(t, s, "\ndefault all\n")

	env, err := os.ReadFile(filepath.Join(dir, "env.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "export 'OUT'='out'\n")

	launcher, err := os.ReadFile(filepath.Join(dir, "ninja.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(launcher), "exec ninja -f "+dir+"/build.ninja")

	_, err = os.Stat(filepath.Join(dir, ".mk2ninja_stamp"))
	assert.NoError(t, err)
}

func TestRunWithSuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.hcl")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0644))

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"-C", dir, "-suffix", "-arm", path}))

	for _, name := range []string{"build-arm.ninja", "env-arm.sh", "ninja-arm.sh", ".mk2ninja_stamp-arm"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunHelpOnly(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, nil))
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunErrors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		var out bytes.Buffer
		err := run(&out, []string{filepath.Join(t.TempDir(), "absent.hcl")})
		assert.ErrorContains(t, err, "failed to parse manifest")
	})

	t.Run("bad flag value", func(t *testing.T) {
		var out bytes.Buffer
		err := run(&out, []string{"-j", "-3", "build.hcl"})
		assert.ErrorContains(t, err, "num_jobs must be positive")
	})
}
