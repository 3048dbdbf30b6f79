package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func setup(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "presets")
	t.Setenv("PARAMTREE_CONFIG", "")
	t.Setenv("PARAMTREE_PRESETS_BACKEND", "file")
	t.Setenv("PARAMTREE_PRESETS_DIR", dir)
	t.Setenv("PARAMTREE_LOGGING_LEVEL", "error")
	return dir
}

func paramctl(t *testing.T, args ...string) result {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(args, &out, &errb)
	return result{code: code, stdout: out.String(), stderr: errb.String()}
}

func TestSetGet_PersistsAcrossInvocations(t *testing.T) {
	dir := setup(t)

	r := paramctl(t, "set", "lighting.main.intensity", "0.5")
	require.Equal(t, 0, r.code, r.stderr)
	assert.FileExists(t, filepath.Join(dir, "current.toml"))

	r = paramctl(t, "get", "lighting.main.intensity", "mesh.deflection")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "lighting.main.intensity = 0.5\nmesh.deflection = 0.5\n", r.stdout)
}

func TestSet_Errors(t *testing.T) {
	setup(t)

	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"unknown parameter", []string{"set", "lighting.main.nope", "1"}, "unknown parameter"},
		{"unknown system", []string{"set", "audio.volume", "1"}, "audio"},
		{"unregistered system", []string{"set", "display.gamma", "1"}, "not registered"},
		{"bad text", []string{"set", "lighting.main.intensity", "bright"}, "parse float"},
		{"out of range", []string{"set", "lighting.main.intensity", "99"}, ""},
		{"bad kind", []string{"set", "--kind", "matrix", "lighting.extra", "1"}, "unknown value kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := paramctl(t, tt.args...)
			assert.Equal(t, 1, r.code)
			assert.Contains(t, r.stderr, "Error: ")
			assert.Contains(t, r.stderr, tt.msg)
		})
	}
}

func TestSet_CreateColor(t *testing.T) {
	setup(t)

	r := paramctl(t, "set", "--kind", "vector", "lighting.fill.color", "#ff0000")
	require.Equal(t, 0, r.code, r.stderr)

	r = paramctl(t, "get", "lighting.fill.color")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "lighting.fill.color = 1,0,0 (#ff0000)\n", r.stdout)

	// existing vector parameters parse colors too
	r = paramctl(t, "set", "lighting.fill.color", "#00ff00")
	require.Equal(t, 0, r.code, r.stderr)
	r = paramctl(t, "get", "lighting.fill.color")
	assert.Contains(t, r.stdout, "#00ff00")
}

func TestList(t *testing.T) {
	setup(t)

	r := paramctl(t, "list", "lighting")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "lighting.ambient.intensity = 0.8\n")
	assert.Contains(t, r.stdout, "lighting.main.type = directional\n")
	assert.NotContains(t, r.stdout, "mesh.")

	r = paramctl(t, "list", "sound")
	assert.Equal(t, 1, r.code)
}

func TestSystems(t *testing.T) {
	setup(t)

	r := paramctl(t, "systems")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "geometry")
	assert.Regexp(t, `lighting\s+\d+ parameters\s+depends on rendering`, r.stdout)
}

func TestValidateAndStatus(t *testing.T) {
	setup(t)

	r := paramctl(t, "validate")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "all parameters valid\n", r.stdout)

	r = paramctl(t, "status")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Parameter integration: running")
	assert.Contains(t, r.stdout, "Parameter registry:")
	assert.Contains(t, r.stdout, "Health: healthy")
	assert.Contains(t, r.stdout, "coordinator")
}

func TestPresetCommands(t *testing.T) {
	dir := setup(t)

	require.Equal(t, 0, paramctl(t, "set", "lighting.main.intensity", "0.5").code)
	r := paramctl(t, "preset", "save", "warm")
	require.Equal(t, 0, r.code, r.stderr)
	assert.FileExists(t, filepath.Join(dir, "warm.toml"))

	require.Equal(t, 0, paramctl(t, "set", "lighting.main.intensity", "0.9").code)

	r = paramctl(t, "preset", "list")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "current (working)\nwarm\n", r.stdout)

	r = paramctl(t, "preset", "load", "warm")
	require.Equal(t, 0, r.code, r.stderr)
	r = paramctl(t, "get", "lighting.main.intensity")
	assert.Equal(t, "lighting.main.intensity = 0.5\n", r.stdout)

	r = paramctl(t, "preset", "delete", "current")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "working preset")

	r = paramctl(t, "preset", "delete", "warm")
	require.Equal(t, 0, r.code, r.stderr)
	_, err := os.Stat(filepath.Join(dir, "warm.toml"))
	assert.True(t, os.IsNotExist(err))

	r = paramctl(t, "preset", "load", "warm")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "preset not found")
}

func TestAlternateWorkingPreset(t *testing.T) {
	setup(t)

	require.Equal(t, 0, paramctl(t, "--preset", "scratch", "set", "mesh.deflection", "2").code)

	r := paramctl(t, "get", "mesh.deflection")
	assert.Equal(t, "mesh.deflection = 0.5\n", r.stdout)
	r = paramctl(t, "-p", "scratch", "get", "mesh.deflection")
	assert.Equal(t, "mesh.deflection = 2\n", r.stdout)

	r = paramctl(t, "--preset", "../escape", "get", "mesh.deflection")
	assert.Equal(t, 1, r.code)
}

func TestConfigFlag(t *testing.T) {
	setup(t)

	r := paramctl(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "systems")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "config file not found")

	cfg := filepath.Join(t.TempDir(), "paramctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("presets:\n  backend: memory\n"), 0o644))
	t.Setenv("PARAMTREE_PRESETS_BACKEND", "")
	r = paramctl(t, "-c", cfg, "preset", "list")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Empty(t, r.stdout)
}

func TestVersion(t *testing.T) {
	r := paramctl(t, "--version")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "dev")
}
