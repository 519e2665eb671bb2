package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `class A:
    pass

class B(A):
    def size(self):
        return 3

b = B()
n = b.size()
n
`

// setup writes sample.py and an empty config path into a temp dir.
func setup(t *testing.T) (dir, file, cfg string) {
	t.Helper()
	dir = t.TempDir()
	file = filepath.Join(dir, "sample.py")
	require.NoError(t, os.WriteFile(file, []byte(sample), 0o644))
	return dir, file, filepath.Join(dir, "absent.yaml")
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

type envelope struct {
	Command string          `json:"command"`
	Results json.RawMessage `json:"results"`
}

func decode(t *testing.T, out string, into any) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	require.NoError(t, json.Unmarshal(env.Results, into))
	return env.Command
}

func TestInfer_JSON(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	out, _, err := runCLI(t, "--config", cfg, "--search-path", dir, "--format", "json", "infer", file, "10", "0")
	require.NoError(t, err)

	var res struct {
		Expr   struct{ Kind, Name string }
		Values []struct{ Kind, Repr, Type string }
	}
	assert.Equal(t, "infer", decode(t, out, &res))
	assert.Equal(t, "Name", res.Expr.Kind)
	assert.Equal(t, "n", res.Expr.Name)
	require.Len(t, res.Values, 1)
	assert.Equal(t, "3", res.Values[0].Repr)
	assert.Equal(t, "int", res.Values[0].Type)
}

func TestInfer_Text(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	// 8:5 is the open paren, inside the call but past the name B.
	out, _, err := runCLI(t, "--config", cfg, "--search-path", dir, "--format", "text", "infer", file, "8", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "Call  at 8:4")
	assert.Contains(t, out, "Instance of sample.B")

	// 8:4 is on the name itself, the innermost expression there.
	out, _, err = runCLI(t, "--config", cfg, "--search-path", dir, "--format", "text", "infer", file, "8", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Name B at 8:4")
	assert.Contains(t, out, "ClassDef")
	assert.Contains(t, out, "sample.B")
	assert.NotContains(t, out, "Instance of")
}

func TestAutoFormat_NonTerminalIsJSON(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	out, _, err := runCLI(t, "--config", cfg, "--search-path", dir, "infer", file, "10", "0")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), out)
}

func TestLookup(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	out, _, err := runCLI(t, "--config", cfg, "--search-path", dir, "--format", "json", "lookup", file, "10", "0")
	require.NoError(t, err)

	var res struct {
		Name       string
		Statements []struct{ Line int }
	}
	assert.Equal(t, "lookup", decode(t, out, &res))
	assert.Equal(t, "n", res.Name)
	require.Len(t, res.Statements, 1)
	assert.Equal(t, 9, res.Statements[0].Line)
}

func TestMRO_Text(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	out, _, err := runCLI(t, "--config", cfg, "--search-path", dir, "--format", "text", "mro", file, "B")
	require.NoError(t, err)
	assert.Contains(t, out, "sample.B")
	assert.Contains(t, out, "sample.A")
	assert.Contains(t, out, "builtins.object")
}

func TestDump(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	out, _, err := runCLI(t, "--config", cfg, "--search-path", dir, "--format", "text", "dump", file)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, `"ClassDef"`)
}

func TestVerbose_LogsCacheToStderr(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	db := filepath.Join(t.TempDir(), "cache.db")
	_, stderr, err := runCLI(t, "--config", cfg, "--search-path", dir, "--db", db, "--verbose", "infer", file, "10", "0")
	require.NoError(t, err)
	assert.Contains(t, stderr, "tree cache miss")
	assert.FileExists(t, db)

	_, stderr, err = runCLI(t, "--config", cfg, "--search-path", dir, "--db", db, "infer", file, "10", "0")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "tree cache", "debug logs need --verbose")
}

func TestConfigFile_SetsFormat(t *testing.T) {
	t.Parallel()
	dir, file, _ := setup(t)
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("search_paths: [.]\noutput:\n  format: text\n"), 0o644))

	out, _, err := runCLI(t, "--config", cfg, "mro", file, "A")
	require.NoError(t, err)
	assert.Contains(t, out, "CLASS")
	assert.False(t, json.Valid([]byte(out)))
}

func TestErrors(t *testing.T) {
	t.Parallel()
	dir, file, cfg := setup(t)
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad format", []string{"--format", "xml", "mro", file, "A"}, "invalid format"},
		{"bad line", []string{"infer", file, "x", "0"}, "invalid line"},
		{"zero line", []string{"infer", file, "0", "0"}, "lines start at 1"},
		{"negative col", []string{"lookup", file, "1", "-1"}, "columns start at 0"},
		{"negative col on infer", []string{"infer", file, "3", "-4"}, "columns start at 0"},
		{"negative line", []string{"infer", file, "-2", "0"}, "lines start at 1"},
		{"missing file", []string{"infer", filepath.Join(dir, "nope.py"), "1", "0"}, "nope.py"},
		{"no expression", []string{"infer", file, "40", "0"}, "not found"},
		{"unknown class", []string{"mro", file, "Z"}, "class Z"},
		{"wrong arg count", []string{"mro", file}, "accepts 2 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfg, "--search-path", dir}, tt.args...)
			out, _, err := runCLI(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, out)
		})
	}
}

func TestResolveFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Equal(t, "json", resolveFormat("auto", &buf))
	assert.Equal(t, "text", resolveFormat("text", &buf))
	assert.Equal(t, "json", resolveFormat("json", &buf))
}
