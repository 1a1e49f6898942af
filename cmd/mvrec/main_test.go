package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
)

// run executes mvrec in-process and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root, a := newRootCmd(&out)
	t.Cleanup(a.close)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func fixture(t *testing.T) (csvPath, cfgPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,name\n1,alice\n2,bob\n"), 0o600))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0o755))
	cfgPath = filepath.Join(dir, "mvrec.yaml")
	cfg := fmt.Sprintf("databases:\n  lite:\n    type: sqlite\n    dsn: %s\nscratch:\n  file: %s\n",
		filepath.Join(dir, "lite.db"), location.FileURL(filepath.Join(dir, "scratch")+"/"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return csvPath, cfgPath
}

func TestSniff_PrintsFormatAndSchema(t *testing.T) {
	csvPath, cfgPath := fixture(t)
	out, err := run(t, "--config", cfgPath, "sniff", csvPath, "--hints", `{"header-row": true}`)
	require.NoError(t, err)

	var doc struct {
		Format struct {
			Type string `json:"type"`
		} `json:"format"`
		Schema struct {
			Fields map[string]json.RawMessage `json:"fields"`
		} `json:"schema"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	assert.Equal(t, "delimited", doc.Format.Type)
	assert.Contains(t, doc.Schema.Fields, "id")
	assert.Contains(t, doc.Schema.Fields, "name")
}

func TestSniff_Report(t *testing.T) {
	csvPath, cfgPath := fixture(t)
	out, err := run(t, "--config", cfgPath, "sniff", "--report", "--hints", "header-row: true", csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "uniqueness report:\tsampled_rows=2"), out)
}

func TestMove_FileToDirectory(t *testing.T) {
	csvPath, cfgPath := fixture(t)
	outDir := filepath.Join(t.TempDir(), "people") + "/"

	out, err := run(t, "--config", cfgPath, "move", "--source-hints", `{"header-row": true}`, csvPath, outDir)
	require.NoError(t, err)
	assert.Equal(t, "strategy=transcoded rows=2\n", out)

	dir := directory.New(location.NewResolver(nil), location.FileURL(outDir), nil)
	f, err := dir.LoadFormat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, records.Delimited, f.Type)
}

func TestMove_FileToSQLiteThenSchema(t *testing.T) {
	csvPath, cfgPath := fixture(t)

	out, err := run(t, "--config", cfgPath, "move", "--source-hints", `{"header-row": true}`, csvPath, "db://lite/people")
	require.NoError(t, err)
	assert.Equal(t, "strategy=staged rows=2\n", out)

	out, err = run(t, "--config", cfgPath, "schema", "db://lite/people")
	require.NoError(t, err)
	var doc struct {
		Fields map[string]json.RawMessage `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	assert.Len(t, doc.Fields, 2)
}

func TestMove_DryRun(t *testing.T) {
	csvPath, cfgPath := fixture(t)
	outDir := filepath.Join(t.TempDir(), "people") + "/"
	out, err := run(t, "--config", cfgPath, "move", "--dry-run", "--source-hints", `{"header-row": true}`, csvPath, outDir)
	require.NoError(t, err)
	assert.Equal(t, "strategy=transcoded format=arrow\n", out)

	_, err = os.Stat(outDir)
	assert.True(t, os.IsNotExist(err))
}

func TestMove_Errors(t *testing.T) {
	csvPath, cfgPath := fixture(t)
	dir := t.TempDir() + "/"
	tests := []struct {
		name string
		args []string
	}{
		{"file target", []string{"move", csvPath, filepath.Join(t.TempDir(), "out.csv")}},
		{"unknown database", []string{"move", csvPath, "db://nope/t"}},
		{"bad format", []string{"move", "--format", "excel", csvPath, dir}},
		{"bad existing-table mode", []string{"move", "--existing-table", "replace", csvPath, "db://lite/t"}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "sniff", csvPath}},
		{"wrong arity", []string{"move", csvPath}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := tc.args
			if args[0] != "--config" {
				args = append([]string{"--config", cfgPath}, args...)
			}
			_, err := run(t, args...)
			assert.Error(t, err)
		})
	}
}
