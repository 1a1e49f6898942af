package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess runs main() when the test binary is re-invoked by
// runCmd. Arguments after "--" become the command line.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		os.Args = []string{args[0]}
	}
	main()
	os.Exit(0)
}

// runCmd executes main() in a subprocess and returns its output and exit code.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if err == nil {
		return outBuf.String(), errBuf.String(), 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return outBuf.String(), errBuf.String(), ee.ExitCode()
	}
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

func writeCSV(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sample.csv")
	body := "id,category,value\n1,a,10\n2,a,11\n3,b,12\n4,b,13\n5,c,14\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestMain_ReportMode(t *testing.T) {
	t.Parallel()
	stdout, stderr, code := runCmd(t, "-url", writeCSV(t), "-report", "-hints", `{"header-row": true}`)
	require.Equal(t, 0, code, "stderr:\n%s", stderr)

	assert.Contains(t, stdout, "uniqueness report:")
	assert.Contains(t, stdout, "sampled_rows=5")
	assert.NotContains(t, stdout, "{")
}

func TestMain_DefaultMode_EmitsJSON(t *testing.T) {
	t.Parallel()
	stdout, stderr, code := runCmd(t, "-url", writeCSV(t), "-hints", `{"header-row": true}`)
	require.Equal(t, 0, code, "stderr:\n%s", stderr)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc), stdout)
	assert.Contains(t, doc, "format")
	assert.Contains(t, doc, "schema")
	assert.Contains(t, string(doc["format"]), `"delimited"`)
}

func TestMain_MissingURL(t *testing.T) {
	t.Parallel()
	_, stderr, code := runCmd(t)
	assert.Equal(t, 2, code)
	assert.True(t, strings.Contains(stderr, "missing -url"))
}

func TestMain_BadHints(t *testing.T) {
	t.Parallel()
	_, stderr, code := runCmd(t, "-url", writeCSV(t), "-hints", "[1, 2]")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "hints")
}
