package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/contact-enrichment/internal/app"
	"github.com/palantir/contact-enrichment/internal/pipeline"
)

// isolateEnv clears variables that would change the loaded config.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WORKERS", "MAX_RETRIES", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "FAIL_FAST",
		"MAX_ROUNDS", "LOG_LEVEL", "ENRICH_DB", "GEMINI_API_KEY", "GEMINI_MODEL",
		"GEMINI_BASE_URL", "GITHUB_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "enricher version 0.1.0")
}

func TestDescribeCmd_JSON(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "describe", "--json")
	require.NoError(t, err)

	var infos []app.ResolverInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "github", infos[0].Name)
	assert.Equal(t, []string{"unavatar"}, infos[0].Blocks)
	assert.Equal(t, "countryCode", infos[1].Name)
}

func TestDescribeCmd_Table(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "describe", "--db", filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "PRIORITY")
	assert.Contains(t, out, "unavatar")
	assert.Contains(t, out, "custom(hasGithubSocial)")
}

func TestLocalCmd(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "contacts.csv")
	output := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(input, []byte("id,phone\nc1,+44 20 7946 0000\nc2,\n"), 0o600))

	_, err := execute(t, "local",
		"--input", input,
		"--output", output,
		"--db", filepath.Join(dir, "enrich.db"),
		"--workers", "2",
		"--log-level", "error",
	)
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := pipeline.ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, pipeline.StatusOK, rows[0].Status)
	assert.JSONEq(t, `{"country":"United Kingdom"}`, rows[0].Profile)
	assert.NotEmpty(t, rows[0].RecordID)
	assert.Equal(t, pipeline.StatusEmpty, rows[1].Status)
}

func TestLocalCmd_UsageErrors(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "local", "--input", "in.csv")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "local", "--input", "in.csv", "--output", "out.csv", "--workers", "0")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "local", "--input", "in.csv", "--output", "out.csv", "--log-level", "chatty")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(usagef("bad %s", "flag")))
}
