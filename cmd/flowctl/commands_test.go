package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runFlowctl(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	out, err := runFlowctl(t, "", "validate", filepath.Join("testdata", "greeting.json"))
	require.NoError(t, err)
	require.Contains(t, out, "greeting.json: valid")
}

func TestValidateReportsProblems(t *testing.T) {
	out, err := runFlowctl(t, "", "validate", filepath.Join("testdata", "broken.json"))
	require.ErrorIs(t, err, errInvalidGraph)
	require.Contains(t, out, "problem(s)")
	require.Contains(t, out, "  - ")
}

func TestValidateRequiresReadableFile(t *testing.T) {
	_, err := runFlowctl(t, "", "validate", filepath.Join("testdata", "missing.json"))
	require.ErrorContains(t, err, "read graph")

	_, err = runFlowctl(t, "", "validate")
	require.Error(t, err)
}

func TestSimulateRunsFlowToCompletion(t *testing.T) {
	out, err := runFlowctl(t, "hello\n\nana@example.com\n",
		"simulate", filepath.Join("testdata", "greeting.json"), "--name", "Ana")
	require.NoError(t, err)

	require.Contains(t, out, `Simulating "Greeting"`)
	require.Contains(t, out, "bot> Hi Ana")
	require.Contains(t, out, "bot> What is your email?")
	require.Contains(t, out, "bot> Thanks!")
	require.Contains(t, out, "-- execution completed")
	require.Less(t, strings.Index(out, "bot> Hi Ana"), strings.Index(out, "bot> Thanks!"))
}

func TestMigrateAppliesSchema(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENGAGEFLOW_DATABASE_DRIVER", "sqlite")
	t.Setenv("ENGAGEFLOW_DATABASE_PATH", filepath.Join(dir, "engageflow.sqlite"))

	out, err := runFlowctl(t, "", "migrate", "--config", dir)
	require.NoError(t, err)
	require.Contains(t, out, "on sqlite")
}
