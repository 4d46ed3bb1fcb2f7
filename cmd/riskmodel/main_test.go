package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskstack/riskmodel/internal/decision"
	"github.com/riskstack/riskmodel/internal/utils"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCLIConfig(t *testing.T, dir, dataPath string) string {
	t.Helper()
	body := fmt.Sprintf(`
data:
  path: %s
output:
  dir: %s
history:
  enabled: true
  path: %s
metrics:
  textfilePath: %s
logging:
  level: error
algorithms:
  random_forest:
    n_estimators: 10
    max_depth: 4
  gradient_boosting:
    n_estimators: 15
  xgboost:
    n_estimators: 15
`, dataPath, filepath.Join(dir, "reports"), filepath.Join(dir, "history.sqlite"), filepath.Join(dir, "riskmodel.prom"))
	path := filepath.Join(dir, "riskmodel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGenerateRunHistorySummary(t *testing.T) {
	t.Setenv("RISKMODEL_CONFIG", "")
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "policies.txt")

	out, err := runCLI(t, "generate", "--rows", "250", "--out", dataPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 250 rows")

	cfgPath := writeCLIConfig(t, dir, dataPath)
	out, err = runCLI(t, "--config", cfgPath, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "severity")
	assert.Contains(t, out, "benchmark summary")

	summary, err := decision.Load(filepath.Join(dir, "reports", "premium_decision_summary.json"))
	require.NoError(t, err)
	assert.Equal(t, "r2", summary.MetricName)

	prom, err := os.ReadFile(filepath.Join(dir, "riskmodel.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "riskmodel_fits_total")

	out, err = runCLI(t, "--config", cfgPath, "run", "--task", "severity")
	require.NoError(t, err)
	assert.NotContains(t, out, "premium_decision_summary.json")
	bench, err := os.ReadFile(filepath.Join(dir, "reports", "model_benchmark_summary.json"))
	require.NoError(t, err)
	var selected map[string]string
	require.NoError(t, json.Unmarshal(bench, &selected))
	assert.Len(t, selected, 3)

	out, err = runCLI(t, "--config", cfgPath, "history", "--task", "premium")
	require.NoError(t, err)
	assert.Contains(t, out, "RECORDED")
	assert.Contains(t, out, summary.SelectedModel)

	out, err = runCLI(t, "--config", cfgPath, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "claim_probability_model")
}

func TestRunUnknownTaskFilter(t *testing.T) {
	t.Setenv("RISKMODEL_CONFIG", "")
	dir := t.TempDir()
	cfgPath := writeCLIConfig(t, dir, filepath.Join(dir, "absent.txt"))
	_, err := runCLI(t, "--config", cfgPath, "run", "--task", "nope")
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
	assert.Equal(t, ExitInput, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitInput, exitCode(utils.NewAppError("x", utils.ErrNotFound, "missing", nil)))
	assert.Equal(t, ExitError, exitCode(utils.NewAppError("x", utils.ErrIO, "disk", nil)))
	assert.Equal(t, ExitError, exitCode(errors.New("boom")))
}
