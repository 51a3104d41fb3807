package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/phasegate/internal/executor"
	"github.com/harrison/phasegate/internal/models"
	"github.com/harrison/phasegate/internal/report"
)

const shopPage = `<html><body>
<h1>Shop</h1>
<button id="buy">Buy</button>
<a href="/cart">Cart</a>
</body></html>`

type testEnv struct {
	dir    string
	config string
	server *httptest.Server
}

func newTestEnv(t *testing.T, extraConfig string) *testEnv {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, shopPage)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`log_level: warn
log_dir: %s
report_dir: %s
artifact_dir: %s
max_retries: 0
pool_size: 2
history:
  enabled: true
  db_path: %s
%s`, filepath.Join(dir, "logs"), filepath.Join(dir, "reports"), filepath.Join(dir, "artifacts"),
		filepath.Join(dir, "history.db"), extraConfig)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return &testEnv{dir: dir, config: path, server: server}
}

func (e *testEnv) writeSuite(t *testing.T, name, selector string) string {
	t.Helper()
	suite := fmt.Sprintf(`name: %s
base_url: %s
phases:
  - id: home
    name: Home
    steps:
      - action: navigate
        target: /
  - id: buy
    name: Buy
    depends_on: [home]
    steps:
      - action: click
        selector: "%s"
`, name, e.server.URL, selector)
	path := filepath.Join(e.dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(suite), 0644))
	return path
}

func execute(args ...string) (string, error) {
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func readReports(t *testing.T, dir string) []models.SuiteResult {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*-*.json"))
	require.NoError(t, err)

	var results []models.SuiteResult
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		var r models.SuiteResult
		require.NoError(t, json.Unmarshal(data, &r))
		results = append(results, r)
	}
	return results
}

func TestRootCommand(t *testing.T) {
	out, err := execute("--help")
	require.NoError(t, err)
	assert.Contains(t, out, "phasegate")

	var names []string
	for _, c := range NewRootCommand().Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "validate", "history"})
}

func TestVersionFlag(t *testing.T) {
	out, _ := execute("--version")
	assert.Contains(t, out, "version")
}

func TestRunCommand_Passes(t *testing.T) {
	env := newTestEnv(t, "")
	suite := env.writeSuite(t, "shop", "#buy")

	out, err := execute("run", "--config", env.config, suite)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1/1 runs passed")

	reports := readReports(t, filepath.Join(env.dir, "reports"))
	require.Len(t, reports, 1)
	assert.Equal(t, models.SuitePassed, reports[0].Status)
	assert.Equal(t, "desktop", reports[0].Device)
	assert.Equal(t, 2, reports[0].Counts.Total)

	data, err := os.ReadFile(filepath.Join(env.dir, "reports", report.IndexFile))
	require.NoError(t, err)
	var idx report.Index
	require.NoError(t, json.Unmarshal(data, &idx))
	assert.True(t, idx.Passed)

	assert.FileExists(t, filepath.Join(env.dir, "history.db"))
	assert.FileExists(t, filepath.Join(env.dir, "logs", "latest.log"))
}

func TestRunCommand_FailPolicy(t *testing.T) {
	env := newTestEnv(t, "execution_error_policy: fail\n")
	suite := env.writeSuite(t, "shop", "#missing")

	out, err := execute("run", "--config", env.config, suite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 runs did not pass")
	assert.Contains(t, out, "0/1 runs passed")

	reports := readReports(t, filepath.Join(env.dir, "reports"))
	require.Len(t, reports, 1)
	assert.Equal(t, models.SuitePartial, reports[0].Status, "only buy failed")
	assert.Equal(t, 1, reports[0].Counts.Failed)
}

func TestRunCommand_AnalyzerThreshold(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	env := newTestEnv(t, `analyzers:
  rtl: [sh, -c, "echo '{\"score\": 3}'", rtl]
`)
	suite := env.writeSuite(t, "shop", "#buy")

	_, err := execute("run", "--config", env.config, suite)
	require.Error(t, err)

	reports := readReports(t, filepath.Join(env.dir, "reports"))
	require.Len(t, reports, 1)
	assert.Equal(t, models.SuiteFailed, reports[0].Status)
	for _, p := range reports[0].Phases {
		require.Len(t, p.Decision.Overrides, 1, p.PhaseID)
		assert.Equal(t, "rtl", p.Decision.Overrides[0].Metric)
	}
}

func TestRunCommand_VisionVerdict(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	env := newTestEnv(t, `vision:
  command: [sh, -c, "cat >/dev/null; echo '{\"verdict\": \"PASS\", \"confidence\": 0.9, \"reason\": \"looks right\", \"usage\": {\"total_tokens\": 1000000}}'", vision]
`)
	suite := env.writeSuite(t, "shop", "#buy")

	out, err := execute("run", "--config", env.config, suite)
	require.NoError(t, err, out)

	reports := readReports(t, filepath.Join(env.dir, "reports"))
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, "All phases passed", r.Summary)
	assert.Equal(t, 2, r.Counts.Passed)
	assert.Equal(t, int64(2000000), r.Usage.Total)
	// 2M tokens at 70% input ($3/1M) and 30% output ($15/1M)
	assert.InDelta(t, 13.2, r.CostUSD, 1e-9)
	assert.Contains(t, out, "total cost $13.2000")
}

func TestRunCommand_Devices(t *testing.T) {
	env := newTestEnv(t, "")
	suite := env.writeSuite(t, "shop", "#buy")

	out, err := execute("run", "--config", env.config, "--device", "mobile", "--device", "tablet", suite)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2/2 runs passed")

	var devices []string
	for _, r := range readReports(t, filepath.Join(env.dir, "reports")) {
		devices = append(devices, r.Device)
	}
	assert.ElementsMatch(t, []string{"mobile", "tablet"}, devices)
}

func TestRunCommand_DryRun(t *testing.T) {
	env := newTestEnv(t, "")
	suite := env.writeSuite(t, "shop", "#buy")

	out, err := execute("run", "--config", env.config, "--dry-run", suite)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry-run mode: 1 run(s) planned")
	assert.Contains(t, out, "shop on desktop:")
	assert.Contains(t, out, "Stage 1: home")
	assert.Contains(t, out, "Stage 2: buy")
	assert.NoDirExists(t, filepath.Join(env.dir, "reports"))
}

func TestRunCommand_Errors(t *testing.T) {
	env := newTestEnv(t, "")
	suite := env.writeSuite(t, "shop", "#buy")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"invalid pool size", []string{"run", "--config", env.config, "--pool-size", "0", suite}, "pool_size"},
		{"bad log level", []string{"run", "--config", env.config, "--log-level", "loud", suite}, "log_level"},
		{"missing suite", []string{"run", "--config", env.config, filepath.Join(env.dir, "nope.yaml")}, "does not exist"},
		{"missing config", []string{"run", "--config", filepath.Join(env.dir, "missing", "x.yaml"), "--dry-run", suite}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(tt.args...)
			if tt.wantErr == "" {
				assert.NoError(t, err, "missing config file falls back to defaults")
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	env := newTestEnv(t, "")
	good := env.writeSuite(t, "shop", "#buy")

	out, err := execute("validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, `suite "shop", 2 phase(s) in 2 stage(s)`)

	bad := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
phases:
  - {id: a, name: A, depends_on: [ghost], steps: [{action: navigate, target: /}]}
`), 0644))

	out, err = execute("validate", env.dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 suite file(s) invalid")
	assert.Contains(t, out, "unknown phase ghost")
	assert.Contains(t, out, "✓")
}

func TestHistoryCommand(t *testing.T) {
	env := newTestEnv(t, "")
	suite := env.writeSuite(t, "shop", "#buy")

	out, err := execute("history", "--config", env.config, "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded for suite shop")

	for i := 0; i < 2; i++ {
		_, err := execute("run", "--config", env.config, suite)
		require.NoError(t, err)
	}

	out, err = execute("history", "--config", env.config, "--limit", "5", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent runs of shop:")
	assert.Equal(t, 2, strings.Count(out, "PASSED"))
	assert.Contains(t, out, "Trend on desktop (not improving):")
	assert.Contains(t, out, "Pass rate: 0% (+0%)", "without a vision judge phases stay unknown")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("history:\n  enabled: false\n"), 0644))

	_, err := execute("history", "--config", cfg, "shop")
	assert.ErrorContains(t, err, "history is disabled")
}

func TestBuildJobs(t *testing.T) {
	a := &models.Suite{Name: "a", Devices: []string{"mobile", "desktop"}}
	b := &models.Suite{Name: "b"}

	jobs := buildJobs([]*models.Suite{a, b}, nil)
	assert.Equal(t, []executor.Job{
		{Suite: a, Device: "mobile"},
		{Suite: a, Device: "desktop"},
		{Suite: b, Device: defaultDevice},
	}, jobs)

	jobs = buildJobs([]*models.Suite{a, b}, []string{"tablet"})
	assert.Equal(t, []executor.Job{
		{Suite: a, Device: "tablet"},
		{Suite: b, Device: "tablet"},
	}, jobs)
}

func TestFinish(t *testing.T) {
	passed := &models.SuiteResult{Status: models.SuitePassed}
	partial := &models.SuiteResult{Status: models.SuitePartial}

	tests := []struct {
		name    string
		results []executor.JobResult
		wantErr bool
	}{
		{"all passed", []executor.JobResult{{Result: passed}, {Result: passed}}, false},
		{"one partial", []executor.JobResult{{Result: passed}, {Result: partial}}, true},
		{"aborted run with passing partial result", []executor.JobResult{{Result: passed, Err: assert.AnError}}, true},
		{"no result", []executor.JobResult{{Err: assert.AnError}}, true},
		{"cancelled run", []executor.JobResult{{Result: passed, Err: executor.NewExecutionError(executor.StagePhase, "shop", context.Canceled)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := finish(new(bytes.Buffer), tt.results, 0)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}
