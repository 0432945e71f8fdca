package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/config"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

const workOrderDoc = `
tenant: acme
workOrder: wo-1
workers:
  - id: w1
    name: Ada
    active: true
    skills: [weld]
  - id: w2
    name: Grace
    active: true
    skills: [weld, paint]
tasks:
  - id: cut
    name: Cut stock
    estimatedHours: 2
  - id: weld
    name: Weld frame
    estimatedHours: 3
    dependsOn: [cut]
    requiredSkills: [weld]
  - id: paint
    name: Paint
    estimatedHours: 1
    requiredSkills: [paint]
`

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes rootCmd with fresh flags and fails the test on error.
func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := try(t, args...)
	if err != nil {
		t.Fatalf("mesched %s failed: %v\nOutput: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func try(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	return executeCommand(rootCmd, args...)
}

// setupTestEnvironment points config, data and the store at temp dirs and
// returns the directory holding the fixture document.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("MESCHED_STORE_PATH", filepath.Join(dir, "store"))
	t.Setenv("MESCHED_STORE_SYNC_WRITES", "false")
	t.Setenv("MESCHED_LOGGING_LEVEL", "error")

	if err := os.WriteFile(filepath.Join(dir, "wo.yaml"), []byte(workOrderDoc), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func importFixture(t *testing.T, dir string) {
	t.Helper()
	out := run(t, "import", filepath.Join(dir, "wo.yaml"))
	if !strings.Contains(out, "3 tasks, 2 workers, 0 assignments into tenant acme") {
		t.Fatalf("unexpected import output: %s", out)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "mesched" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "mesched")
	}

	expectedCmds := []string{"import", "export", "deps", "critical-path", "task", "assign", "reassign", "stats", "logs", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"validation", errors.NewValidationError("bad"), ExitRejected},
		{"wrapped not found", errors.Wrap(errors.NewNotFoundError("task", "t"), "load"), ExitRejected},
		{"cycle", errors.NewCycleError([]string{"a", "b"}), ExitRejected},
		{"storage", errors.New("disk full"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		label string
	}{
		{"rejected request", errors.NewValidationError("task cannot depend on itself"), "Rejected:"},
		{"cycle", errors.NewCycleError([]string{"a", "b"}), "Error:"},
		{"internal failure", errors.New("disk full"), "Error:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			out := buf.String()
			if !strings.HasPrefix(out, tt.label) {
				t.Errorf("printError() = %q, want prefix %q", out, tt.label)
			}
			if !strings.Contains(out, tt.err.Error()) {
				t.Errorf("printError() = %q, want the full message", out)
			}
		})
	}
}

func TestRejectedCommandExitCode(t *testing.T) {
	dir := setupTestEnvironment(t)
	importFixture(t, dir)

	_, err := try(t, "deps", "add", "cut", "cut", "-t", "acme")
	if got := ExitCode(err); got != ExitRejected {
		t.Errorf("self dependency exit code = %d, want %d (err=%v)", got, ExitRejected, err)
	}
}

func TestDependencyWorkflow(t *testing.T) {
	dir := setupTestEnvironment(t)
	importFixture(t, dir)

	out := run(t, "task", "readiness", "cut", "-t", "acme")
	if !strings.Contains(out, "cut is READY") {
		t.Errorf("readiness output = %q", out)
	}

	out = run(t, "deps", "add", "paint", "weld", "-t", "acme")
	if !strings.Contains(out, "Added paint -> weld") {
		t.Errorf("deps add output = %q", out)
	}
	if !strings.Contains(out, "paint now depends on weld") {
		t.Errorf("deps add should list the published event: %q", out)
	}

	_, err := try(t, "deps", "add", "cut", "paint", "-t", "acme")
	if !errors.Is(err, errors.ErrDependencyCycle) {
		t.Fatalf("closing a cycle: err = %v, want ErrDependencyCycle", err)
	}

	out = run(t, "deps", "list", "paint", "--transitive", "-t", "acme", "-o", "json")
	var deps []struct{ ID string }
	if err := json.Unmarshal([]byte(out), &deps); err != nil {
		t.Fatalf("deps list is not JSON: %v\n%s", err, out)
	}
	if len(deps) != 2 {
		t.Errorf("transitive dependencies of paint = %+v, want weld and cut", deps)
	}

	out = run(t, "deps", "validate", "wo-1", "-t", "acme")
	if !strings.Contains(out, "No cycles") || !strings.Contains(out, "Ready (0)") {
		t.Errorf("validate output = %q", out)
	}

	out = run(t, "critical-path", "wo-1", "-t", "acme", "-o", "json")
	var cp struct {
		Duration float64
		Path     []struct{ ID string }
	}
	if err := json.Unmarshal([]byte(out), &cp); err != nil {
		t.Fatalf("critical path is not JSON: %v\n%s", err, out)
	}
	if cp.Duration != 6 {
		t.Errorf("duration = %v, want 6", cp.Duration)
	}
	if len(cp.Path) != 3 || cp.Path[0].ID != "cut" || cp.Path[2].ID != "paint" {
		t.Errorf("path = %+v, want cut -> weld -> paint", cp.Path)
	}

	run(t, "task", "status", "cut", "in_progress", "-t", "acme")
	out = run(t, "task", "status", "cut", "COMPLETED", "-t", "acme")
	if !strings.Contains(out, "Now ready: weld") {
		t.Errorf("completion should ready weld: %q", out)
	}

	_, err = try(t, "task", "status", "weld", "READY", "-t", "acme")
	if !errors.Is(err, errors.ErrIllegalTransition) {
		t.Errorf("setting READY directly: err = %v, want ErrIllegalTransition", err)
	}
}

func TestSplitCommand(t *testing.T) {
	dir := setupTestEnvironment(t)
	importFixture(t, dir)

	specs := filepath.Join(dir, "split.yaml")
	content := "- name: Weld left\n  estimatedHours: 1.5\n- name: Weld right\n  estimatedHours: 1.5\n"
	if err := os.WriteFile(specs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	out := run(t, "task", "split", "weld", "--file", specs, "-t", "acme")
	if !strings.Contains(out, "Split weld into 2 subtasks") {
		t.Errorf("split output = %q", out)
	}

	out = run(t, "task", "show", "weld", "-t", "acme", "-o", "json")
	var detail struct {
		Task struct{ Status string }
	}
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("task show is not JSON: %v\n%s", err, out)
	}
	if detail.Task.Status != "CANCELLED" {
		t.Errorf("split original status = %q, want CANCELLED", detail.Task.Status)
	}

	if _, err := try(t, "task", "split", "cut", "--file", filepath.Join(dir, "missing.yaml"), "-t", "acme"); err == nil {
		t.Error("split with a missing spec file should fail")
	}
}

func TestAssignAndReassign(t *testing.T) {
	dir := setupTestEnvironment(t)
	importFixture(t, dir)

	out := run(t, "assign", "paint", "--strategy", "skill_match", "-t", "acme")
	if !strings.Contains(out, "Assigned paint to w2 (skill_match)") {
		t.Errorf("assign output = %q", out)
	}

	out = run(t, "reassign", "bulk", "paint", "--to", "w1", "--reason", "rebalance", "-t", "acme")
	if !strings.Contains(out, "bulk reassignment to w1: 1 moved, 0 failed, 0 skipped of 1") {
		t.Errorf("bulk output = %q", out)
	}

	out = run(t, "task", "show", "paint", "-t", "acme", "-o", "json")
	var detail struct {
		Task        struct{ AssigneeID string }
		Assignments []struct{ WorkerID, Status string }
	}
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("task show is not JSON: %v\n%s", err, out)
	}
	if detail.Task.AssigneeID != "w1" || len(detail.Assignments) != 2 {
		t.Errorf("after bulk move: %+v", detail)
	}

	out = run(t, "stats", "-t", "acme", "-o", "json")
	var report statsReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("stats is not JSON: %v\n%s", err, out)
	}
	if len(report.Workers) != 2 || report.Workers[0].ActiveTasks != 1 || report.Workers[1].ActiveTasks != 0 {
		t.Errorf("workloads = %+v, want w1=1 w2=0", report.Workers)
	}
	if report.Total != 3 || report.ByStatus["PENDING"] != 3 {
		t.Errorf("task counts = %d %v", report.Total, report.ByStatus)
	}

	out = run(t, "reassign", "unavailable", "w1", "--reason", "sick", "-t", "acme")
	if !strings.Contains(out, "worker w1 unavailable: 1 moved") {
		t.Errorf("unavailable output = %q", out)
	}

	if _, err := try(t, "reassign", "emergency", "-t", "acme"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("emergency without filters: err = %v, want ErrInvalidInput", err)
	}
	if _, err := try(t, "assign", "nope", "-t", "acme"); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("assigning an unknown task: err = %v, want ErrTaskNotFound", err)
	}
	if _, err := try(t, "assign", "paint", "--strategy", "fastest", "-t", "acme"); err == nil {
		t.Error("unknown strategy should fail")
	}
}

func TestExportCommand(t *testing.T) {
	dir := setupTestEnvironment(t)
	importFixture(t, dir)

	path := filepath.Join(dir, "out.yaml")
	out := run(t, "export", "-w", "wo-1", "-f", path, "-t", "acme")
	if !strings.Contains(out, "Exported 3 tasks") {
		t.Errorf("export output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"tenant: acme", "id: weld", "- cut"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("exported document missing %q:\n%s", want, data)
		}
	}
}

func TestLogsCommand(t *testing.T) {
	dir := setupTestEnvironment(t)
	logDir := filepath.Join(dir, "logs")
	t.Setenv("MESCHED_LOGGING_DIR", logDir)
	t.Setenv("MESCHED_LOGGING_LEVEL", "info")
	importFixture(t, dir)

	out := run(t, "logs", "--grep", "fixture imported", "-n", "0")
	if !strings.Contains(out, "fixture imported") || !strings.Contains(out, "tenant=acme") {
		t.Errorf("logs output = %q", out)
	}

	out = run(t, "logs", "--level", "error")
	if !strings.Contains(out, "No matching log entries found.") {
		t.Errorf("error-level filter output = %q", out)
	}

	if _, err := try(t, "logs", "--dir", filepath.Join(dir, "nowhere")); err == nil {
		t.Error("logs from a missing directory should fail")
	}
}

func TestMetricsFile(t *testing.T) {
	dir := setupTestEnvironment(t)
	t.Setenv("MESCHED_METRICS_ENABLED", "true")
	importFixture(t, dir)

	path := filepath.Join(dir, "metrics.prom")
	run(t, "deps", "add", "paint", "cut", "-t", "acme", "--metrics-file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "mesched_dependency_operations_total") {
		t.Errorf("metrics file missing dependency counter:\n%s", data)
	}
}

func TestTraceFile(t *testing.T) {
	dir := setupTestEnvironment(t)
	importFixture(t, dir)

	path := filepath.Join(dir, "spans.json")
	run(t, "deps", "add", "paint", "cut", "-t", "acme", "--trace-file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("trace file not written: %v", err)
	}
	if !strings.Contains(string(data), "dependency.AddDependency") {
		t.Errorf("trace file missing AddDependency span:\n%s", data)
	}
}

func TestConfigCommands(t *testing.T) {
	setupTestEnvironment(t)

	out := run(t, "config", "path")
	if !strings.Contains(out, config.ConfigFile()) {
		t.Errorf("config path output = %q", out)
	}

	out = run(t, "config", "show")
	if !strings.Contains(out, "default_strategy: least_loaded") {
		t.Errorf("config show output = %q", out)
	}

	if _, err := try(t, "config", "set", "assignment.colour", "red"); err == nil {
		t.Error("unknown key should be rejected")
	}
	if _, err := try(t, "config", "set", "assignment.default_strategy", "fastest"); err == nil {
		t.Error("invalid strategy should be rejected")
	}
	if _, err := os.Stat(config.ConfigFile()); !os.IsNotExist(err) {
		t.Error("rejected values must not create the config file")
	}

	t.Cleanup(func() {
		viper.Set("balancing.max_tasks_per_worker", config.Default().Balancing.MaxTasksPerWorker)
	})
	out = run(t, "config", "set", "balancing.max_tasks_per_worker", "8")
	if !strings.Contains(out, "Set balancing.max_tasks_per_worker = 8") {
		t.Errorf("config set output = %q", out)
	}
	data, err := os.ReadFile(config.ConfigFile())
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "max_tasks_per_worker: 8") {
		t.Errorf("config file = %s", data)
	}
}

func TestConfigInit(t *testing.T) {
	setupTestEnvironment(t)

	out := run(t, "config", "init")
	if !strings.Contains(out, "Created config file") {
		t.Errorf("config init output = %q", out)
	}

	v := viper.New()
	v.SetConfigFile(config.ConfigFile())
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("generated config is invalid: %v", err)
	}
	if cfg.Assignment.DefaultStrategy != "least_loaded" || cfg.Balancing.MaxTasksPerWorker != 5 {
		t.Errorf("generated config = %+v", cfg)
	}

	if _, err := try(t, "config", "init"); err == nil {
		t.Error("init should refuse to overwrite an existing file")
	}
}
