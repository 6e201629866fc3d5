package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	serveradapter "github.com/hylla/tavla/internal/adapters/server"
	"github.com/hylla/tavla/internal/adapters/server/common"
	"github.com/hylla/tavla/internal/adapters/storage/sqlite"
	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/config"
)

// TestMain keeps dev-mode file logging off unless a test opts in.
func TestMain(m *testing.M) {
	_ = os.Setenv("TAVLA_DEV_MODE", "false")
	os.Exit(m.Run())
}

// fakeProgram represents fake program data used by this test package.
type fakeProgram struct {
	runErr error
}

// Run runs the requested command flow.
func (f fakeProgram) Run() (tea.Model, error) {
	return nil, f.runErr
}

// stubProgramFactory swaps the TUI program for the length of one test.
func stubProgramFactory(t *testing.T, p program) {
	t.Helper()
	orig := programFactory
	t.Cleanup(func() { programFactory = orig })
	programFactory = func(_ tea.Model) program { return p }
}

// isolateConfig points config resolution at an empty temp file path.
func isolateConfig(t *testing.T) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("TAVLA_CONFIG", cfgPath)
	return cfgPath
}

// startSandbox serves a seeded sqlite sandbox and points the CLI at it.
func startSandbox(t *testing.T) *sqlite.Repository {
	t.Helper()
	return startSandboxWith(t, nil)
}

// startSandboxWith is startSandbox with optional middleware around the sandbox handler.
func startSandboxWith(t *testing.T, wrap func(*sqlite.Repository, http.Handler) http.Handler) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "sandbox.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if err := repo.Seed(context.Background(), app.DefaultStatuses(), sqlite.DefaultSeed(now)); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	handler, _, err := serveradapter.NewHandler(serveradapter.Config{}, serveradapter.Dependencies{
		Tasks: common.NewStoreAdapter(repo, nil),
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if wrap != nil {
		handler = wrap(repo, handler)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TAVLA_REMOTE_URL", srv.URL+"/api/v1")
	return repo
}

// TestRunVersion verifies behavior for the covered scenario.
func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("expected version output to include %q, got %q", version, out.String())
	}
}

// TestRunStartsProgram verifies behavior for the covered scenario.
func TestRunStartsProgram(t *testing.T) {
	stubProgramFactory(t, fakeProgram{})
	isolateConfig(t)
	if err := run(context.Background(), nil, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

// TestRunProgramError verifies TUI failures surface with context.
func TestRunProgramError(t *testing.T) {
	stubProgramFactory(t, fakeProgram{runErr: errors.New("boom")})
	isolateConfig(t)
	err := run(context.Background(), nil, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "run tui program") {
		t.Fatalf("expected wrapped program error, got %v", err)
	}
}

// TestRunInvalidFlag verifies behavior for the covered scenario.
func TestRunInvalidFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--does-not-exist"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected error for invalid flag")
	}
}

// TestRunUnknownCommand verifies behavior for the covered scenario.
func TestRunUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"wat"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected unknown command error")
	}
}

// TestRunMoveRequiresTwoArgs verifies argument validation for move.
func TestRunMoveRequiresTwoArgs(t *testing.T) {
	if err := run(context.Background(), []string{"move", "1"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected move to reject a single argument")
	}
}

// TestRunPathsCommand verifies behavior for the covered scenario.
func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), []string{"--app", "tavlax", "--dev", "paths"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	output := out.String()
	if !strings.Contains(output, "app: tavlax") {
		t.Fatalf("expected app name in paths output, got %q", output)
	}
	if !strings.Contains(output, "dev_mode: true") {
		t.Fatalf("expected dev mode in paths output, got %q", output)
	}
	if !strings.Contains(output, "tavlax-dev-sandbox.db") {
		t.Fatalf("expected dev sandbox db in paths output, got %q", output)
	}
}

// TestParseBoolEnv verifies behavior for the covered scenario.
func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TAVLA_BOOL_TEST", "true")
	v, ok := parseBoolEnv("TAVLA_BOOL_TEST")
	if !ok || !v {
		t.Fatalf("expected true,true got %v,%v", v, ok)
	}
	t.Setenv("TAVLA_BOOL_TEST", "not-a-bool")
	if _, ok := parseBoolEnv("TAVLA_BOOL_TEST"); ok {
		t.Fatal("expected invalid bool env to be ignored")
	}
	t.Setenv("TAVLA_BOOL_TEST", "")
	if _, ok := parseBoolEnv("TAVLA_BOOL_TEST"); ok {
		t.Fatal("expected blank bool env to be ignored")
	}
}

// TestRunBoardPrintsColumns verifies the board command against a sandbox remote.
func TestRunBoardPrintsColumns(t *testing.T) {
	isolateConfig(t)
	startSandbox(t)

	var out strings.Builder
	if err := run(context.Background(), []string{"board"}, &out, io.Discard); err != nil {
		t.Fatalf("run(board) error = %v", err)
	}
	output := out.String()
	for _, want := range []string{"statuses: remote", "New (2)", "In Progress (2)", "#1 Draft release notes"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected board output to include %q, got %q", want, output)
		}
	}
}

// TestRunBoardUnreachableRemote verifies network failures read as a retry hint.
func TestRunBoardUnreachableRemote(t *testing.T) {
	isolateConfig(t)
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	t.Setenv("TAVLA_REMOTE_URL", url)

	err := run(context.Background(), []string{"board"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "please retry") {
		t.Fatalf("expected retry hint, got %v", err)
	}
}

// TestRunMoveCommitsThroughSandbox verifies one-shot relocation by status name.
func TestRunMoveCommitsThroughSandbox(t *testing.T) {
	isolateConfig(t)
	repo := startSandbox(t)

	var out strings.Builder
	if err := run(context.Background(), []string{"move", "#1", "in progress"}, &out, io.Discard); err != nil {
		t.Fatalf("run(move) error = %v", err)
	}
	if !strings.Contains(out.String(), "success: moved to In Progress") {
		t.Fatalf("expected success feedback, got %q", out.String())
	}
	task, err := repo.GetTask(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.StatusID != "2" {
		t.Fatalf("status = %q, want 2", task.StatusID)
	}
}

// TestMoveOnBoardStaleConfirmationReportsServerColumn verifies a confirmation overtaken by a newer server change is not a failure.
func TestMoveOnBoardStaleConfirmationReportsServerColumn(t *testing.T) {
	var board *app.Board
	startSandboxWith(t, func(repo *sqlite.Repository, next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Method != http.MethodPut {
				return
			}
			// Another client resolves the task before this confirmation reaches the board.
			if _, err := repo.SetTaskStatus(context.Background(), "1", "3", "other-client", time.Now()); err != nil {
				t.Errorf("SetTaskStatus() error = %v", err)
			}
			if _, err := board.Cache().Refresh(context.Background()); err != nil {
				t.Errorf("Refresh() error = %v", err)
			}
		})
	})

	cfg := config.Default(filepath.Join(t.TempDir(), "tavla.db"))
	cfg, err := cfg.ApplyEnv(os.Getenv)
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	logger, err := newRuntimeLogger(io.Discard, "tavla", false, cfg.Logging, time.Now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	var out strings.Builder
	board, err = newBoard(&runtimeEnv{cfg: cfg, logger: logger}, app.NewWriterFeedback(&out))
	if err != nil {
		t.Fatalf("newBoard() error = %v", err)
	}
	if err := openBoard(context.Background(), board); err != nil {
		t.Fatalf("openBoard() error = %v", err)
	}

	if err := moveOnBoard(context.Background(), logger, board, &out, "#1", "in progress"); err != nil {
		t.Fatalf("moveOnBoard() error = %v, want nil for a superseded confirmation", err)
	}
	if !strings.Contains(out.String(), "info: task #1 is in Resolved") {
		t.Fatalf("expected server-aligned column, got %q", out.String())
	}
	if column, _ := board.Registry().ColumnOf("1"); column != "3" {
		t.Fatalf("column = %q, want 3", column)
	}
}

// TestRunMoveLogsEachTransitionOnce verifies gesture transitions reach the log a single time.
func TestRunMoveLogsEachTransitionOnce(t *testing.T) {
	cfgPath := isolateConfig(t)
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	startSandbox(t)

	var logs strings.Builder
	if err := run(context.Background(), []string{"move", "#1", "in progress"}, io.Discard, &logs); err != nil {
		t.Fatalf("run(move) error = %v", err)
	}
	dragging := 0
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, "gesture transition") && strings.Contains(line, "to=dragging") {
			dragging++
		}
	}
	if dragging != 1 {
		t.Fatalf("dragging transition logged %d times, want 1:\n%s", dragging, logs.String())
	}
}

// TestRunMoveLockedTaskReports verifies server rejections reach the user and fail the command.
func TestRunMoveLockedTaskReports(t *testing.T) {
	isolateConfig(t)
	repo := startSandbox(t)

	var out strings.Builder
	err := run(context.Background(), []string{"move", "8", "1"}, &out, io.Discard)
	if err == nil {
		t.Fatal("expected locked task move to fail")
	}
	if !strings.Contains(out.String(), "error: status change rejected") {
		t.Fatalf("expected rejection feedback, got %q", out.String())
	}
	task, getErr := repo.GetTask(context.Background(), "8")
	if getErr != nil {
		t.Fatalf("GetTask() error = %v", getErr)
	}
	if task.StatusID != "5" {
		t.Fatalf("status = %q, want unchanged 5", task.StatusID)
	}
}

// TestRunMoveUnknownStatus verifies unresolved status references fail before any write.
func TestRunMoveUnknownStatus(t *testing.T) {
	isolateConfig(t)
	startSandbox(t)

	err := run(context.Background(), []string{"move", "1", "Someday"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), `unknown status "Someday"`) {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}

// TestRunServeUsesConfiguredDatabase verifies serve wiring without binding a port.
func TestRunServeUsesConfiguredDatabase(t *testing.T) {
	isolateConfig(t)
	dbPath := filepath.Join(t.TempDir(), "nested", "serve.db")

	var (
		gotCfg  serveradapter.Config
		gotDeps serveradapter.Dependencies
	)
	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })
	serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg = cfg
		gotDeps = deps
		list, err := deps.Tasks.ListTasks(ctx, common.ListTasksRequest{})
		if err != nil {
			return err
		}
		if len(list.Tasks) == 0 {
			return errors.New("expected seeded tasks")
		}
		return nil
	}

	err := run(context.Background(), []string{"--db", dbPath, "serve", "--bind", "127.0.0.1:9999"}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.APIEndpoint != "/api/v1" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotDeps.Tasks == nil || gotDeps.Logger == nil {
		t.Fatalf("expected serve dependencies to be wired, got %#v", gotDeps)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at flag path, stat error %v", err)
	}
}

// TestRunConfigAndDBEnvOverrides verifies env paths win over defaults.
func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "env.db")
	cfgPath := filepath.Join(tmp, "env.toml")
	cfgContent := "[database]\npath = \"/tmp/ignore-me.db\"\n[serve]\nseed = false\n"
	if err := os.WriteFile(cfgPath, []byte(cfgContent), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("TAVLA_CONFIG", cfgPath)
	t.Setenv("TAVLA_DB_PATH", dbPath)

	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })
	serveCommandRunner = func(context.Context, serveradapter.Config, serveradapter.Dependencies) error {
		return nil
	}
	if err := run(context.Background(), []string{"serve"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(serve with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
}

// TestRunDevModeCreatesWorkspaceLogFile verifies behavior for the covered scenario.
func TestRunDevModeCreatesWorkspaceLogFile(t *testing.T) {
	stubProgramFactory(t, fakeProgram{})
	workspace := t.TempDir()
	t.Chdir(workspace)
	isolateConfig(t)

	if err := run(context.Background(), []string{"--dev"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	logDir := filepath.Join(workspace, ".tavla", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	foundLog := false
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			foundLog = true
			break
		}
	}
	if !foundLog {
		t.Fatalf("expected at least one .log file in %s, got %v", logDir, entries)
	}
}

// TestRunTUIModeWritesRuntimeLogsToFileOnly verifies TUI runtime logs stay out of stderr and persist to the dev log file.
func TestRunTUIModeWritesRuntimeLogsToFileOnly(t *testing.T) {
	stubProgramFactory(t, fakeProgram{})
	workspace := t.TempDir()
	t.Chdir(workspace)
	isolateConfig(t)

	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"--dev"}, io.Discard, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := strings.TrimSpace(stderr.String()); got != "" {
		t.Fatalf("expected no runtime stderr output in TUI mode, got %q", got)
	}

	logDir := filepath.Join(workspace, ".tavla", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var logPath string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		logPath = filepath.Join(logDir, entry.Name())
		break
	}
	if logPath == "" {
		t.Fatalf("expected a .log file in %s", logDir)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "starting tui program loop") {
		t.Fatalf("expected runtime log file to include TUI lifecycle entries, got %q", string(content))
	}
}

// TestWorkspaceRootFromUsesNearestMarker verifies workspace-root resolution behavior.
func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "tavla")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	got := workspaceRootFrom(nested)
	if filepath.Clean(got) != filepath.Clean(root) {
		t.Fatalf("expected workspace root %q, got %q", root, got)
	}
}

// TestDevLogFilePathResolvesAgainstWorkspaceRoot verifies relative log dirs anchor at workspace root.
func TestDevLogFilePathResolvesAgainstWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "tavla")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	t.Chdir(nested)

	got, err := devLogFilePath("", "tavla", time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	normalize := func(p string) string {
		return strings.TrimPrefix(filepath.Clean(p), "/private")
	}
	want := filepath.Join(root, ".tavla", "log", "tavla-20260222.log")
	if normalize(got) != normalize(want) {
		t.Fatalf("expected log path %q, got %q", want, got)
	}
}

// TestSanitizeLogFileStem verifies app names become safe file stems.
func TestSanitizeLogFileStem(t *testing.T) {
	if got := sanitizeLogFileStem(" team/board:dev "); got != "team-board-dev" {
		t.Fatalf("sanitizeLogFileStem() = %q, want team-board-dev", got)
	}
	if got := sanitizeLogFileStem(" / "); got != "tavla" {
		t.Fatalf("sanitizeLogFileStem(blank) = %q, want tavla", got)
	}
}

// TestRunRejectsInvalidLoggingLevelFromConfig verifies behavior for the covered scenario.
func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	cfgPath := isolateConfig(t)
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"verbose\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	err := run(context.Background(), []string{"board"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "invalid logging.level") {
		t.Fatalf("expected invalid logging level error, got %v", err)
	}
}

// TestRuntimeLoggerCanMuteConsoleSink verifies the console sink can be silenced while the TUI runs.
func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/tavla.db").Logging

	logger, err := newRuntimeLogger(&console, "tavla", false, cfg, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.SetConsoleEnabled(false)
	logger.Info("during")
	logger.SetConsoleEnabled(true)
	logger.Info("after")

	out := console.String()
	if !strings.Contains(out, "before") {
		t.Fatalf("expected console log to include 'before', got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include 'after', got %q", out)
	}
	if logger.DevLogPath() != "" {
		t.Fatalf("expected no dev log path outside dev mode, got %q", logger.DevLogPath())
	}
}

// TestRemoteTitle verifies the header caption uses the remote host.
func TestRemoteTitle(t *testing.T) {
	if got := remoteTitle("http://tasks.example.com:8080/api/v1"); got != "tasks.example.com:8080" {
		t.Fatalf("remoteTitle() = %q", got)
	}
	if got := remoteTitle("not a url"); got != "not a url" {
		t.Fatalf("remoteTitle(invalid) = %q", got)
	}
}
