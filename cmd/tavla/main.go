package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/hylla/tavla/internal/adapters/remote"
	serveradapter "github.com/hylla/tavla/internal/adapters/server"
	"github.com/hylla/tavla/internal/adapters/server/common"
	"github.com/hylla/tavla/internal/adapters/storage/sqlite"
	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/config"
	"github.com/hylla/tavla/internal/platform"
	"github.com/hylla/tavla/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the sandbox server; tests replace it.
var serveCommandRunner = serveradapter.Run

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions holds persistent flag values shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// newRootCommand builds the tavla command tree.
func newRootCommand(stderr io.Writer) *cobra.Command {
	opts := &rootOptions{appName: "tavla", devMode: version == "dev"}
	if envDev, ok := parseBoolEnv("TAVLA_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("TAVLA_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:           "tavla",
		Short:         "Terminal status board for a remote task service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("tui", stderr, func(env *runtimeEnv) error {
				return runBoardTUI(cmd.Context(), env)
			})
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to the sandbox sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newBoardCommand(opts, stderr),
		newMoveCommand(opts, stderr),
		newServeCommand(opts, stderr),
		newPathsCommand(opts),
	)
	return root
}

func newBoardCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Print columns and cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("board", stderr, func(env *runtimeEnv) error {
				return runBoardPrint(cmd.Context(), env, cmd.OutOrStdout())
			})
		},
	}
}

func newMoveCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task> <status>",
		Short: "Move one task to a status by id or name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime("move", stderr, func(env *runtimeEnv) error {
				return runMove(cmd.Context(), env, cmd.OutOrStdout(), args[0], args[1])
			})
		},
	}
}

func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local sandbox task service over REST and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("serve", stderr, func(env *runtimeEnv) error {
				if strings.TrimSpace(bind) != "" {
					env.cfg.Serve.Bind = bind
				}
				return runServe(cmd.Context(), env)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address, overriding serve.bind")
	return cmd
}

func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

// runtimeEnv carries resolved configuration and logging into one command flow.
type runtimeEnv struct {
	cfg    config.Config
	logger *runtimeLogger
}

func (o *rootOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// withRuntime resolves config and logging, runs fn, and closes the log sinks.
func (o *rootOptions) withRuntime(command string, stderr io.Writer, fn func(*runtimeEnv) error) error {
	paths, err := o.paths()
	if err != nil {
		return err
	}

	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("TAVLA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(o.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("TAVLA_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	cfg, err = cfg.ApplyEnv(os.Getenv)
	if err != nil {
		return fmt.Errorf("apply env overrides: %w", err)
	}

	logger, err := newRuntimeLogger(stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "tui" {
		// Runtime logs stay in the dev-file sink while the board owns the terminal.
		logger.SetConsoleEnabled(false)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil && logger.consoleActive() {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Info("startup configuration resolved", "app", o.appName, "dev_mode", o.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	logger.Info("configuration loaded", "config_path", configPath, "remote", cfg.Remote.BaseURL, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	env := &runtimeEnv{cfg: cfg, logger: logger}
	logger.Info("command flow start", "command", command)
	if err := fn(env); err != nil {
		logger.Error("command flow failed", "command", command, "err", err)
		return err
	}
	logger.Info("command flow complete", "command", command)
	return nil
}

// newRemoteClient builds the task service client from config.
func newRemoteClient(cfg config.Config, logger app.Logger) (*remote.Client, error) {
	client, err := remote.NewClient(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		Timeout:        cfg.Remote.RequestTimeout.Std(),
		TasksPath:      cfg.Remote.TasksPath,
		StatusesPath:   cfg.Remote.StatusesPath,
		TaskStatusPath: cfg.Remote.TaskStatusPath,
		TaskLimit:      cfg.Board.TaskLimit,
	}, remote.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build remote client: %w", err)
	}
	return client, nil
}

// newBoard wires one board session against the configured remote.
func newBoard(env *runtimeEnv, feedback app.FeedbackBus) (*app.Board, error) {
	client, err := newRemoteClient(env.cfg, env.logger)
	if err != nil {
		return nil, err
	}
	return app.NewBoard(app.BoardDeps{
		Tasks:    client,
		Statuses: client,
		Writer:   client,
		Feedback: feedback,
	}, app.BoardConfig{
		CacheTTL: env.cfg.Cache.TTL.Std(),
		Logger:   env.logger,
	}), nil
}

// openBoard loads the board once, turning transport failures into user-facing text.
func openBoard(ctx context.Context, board *app.Board) error {
	err := board.Open(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrNetwork), errors.Is(err, app.ErrMalformedResponse):
		return errors.New(app.UserMessage(err))
	default:
		return fmt.Errorf("open board: %w", err)
	}
}

// runBoardTUI runs the interactive board until the user quits.
func runBoardTUI(_ context.Context, env *runtimeEnv) error {
	toasts := tui.NewToasts(tui.DefaultToastTTL, time.Now)
	board, err := newBoard(env, toasts)
	if err != nil {
		return err
	}
	m := tui.NewModel(
		board,
		tui.WithToasts(toasts),
		tui.WithShowCounts(env.cfg.Board.ShowCounts),
		tui.WithKeyConfig(toTUIKeyConfig(env.cfg.Keys)),
		tui.WithTitle(remoteTitle(env.cfg.Remote.BaseURL)),
	)
	env.logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		env.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	return nil
}

// runBoardPrint loads the board once and prints it as plain text.
func runBoardPrint(ctx context.Context, env *runtimeEnv, out io.Writer) error {
	board, err := newBoard(env, app.NewWriterFeedback(out))
	if err != nil {
		return err
	}
	if err := openBoard(ctx, board); err != nil {
		return err
	}
	source := board.CatalogSource()
	_, _ = fmt.Fprintf(out, "statuses: %s %s\n", source.Source, source.Version)
	counters := board.Counters()
	for _, column := range board.Registry().Columns() {
		counter := counters[column.StatusID]
		count := strconv.Itoa(counter.Shown)
		if counter.Total > counter.Shown {
			count = fmt.Sprintf("%d of %d", counter.Shown, counter.Total)
		}
		_, _ = fmt.Fprintf(out, "%s (%s)\n", column.Name, count)
		for _, card := range board.Registry().Cards(column.StatusID) {
			_, _ = fmt.Fprintf(out, "  #%s %s\n", card.Task.ID, card.Task.Subject)
		}
	}
	return nil
}

// runMove relocates one task and reports the outcome.
func runMove(ctx context.Context, env *runtimeEnv, out io.Writer, taskID, statusRef string) error {
	board, err := newBoard(env, app.NewWriterFeedback(out))
	if err != nil {
		return err
	}
	if err := openBoard(ctx, board); err != nil {
		return err
	}
	return moveOnBoard(ctx, env.logger, board, out, taskID, statusRef)
}

// moveOnBoard relocates one task on an opened board and reports where it ended up.
func moveOnBoard(ctx context.Context, logger app.Logger, board *app.Board, out io.Writer, taskID, statusRef string) error {
	taskID = strings.TrimPrefix(strings.TrimSpace(taskID), "#")
	if _, ok := board.Registry().Card(taskID); !ok {
		return fmt.Errorf("task #%s is not on the board", taskID)
	}
	column, ok := board.Column(statusRef)
	if !ok {
		return fmt.Errorf("unknown status %q", statusRef)
	}
	outcome := board.Relocate(ctx, taskID, column.StatusID)
	logger.Info("move resolved", "task_id", taskID, "to", column.StatusID, "state", outcome.State)
	switch {
	case errors.Is(outcome.Err, app.ErrStaleResponse):
		// The server moved the task again before our confirmation landed; its state wins.
		current := "an unknown status"
		if id, ok := board.Registry().ColumnOf(taskID); ok {
			if synced, ok := board.Registry().Column(id); ok {
				current = synced.Name
			}
		}
		_, err := fmt.Fprintf(out, "info: task #%s is in %s\n", taskID, current)
		return err
	case outcome.State == app.StateReverted && outcome.Err != nil:
		return fmt.Errorf("move #%s to %s: %w", taskID, column.Name, outcome.Err)
	}
	return nil
}

// runServe opens the sandbox database and serves it until ctx ends.
func runServe(ctx context.Context, env *runtimeEnv) error {
	path := env.cfg.Database.Path
	env.logger.Info("opening sqlite repository", "db_path", path)
	repo, err := sqlite.Open(path)
	if err != nil {
		env.logger.Error("sqlite open failed", "db_path", path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			env.logger.Warn("sqlite close failed", "db_path", path, "err", closeErr)
		}
	}()
	if env.cfg.Serve.Seed {
		if err := repo.Seed(ctx, app.DefaultStatuses(), sqlite.DefaultSeed(time.Now())); err != nil {
			return fmt.Errorf("seed sandbox: %w", err)
		}
		env.logger.Info("sandbox seeded", "db_path", path)
	}

	cfg := serveradapter.Config{
		HTTPBind:      env.cfg.Serve.Bind,
		APIEndpoint:   env.cfg.Serve.APIEndpoint,
		MCPEndpoint:   env.cfg.Serve.MCPEndpoint,
		ServerName:    "tavla",
		ServerVersion: version,
	}
	env.logger.Info("serving sandbox", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
	if err := serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
		Tasks:  common.NewStoreAdapter(repo, time.Now),
		Logger: env.logger,
	}); err != nil {
		return fmt.Errorf("run sandbox server: %w", err)
	}
	return nil
}

// toTUIKeyConfig maps config key overrides onto the board key map.
func toTUIKeyConfig(cfg config.KeyConfig) tui.KeyConfig {
	return tui.KeyConfig{
		MoveTaskLeft:  cfg.MoveTaskLeft,
		MoveTaskRight: cfg.MoveTaskRight,
		Refresh:       cfg.Refresh,
		TaskInfo:      cfg.TaskInfo,
		CopyID:        cfg.CopyID,
	}
}

// remoteTitle returns the host part of the remote base url.
func remoteTitle(baseURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Host == "" {
		return baseURL
	}
	return parsed.Host
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
