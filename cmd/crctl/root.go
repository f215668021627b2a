package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bionicotaku/codereview-sessionx"
)

// routeAnnotation names the route a command renders. The navigation guard
// runs on it before the command does.
const routeAnnotation = "crctl.route"

// errDenied is returned when the guard turned a command away. The guard has
// already told the user why.
var errDenied = errors.New("navigation denied")

type cli struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	version string

	envFile string
	verbose bool
	baseURL string
	store   string
	dev     bool
	noColor bool

	// Overridable in tests.
	medium    sessionx.Medium
	transport http.RoundTripper
	fs        afero.Fs

	app      *sessionx.App
	nav      sessionx.Navigation
	logger   *slog.Logger
	notifier *countingNotifier
	titles   sessionx.TitleRecorder
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{
		in:      in,
		out:     out,
		errOut:  errOut,
		version: "dev",
		fs:      afero.NewOsFs(),
	}
}

// run executes args and returns the process exit code. Every failure is
// reported exactly once: either a notification already went out while the
// command ran, or the error is printed here.
func (c *cli) run(ctx context.Context, args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	err := root.ExecuteContext(ctx)
	if c.app != nil {
		if cerr := c.app.Close(); cerr != nil && c.logger != nil {
			c.logger.Warn("close storage", "error", cerr)
		}
	}
	if err == nil {
		return 0
	}
	switch {
	case c.notifier == nil:
		fmt.Fprintln(c.errOut, "Error: "+err.Error())
	case c.notifier.failures() == 0:
		c.notifier.Notify(ctx, sessionx.SeverityError, err.Error())
	}
	return 1
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crctl",
		Short: "AI code review platform client",
		Long: `crctl signs in to the AI code review platform and talks to its API.

Every command is a page of the platform: pages behind the login check refuse
to run without a fresh session.

Example usage:
  crctl login -u alice          # Sign in (password is prompted)
  crctl whoami                  # Show the signed-in profile
  crctl tasks --status 2        # List completed reviews
  crctl export --ids 1,2        # Download a PDF report
  crctl logout                  # End the session`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&c.baseURL, "base-url", "", "backend base URL (env CRCTL_BASE_URL)")
	flags.StringVar(&c.store, "store", "", "credential store: file, redis or memory (env CRCTL_STORE)")
	flags.BoolVar(&c.dev, "dev", false, "sign sessions locally instead of calling the backend (env CRCTL_DEV)")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.registerCmd(),
		c.whoamiCmd(),
		c.statusCmd(),
		c.openCmd(),
		c.tasksCmd(),
		c.taskCmd(),
		c.exportCmd(),
		c.versionCmd(),
	)
	return root
}

// setup loads configuration, wires the session and runs the guard for the
// command's route.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := c.loadEnv(); err != nil {
		return err
	}
	cfg, err := sessionx.ParseConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = c.baseURL
	}
	if flags.Changed("store") {
		cfg.Store = c.store
	}
	if flags.Changed("dev") {
		cfg.Dev = c.dev
	}
	if c.noColor {
		cfg.Color = false
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Apply(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, _ := sessionx.ParseLogLevel(cfg.LogLevel)
	c.logger = slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: level}))
	c.notifier = &countingNotifier{
		next: sessionx.NewTerminalNotifierWriters(c.out, c.errOut, cfg.Color && !color.NoColor),
	}

	c.app, err = sessionx.NewApp(cmd.Context(), cfg, sessionx.AppOptions{
		Notifier:  c.notifier,
		Logger:    c.logger,
		Titles:    &c.titles,
		Medium:    c.medium,
		Fs:        c.fs,
		Transport: c.transport,
	})
	if err != nil {
		return err
	}
	c.logger.Debug("configuration loaded",
		"base_url", cfg.BaseURL,
		"store", cfg.Store,
		"dev", cfg.Dev,
	)

	if route := cmd.Annotations[routeAnnotation]; route != "" {
		return c.navigate(cmd.Context(), route)
	}
	return nil
}

func (c *cli) loadEnv() error {
	if c.envFile == "" {
		return nil
	}
	err := godotenv.Load(c.envFile)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", c.envFile, err)
}

// navigate runs the guard for path and records where navigation ended.
func (c *cli) navigate(ctx context.Context, path string) error {
	nav, err := c.app.Navigator.Push(ctx, path)
	if err != nil {
		return err
	}
	c.nav = nav
	c.logger.Debug("navigated",
		"requested", path,
		"location", nav.Location.Path,
		"redirects", nav.Redirects,
		"title", c.titles.Title(),
	)
	if nav.Reason != "" {
		return errDenied
	}
	return nil
}

// ctx returns the command context carrying the session the guard admitted.
func (c *cli) ctx(cmd *cobra.Command) context.Context {
	return c.nav.Context(cmd.Context())
}

// countingNotifier forwards notifications and remembers whether a warning
// or error has been shown.
type countingNotifier struct {
	next  sessionx.Notifier
	shown atomic.Int32
}

func (n *countingNotifier) Notify(ctx context.Context, severity sessionx.Severity, message string) {
	if severity >= sessionx.SeverityWarning {
		n.shown.Add(1)
	}
	n.next.Notify(ctx, severity, message)
}

func (n *countingNotifier) failures() int {
	return int(n.shown.Load())
}
