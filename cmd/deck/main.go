// deck runs launcher extensions from the terminal and serves them to a
// front end over the bridge.
//
// Usage:
//
//	deck list                                  List extensions and commands
//	deck run <ext> <cmd> [k=v...] [flags]      Open a command and print its view
//	deck serve [--addr a] [--verbose]          Run the bridge in the foreground
//	deck up                                    Start the bridge in the background
//	deck down                                  Stop the background bridge
//	deck status                                Health check the bridge
//	deck logs                                  Tail the background bridge log
//	deck check <file|dir>                      Run scenario checks
//	deck mcp                                   Start MCP server over stdio
//	deck config show|set|unset                 Inspect or edit the config file
//	deck version                               Print the deck version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/extdeck/extdeck/extensions/all"
	"github.com/extdeck/extdeck/internal/client"
	"github.com/extdeck/extdeck/internal/config"
	"github.com/extdeck/extdeck/internal/host"
	"github.com/extdeck/extdeck/internal/mcp"
	"github.com/extdeck/extdeck/internal/procmgr"
	"github.com/extdeck/extdeck/internal/scenario"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd, args, configPath := parseArgs(os.Args[1:])

	if cmd == "" || cmd == "help" || cmd == "--help" || cmd == "-h" {
		printUsage()
		if cmd == "" {
			os.Exit(1)
		}
		return
	}
	if cmd == "version" || cmd == "--version" || cmd == "-v" {
		fmt.Printf("deck version %s\n", version)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deck: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "list":
		err = cmdList(os.Stdout)
	case "run":
		err = cmdRun(cfg, args)
	case "serve":
		err = cmdServe(cfg, args)
	case "up":
		err = cmdUp(cfg)
	case "down":
		err = cmdDown(cfg)
	case "status":
		err = cmdStatus(cfg)
	case "logs":
		err = cmdLogs(cfg)
	case "check":
		err = cmdCheck(cfg, args)
	case "mcp":
		err = cmdMcp(cfg)
	case "config":
		err = cmdConfig(cfg, args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "deck: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "deck: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs extracts the subcommand, its arguments and a --config path.
func parseArgs(raw []string) (command string, args []string, configPath string) {
	var filtered []string
	for i := 0; i < len(raw); i++ {
		if raw[i] == "--config" && i+1 < len(raw) {
			configPath = raw[i+1]
			i++
			continue
		}
		filtered = append(filtered, raw[i])
	}
	if len(filtered) == 0 {
		return "", nil, configPath
	}
	return filtered[0], filtered[1:], configPath
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func printUsage() {
	fmt.Printf(`deck - launcher extensions CLI %s

Usage:
  deck [--config <path>] <command> [arguments]

Commands:
  list                         List extensions and their commands
  run <ext> <cmd> [k=v...]     Open a command, print its view as JSON
      --search <text>          Type into the search bar after loading
      --filter <value>         Pick a dropdown value after loading
      --action <id>            Perform an action after loading
      --input <k=v>            Form value for --action (repeatable)
  serve [--addr a] [--verbose] Run the bridge in the foreground
  up                           Start the bridge in the background
  down                         Stop the background bridge
  status                       Health check the bridge
  logs                         Tail the background bridge log
  check <file|dir>             Run scenario checks (.json, .yaml)
  mcp                          Start MCP server over stdio (for AI agents)
  config show                  Print the config (secrets masked)
  config set <key> <value>     Set data_dir, bridge_addr, verbose or <ext>.<pref>
  config unset <ext>.<pref>    Remove an extension preference
  version                      Print the deck version

Environment:
  DECK_CONFIG                  Override the config file path
  DECK_<EXT>_<PREF>            Override an extension preference
`, version)
}

// newLauncher opens the SQLite store and builds a launcher over every
// bundled extension. closeStore releases the store.
func newLauncher(cfg *config.Config, logger *slog.Logger) (l *host.Launcher, closeStore func(), err error) {
	store, err := kv.OpenSQLite(cfg.StorePath())
	if err != nil {
		return nil, nil, err
	}
	l = &host.Launcher{
		Registry: all.Registry(),
		Store:    store,
		Prefs:    prefsFunc(cfg, os.LookupEnv),
		Logger:   logger,
	}
	return l, func() { store.Close() }, nil
}

func prefsFunc(cfg *config.Config, lookup func(string) (string, bool)) host.PrefsFunc {
	return func(ext string, specs []extension.PreferenceSpec) map[string]string {
		names := make([]string, len(specs))
		for i, s := range specs {
			names[i] = s.Name
		}
		return cfg.Preferences(ext, names, lookup)
	}
}

// cliLogger writes text logs to stderr, quiet unless verbose.
func cliLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ---------------------------------------------------------------------------
// deck list
// ---------------------------------------------------------------------------

func cmdList(w io.Writer) error {
	for _, e := range all.Registry().List() {
		fmt.Fprintf(w, "%s  %s\n", e.Name, e.Title)
		for _, c := range e.Commands {
			fmt.Fprintf(w, "  %-16s %s%s\n", c.Name, c.Title, argHint(c.Arguments))
		}
		for _, p := range e.Preferences {
			if p.Required {
				fmt.Fprintf(w, "  requires %s.%s\n", e.Name, p.Name)
			}
		}
	}
	return nil
}

func argHint(args []extension.Argument) string {
	var b strings.Builder
	for _, a := range args {
		if a.Required {
			fmt.Fprintf(&b, " <%s>", a.Name)
		} else {
			fmt.Fprintf(&b, " [%s]", a.Name)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// deck run
// ---------------------------------------------------------------------------

type runOptions struct {
	Extension string
	Command   string
	Args      map[string]string
	Search    *string
	Filter    *string
	Action    string
	Input     map[string]string
}

const runUsage = "usage: deck run <ext> <cmd> [k=v...] [--search t] [--filter v] [--action id [--input k=v]...]"

func parseRunArgs(args []string) (runOptions, error) {
	opts := runOptions{Args: map[string]string{}, Input: map[string]string{}}
	var positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") {
			positional = append(positional, a)
			continue
		}
		if i+1 >= len(args) {
			return opts, fmt.Errorf("%s needs a value\n%s", a, runUsage)
		}
		v := args[i+1]
		i++
		switch a {
		case "--search":
			opts.Search = &v
		case "--filter":
			opts.Filter = &v
		case "--action":
			opts.Action = v
		case "--input":
			k, val, ok := strings.Cut(v, "=")
			if !ok || k == "" {
				return opts, fmt.Errorf("--input wants key=value, got %q", v)
			}
			opts.Input[k] = val
		default:
			return opts, fmt.Errorf("unknown flag %s\n%s", a, runUsage)
		}
	}
	if len(positional) < 2 {
		return opts, errors.New(runUsage)
	}
	opts.Extension, opts.Command = positional[0], positional[1]
	for _, pair := range positional[2:] {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return opts, fmt.Errorf("argument %q is not key=value", pair)
		}
		opts.Args[k] = v
	}
	if len(opts.Input) > 0 && opts.Action == "" {
		return opts, errors.New("--input needs --action")
	}
	return opts, nil
}

func cmdRun(cfg *config.Config, args []string) error {
	opts, err := parseRunArgs(args)
	if err != nil {
		return err
	}
	l, closeStore, err := newLauncher(cfg, cliLogger(cfg.Verbose))
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, l, opts, os.Stdout, os.Stderr)
}

// run opens the command, lets it settle, applies the requested input and
// prints the final envelope to out and every toast to errOut. When ctx ends
// while the command is still working, run prints what it has and returns.
func run(ctx context.Context, l *host.Launcher, opts runOptions, out, errOut io.Writer) error {
	sess, err := l.Open(ctx, "cli", opts.Extension, opts.Command, opts.Args)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := settle(ctx, sess); err != nil {
		return err
	}

	var applyErr error
	if opts.Search != nil {
		applyErr = sess.Search(*opts.Search)
	}
	if applyErr == nil && opts.Filter != nil {
		applyErr = sess.Filter(*opts.Filter)
	}
	if applyErr == nil && opts.Action != "" {
		if applyErr = settle(ctx, sess); applyErr == nil {
			applyErr = sess.Perform(ctx, opts.Action, opts.Input)
		}
	}
	if err := settle(ctx, sess); err != nil && applyErr == nil {
		applyErr = err
	}

	snap := sess.Snapshot()
	for _, t := range snap.Toasts {
		printToast(errOut, t)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap.View); err != nil {
		return fmt.Errorf("encoding view: %w", err)
	}
	return applyErr
}

// settle waits for the session's pending work or for ctx to end. Work that
// is still running, such as a local process, is left alone.
func settle(ctx context.Context, sess *host.Session) error {
	done := make(chan struct{})
	go func() {
		sess.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("interrupted: %w", context.Cause(ctx))
	}
}

func printToast(w io.Writer, t notify.Toast) {
	if t.Message == "" {
		fmt.Fprintf(w, "[%s] %s\n", t.Style, t.Title)
		return
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", t.Style, t.Title, t.Message)
}

// ---------------------------------------------------------------------------
// deck serve
// ---------------------------------------------------------------------------

func cmdServe(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.BridgeAddr, "Bridge listen address")
	verbose := fs.Bool("verbose", cfg.Verbose, "Enable request/debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	l, closeStore, err := newLauncher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	l.Notifier = notify.Log{Logger: logger}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return host.NewServer(l, version, logger, *verbose).ListenAndServe(ctx, *addr)
}

// ---------------------------------------------------------------------------
// deck up / down / status / logs
// ---------------------------------------------------------------------------

func cmdUp(cfg *config.Config) error {
	if entry, ok, _ := procmgr.LoadPid(cfg.DataDir); ok && procmgr.IsRunning(entry.PID) {
		fmt.Printf("Bridge already running (pid %d, %s)\n", entry.PID, entry.Addr)
		return nil
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating deck binary: %w", err)
	}
	args := []string{"--config", cfg.File(), "serve", "--addr", cfg.BridgeAddr}
	if cfg.Verbose {
		args = append(args, "--verbose")
	}
	pid, err := procmgr.Start(self, args, filepath.Join(cfg.DataDir, procmgr.LogFileName))
	if err != nil {
		return err
	}
	if err := procmgr.SavePid(cfg.DataDir, procmgr.PidEntry{PID: pid, Addr: cfg.BridgeAddr, Started: time.Now().UTC()}); err != nil {
		return fmt.Errorf("saving pid state: %w", err)
	}
	fmt.Printf("Bridge started (pid %d)\n", pid)

	bc := client.New(cfg.BridgeAddr)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := bc.Health(ctx)
		cancel()
		if err == nil {
			fmt.Printf("Bridge healthy at http://%s\n", cfg.BridgeAddr)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("bridge did not become healthy; see 'deck logs'")
}

func cmdDown(cfg *config.Config) error {
	entry, ok, err := procmgr.LoadPid(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("loading pid state: %w", err)
	}
	if !ok {
		fmt.Println("Bridge not running.")
		return nil
	}
	if !procmgr.IsRunning(entry.PID) {
		fmt.Println("Bridge already stopped.")
	} else if err := procmgr.Stop(entry.PID, 5*time.Second); err != nil {
		return err
	} else {
		fmt.Printf("Bridge stopped (was pid %d)\n", entry.PID)
	}
	procmgr.RemovePid(cfg.DataDir)
	return nil
}

func cmdStatus(cfg *config.Config) error {
	pid := "-"
	if entry, ok, _ := procmgr.LoadPid(cfg.DataDir); ok && procmgr.IsRunning(entry.PID) {
		pid = fmt.Sprintf("%d", entry.PID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bc := client.New(cfg.BridgeAddr)

	fmt.Println()
	fmt.Printf("  %-22s %-8s %-11s %-9s %s\n", "BRIDGE", "PID", "HEALTH", "SESSIONS", "VERSION")
	fmt.Printf("  %-22s %-8s %-11s %-9s %s\n", "------", "---", "------", "--------", "-------")

	h, err := bc.Health(ctx)
	if err != nil {
		fmt.Printf("  %-22s %-8s %-11s %-9s %s\n", cfg.BridgeAddr, pid, "down", "-", "-")
		fmt.Println()
		return nil
	}
	fmt.Printf("  %-22s %-8s %-11s %-9d %s\n", cfg.BridgeAddr, pid, h.Status, h.Sessions, h.Version)

	exts, err := bc.Extensions(ctx)
	if err == nil {
		names := make([]string, len(exts))
		for i, e := range exts {
			names[i] = e.Name
		}
		fmt.Printf("\n  extensions: %s\n", strings.Join(names, ", "))
	}
	fmt.Println()
	return nil
}

func cmdLogs(cfg *config.Config) error {
	logPath := filepath.Join(cfg.DataDir, procmgr.LogFileName)
	if _, err := os.Stat(logPath); err != nil {
		return fmt.Errorf("no bridge log found (expected %s)", logPath)
	}

	cmd := exec.Command("tail", "-f", "-n", "100", logPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}()
	return cmd.Run()
}

// ---------------------------------------------------------------------------
// deck check
// ---------------------------------------------------------------------------

func cmdCheck(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: deck check <file|dir>")
	}
	scenarios, err := scenario.LoadPath(args[0])
	if err != nil {
		return err
	}
	l, closeStore, err := newLauncher(cfg, cliLogger(cfg.Verbose))
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if failed := check(ctx, scenario.NewRunner(l, l.Logger), scenarios, os.Stdout); failed > 0 {
		return fmt.Errorf("%d step(s) failed", failed)
	}
	return nil
}

// check runs every scenario, prints a report to w and returns the number of
// failed steps. A scenario that cannot open counts as one failure.
func check(ctx context.Context, runner *scenario.Runner, scenarios []*scenario.Scenario, w io.Writer) (failed int) {
	passed := 0
	for _, s := range scenarios {
		fmt.Fprintf(w, "\n--- %s ---\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(w, "    %s\n", s.Description)
		}
		fmt.Fprintln(w)

		result, err := runner.Run(ctx, s)
		if err != nil {
			fmt.Fprintf(w, "  ERROR: %v\n", err)
			failed++
			continue
		}
		for _, sr := range result.Steps {
			if sr.Passed {
				fmt.Fprintf(w, "  PASS  %-50s (%s)\n", sr.Name, sr.Duration.Round(time.Millisecond))
				passed++
				continue
			}
			fmt.Fprintf(w, "  FAIL  %-50s (%s)\n", sr.Name, sr.Duration.Round(time.Millisecond))
			fmt.Fprintf(w, "        %s\n", sr.Error)
			failed++
		}
		label := "PASSED"
		if !result.Passed {
			label = "FAILED"
		}
		fmt.Fprintf(w, "\n  Scenario: %s (%s)\n", label, result.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "\nResults: %d passed, %d failed, %d total\n", passed, failed, passed+failed)
	return failed
}

// ---------------------------------------------------------------------------
// deck mcp
// ---------------------------------------------------------------------------

func cmdMcp(cfg *config.Config) error {
	// stdout carries the protocol; logs go to stderr.
	logger := cliLogger(cfg.Verbose)
	l, closeStore, err := newLauncher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mcp.NewServer(l, version, logger).Serve(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// deck config
// ---------------------------------------------------------------------------

func cmdConfig(cfg *config.Config, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: deck config show|set <key> <value>|unset <ext>.<pref>")
	}
	switch args[0] {
	case "show":
		data, err := yaml.Marshal(cfg.Masked(isSecret(all.Registry())))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "# %s\n%s", cfg.File(), data)
		return nil
	case "set":
		if len(args) != 3 {
			return errors.New("usage: deck config set <key> <value>")
		}
		if err := checkPrefKey(all.Registry(), args[1]); err != nil {
			return err
		}
		if err := cfg.Set(args[1], args[2]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(w, "Set %s\n", args[1])
		return nil
	case "unset":
		if len(args) != 2 {
			return errors.New("usage: deck config unset <ext>.<pref>")
		}
		ok, err := cfg.Unset(args[1])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(w, "%s was not set\n", args[1])
			return nil
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(w, "Unset %s\n", args[1])
		return nil
	}
	return fmt.Errorf("unknown config subcommand %q", args[0])
}

func isSecret(reg *extension.Registry) func(ext, pref string) bool {
	return func(ext, pref string) bool {
		e, err := reg.Get(ext)
		if err != nil {
			return false
		}
		for _, p := range e.Preferences {
			if p.Name == pref {
				return p.Secret
			}
		}
		return false
	}
}

// checkPrefKey rejects <ext>.<pref> keys no installed extension declares.
// Top-level keys pass through to config.Set.
func checkPrefKey(reg *extension.Registry, key string) error {
	ext, pref, ok := strings.Cut(key, ".")
	if !ok {
		return nil
	}
	e, err := reg.Get(ext)
	if err != nil {
		return fmt.Errorf("unknown extension %q", ext)
	}
	for _, p := range e.Preferences {
		if p.Name == pref {
			return nil
		}
	}
	return fmt.Errorf("extension %s has no preference %q", ext, pref)
}
