package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/relay/internal/config"
	"github.com/bamsammich/relay/internal/logging"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// levelFlag is a pflag.Value for slog levels.
type levelFlag struct {
	level slog.Level
}

var _ pflag.Value = (*levelFlag)(nil)

func (l *levelFlag) String() string { return strings.ToLower(l.level.String()) }
func (*levelFlag) Type() string     { return "level" }

func (l *levelFlag) Set(val string) error {
	lvl, err := logging.ParseLevel(val)
	if err != nil {
		return err
	}
	l.level = lvl
	return nil
}

// app carries state shared by every subcommand once the root pre-run has
// loaded the config and configured logging.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	cfg        config.Config
	logger     *slog.Logger
	closeLog   func() error
	configPath string
	logFile    string
	logFormat  string
	level      levelFlag
}

func (a *app) setup() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a.logger, a.closeLog, err = logging.Setup(logging.Options{
		Stderr: a.stderr,
		Format: a.logFormat,
		File:   a.logFile,
		Level:  a.level.level,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Copy new files from configured feeds into a sink, exactly once",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/relay/config.toml)")
	pf.StringVar(&a.logFile, "log", "", "also write a structured JSON log to FILE")
	pf.StringVar(&a.logFormat, "log-format", logging.FormatAuto, "stderr log format: auto, text or json")
	a.level.level = slog.LevelInfo
	pf.Var(&a.level, "log-level", "log level: debug, info, warn or error")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newFeedsCmd(a))
	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, verify *bool, workers *int) {
	if !cmd.Flags().Changed("verify") && defaults.Verify != nil {
		*verify = *defaults.Verify
	}
	if !cmd.Flags().Changed("workers") && defaults.Workers != nil {
		*workers = *defaults.Workers
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
