package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forPelevin/automv/internal/config"
	"github.com/forPelevin/automv/internal/logging"
)

const skipConfig = "skip-config"

// app carries the state every command shares once the root pre-run has
// loaded config and logging.
type app struct {
	cfgPath    string
	logLevel   string
	logFormat  string
	noProgress bool

	cfg *config.Config
	log zerolog.Logger
}

func Main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:          "automv",
		Short:        "Cut videos to the beat of a music track",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load() // best-effort: load .env if present
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SilenceErrors = true

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "Config file (default ./automv.toml, then ~/.config/automv/config.toml)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: console or json")
	pf.BoolVar(&a.noProgress, "no-progress", false, "Disable progress bars")

	root.AddCommand(
		newRunCmd(a),
		newBatchCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newConfigCmd(),
	)
	return root
}

func (a *app) load(logOut io.Writer) error {
	cfg, path, exists, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	log, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Out: logOut})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	a.cfg, a.log = cfg, log
	if exists {
		log.Debug().Str("path", path).Msg("config loaded")
	} else {
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	}
	return nil
}
