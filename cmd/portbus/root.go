package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-port-bus/internal/config"
	"github.com/next-trace/scg-port-bus/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "portbus",
		Short:         "Request/response messaging over named ports",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}

			if a.verbose {
				cfg.Verbose = true
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = logging.New(cmd.ErrOrStderr(), cfg.Verbose)

			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: ./portbus.toml or $XDG_CONFIG_HOME/portbus/)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSendCmd(a))
	root.AddCommand(newStorageCmd(a))
	root.AddCommand(newTabsCmd(a))

	return root
}
