// Package cmd provides the CLI commands for classdeploy.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/config"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/pkg/logging"
)

var (
	// cfgFile holds the path to the config file
	cfgFile string
	// verbose enables verbose output
	verbose bool
	// outputFormat specifies the output format (json or plain)
	outputFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "classdeploy",
	Short: "Classroom firmware deployment orchestrator",
	Long: `classdeploy pushes Arduino sketches onto a classroom fleet of
workstations. It schedules one deployment job per target host with bounded
concurrency, picks the transport per host operating system, and tracks
every outcome.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// NewRootCmd creates a fresh command tree for testing.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "classdeploy",
		Short:        rootCmd.Short,
		Long:         rootCmd.Long,
		SilenceUsage: true,
	}
	addCommands(cmd)
	return cmd
}

func init() {
	addCommands(rootCmd)
}

func addCommands(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./classdeploy.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDeployCmd())
	cmd.AddCommand(newHostsCmd())
}

// loadConfig resolves the configuration: the --config file when given,
// ./classdeploy.yaml when present, defaults otherwise.
func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	if cfg, err := config.Load("classdeploy.yaml"); err == nil {
		return cfg, nil
	}
	return config.Default(), nil
}

// newLogger builds the process logger from config and the verbose flag.
func newLogger(cfg config.Config) *logging.Logger {
	lc := cfg.Logging
	if verbose {
		lc.Level = "debug"
	}
	logger := logging.New(lc)
	logger.SetDefault()
	return logger
}
