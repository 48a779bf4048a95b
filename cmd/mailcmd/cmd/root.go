package cmd

import "github.com/spf13/cobra"

var (
	cfgFile      string
	servicesPath string
	logLevel     string
	logFormat    string

	// Version is set by the main package via ldflags.
	Version = "dev"
)

// NewRootCmd creates the root mailcmd command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "mailcmd",
		Short:        "Trigger automation actions from authorized email",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&servicesPath, "services", "", "services file path (overrides services.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json (overrides log.format)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPollCmd())
	rootCmd.AddCommand(newServicesCmd())
	rootCmd.AddCommand(newSecretsCmd())

	return rootCmd
}
