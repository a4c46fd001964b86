// Package cmd implements the farmgate command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "farmgate",
	Short: "Edge gatekeeper for the farm storefront",
	Long: `farmgate sits in front of the storefront renderer. It rate limits API
requests per client, logs every request, keeps hosted-auth sessions fresh
and forwards everything else to the renderer.

Configuration comes from defaults, an optional YAML file (--config) and
FARMGATE_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().Bool("dev", false, "development mode (enables DEBUG lines)")
	rootCmd.PersistentFlags().String("log-level", "info", "minimum log level: debug, info, warn, error")

	_ = viper.BindPFlag("log.development", rootCmd.PersistentFlags().Lookup("dev"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}
