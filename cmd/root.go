package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sagan/gridgen/internal/config"
)

var RootCmd = &cobra.Command{
	Use:           "gridgen",
	Short:         "gridgen - combinatorial batch image generation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	FlagConfig   string
	FlagLogLevel string
)

func init() {
	RootCmd.PersistentFlags().StringVarP(&FlagConfig, "config", "c", "",
		`Config file path. Defaults to $HOME/.gridgen/config.yaml if present`)
	RootCmd.PersistentFlags().StringVarP(&FlagLogLevel, "log-level", "", "info",
		`Log level: trace, debug, info, warn, error`)
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, err := log.ParseLevel(FlagLogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// LoadConfig loads config per FlagConfig, shared by every subcommand that
// needs the pool/queue/notification settings.
func LoadConfig() (*config.Config, error) {
	return config.Load(FlagConfig)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
