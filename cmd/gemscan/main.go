package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "GemScan"
	version = "v1.0.0"
)

var (
	configPath string
	logLevel   string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "gemscan",
		Short:   "Solana meme-coin scanner",
		Version: version,
		Long: `GemScan aggregates Solana token data from Birdeye, DexScreener, and
pump.fun, runs discovery strategies on a schedule, and surfaces early gem
candidates. Batch fetching adapts to each provider's detected capabilities.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			applyLogLevel()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug|info|warn|error)")

	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newStatsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func applyLogLevel() {
	if logLevel == "" {
		return
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("Unknown log level, keeping default")
		return
	}
	zerolog.SetGlobalLevel(level)
}
