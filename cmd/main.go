package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"policy-rag/internal/config"
)

const configFilePath = "./configs/config.yaml"

var (
	cfgFile string
	debug   bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "policy-rag",
	Short: "Retrieval over insurance policy documents",
	Long: `policy-rag extracts text and tables from insurance policy documents,
splits them into section-aware chunks, indexes their embeddings and answers
questions by similarity search re-ranked with insurance domain signals.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		setupLogger(debug)
		if cmd.Annotations["skip-config"] == "true" {
			return nil
		}
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w\nRun `policy-rag config init` to create one", err)
		}
		log.Debug().Str("path", cfgFile).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", configFilePath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
}

func setupLogger(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
