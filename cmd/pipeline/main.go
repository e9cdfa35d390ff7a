package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	var opts rootOptions

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Editorial content pipeline",
		Long:          "Ingests regulatory feeds into scored ideas, drafts articles with an AI provider and tracks review and publishing.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (env: PIPELINE_LOG_LEVEL)")

	root.AddCommand(
		importCmd(&opts),
		pollCmd(&opts),
		startCmd(&opts),
		serverCmd(&opts),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
