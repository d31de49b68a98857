package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-chat/internal/client"
	"pdf-chat/internal/config"
	"pdf-chat/internal/transcript"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	configPath    string
	serverURL     string
	transcriptDir string

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "pdf-chat",
	Short:         "Chat with your PDF documents",
	Long:          `Upload PDF documents and ask questions about them. Run "pdf-chat serve" to start the server, the other commands talk to a running server.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg
		setupLogging(&cfg.Log, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the config file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Base URL of the pdf-chat server")
	rootCmd.PersistentFlags().StringVar(&transcriptDir, "transcripts", "./transcripts", "Directory for local chat transcripts")
}

func setupLogging(cfg *config.LogConfig, out io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func newClient() *client.Client {
	return client.New(serverURL, nil)
}

func newTranscripts() *transcript.Store {
	return transcript.NewStore(transcriptDir)
}
