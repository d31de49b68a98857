package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-chat/internal/db"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/ingest"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/observability"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"
	"pdf-chat/internal/server"
	"pdf-chat/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long:  `Connects the database and vector store, then serves the chat, upload and listing API until interrupted.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := appConfig

	shutdownTracing, err := observability.Setup(ctx, &cfg.Tracing, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error shutting down tracing")
		}
	}()

	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Driver, cfg.Database.Debug)
	defer bunDB.Close()

	if err := db.InitDB(ctx, bunDB); err != nil {
		return err
	}

	store, err := vectorstore.New(ctx, &cfg.VectorDB, bunDB)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing vector store")
		}
	}()

	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM)
	if err != nil {
		return err
	}
	chatModel, err := llmservice.NewClient(ctx, &cfg.ChatLLM, false)
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}
	splitter, err := parser.NewSplitter(&cfg.RAG)
	if err != nil {
		return err
	}

	repo := db.NewDocumentRepo(bunDB)
	handler := server.NewHandler(
		repo,
		rag.NewRAG(store, embedder, chatModel, cfg),
		ingest.NewService(repo, store, embedder, splitter),
		bunDB,
		cfg.Server.MaxUploadBytes,
	)

	gin.SetMode(gin.ReleaseMode)
	log.Info().
		Str("database", cfg.Database.Driver).
		Str("vector_db", cfg.VectorDB.Type).
		Str("chat_model", cfg.ChatLLM.Model).
		Str("embed_model", cfg.EmbedLLM.Model).
		Msg("Starting pdf-chat")
	return server.New(&cfg.Server, server.NewRouter(cfg, handler)).Run(ctx)
}
