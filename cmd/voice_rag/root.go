package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"voice_rag/internal/app"
	"voice_rag/internal/config"
)

var (
	dataDir string
	envFile string
)

func rootCMD() *cobra.Command {
	root := &cobra.Command{
		Use:   "voice_rag",
		Short: "Local knowledge base: upload documents, ask questions",
		Long: `voice_rag splits uploaded PDF, DOCX, TXT and Markdown files into chunks,
embeds them into a persistent vector index and answers questions
with an LLM using the most relevant chunks as context.

Without a subcommand it starts the interactive console.`,
		SilenceUsage: true,
		RunE:         runChat,
	}
	root.PersistentFlags().StringVar(&dataDir, "data", "", "data directory for the vector index (overrides DATA_DIR)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with environment variables")

	return root
}

// loadConfig читает .env и переменные окружения
func loadConfig() (*config.Config, error) {
	// Загружаем .env (опционально)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &config.Config{}
	if err := config.Init(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(cmd, cfg)
}

func openApp(cmd *cobra.Command, cfg *config.Config) (*app.App, error) {
	log.Printf("Data directory: %s", cfg.DataDir)

	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}

	// Проверка моделей Ollama
	if err := a.Init(cmd.Context()); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return a, nil
}

func chatCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive console: file paths are uploaded, other lines are questions",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(cmd.Context(), os.Stdin, cmd.OutOrStdout())
}
