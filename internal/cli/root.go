// Package cli implements the campusrag command line: ingestion,
// interactive chat, the websocket server and index reset.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/campus-genai/campusrag/internal/logger"
	"github.com/campus-genai/campusrag/pkg/assistant"
	"github.com/campus-genai/campusrag/pkg/auth"
	"github.com/campus-genai/campusrag/pkg/config"
	"github.com/campus-genai/campusrag/pkg/llm"
	"github.com/campus-genai/campusrag/pkg/retriever"
	"github.com/campus-genai/campusrag/pkg/store"
)

var cfgPath string

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "campusrag",
		Short: "Role-aware campus information assistant",
		Long: "campusrag answers questions about college documents over a role-filtered\n" +
			"vector index: users only ever see content tagged for their role.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file")

	root.AddCommand(
		newIngestCmd(),
		newChatCmd(),
		newServeCmd(),
		newResetCmd(),
		newRegisterCmd(),
	)
	return root
}

// loadConfigAndLogger is the shared bootstrap for every subcommand.
func loadConfigAndLogger() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		color.Red("Configuration problems:")
		for _, e := range errs {
			color.Red("  %s: %s", e.Field, e.Message)
		}
		return nil, nil, fmt.Errorf("invalid configuration")
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func openIndex(ctx context.Context, cfg *config.Config) (*store.PgIndex, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database URL is required (set DATABASE_URL or database.url)")
	}
	return store.NewPgIndex(ctx, store.PgConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Embedding.Dimension,
	})
}

func newEmbedder(cfg *config.Config) (*llm.Embedder, error) {
	return llm.NewEmbedder(llm.EmbedderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
		Timeout:  time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})
}

func newChatEngine(cfg *config.Config) (*llm.ChatEngine, error) {
	return llm.NewChat(llm.ChatConfig{
		Provider:       cfg.LLM.Provider,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		SystemTemplate: cfg.LLM.SystemTemplate,
	})
}

// newAssistant wires index, embedder and synthesizer into an assistant.
// history may be nil for sessions without persistence.
func newAssistant(ctx context.Context, cfg *config.Config, log *logger.Logger, idx store.Index, history assistant.HistoryStore) (*assistant.Assistant, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	hierarchy, err := cfg.RoleHierarchy()
	if err != nil {
		return nil, err
	}

	retr, err := retriever.New(ctx, idx, embedder, hierarchy, retriever.Config{
		Limit:      cfg.Retrieval.Limit,
		Oversample: cfg.Retrieval.Oversample,
	}, log)
	if err != nil {
		return nil, err
	}

	engine, err := newChatEngine(cfg)
	if err != nil {
		return nil, err
	}

	return assistant.New(retr, engine, history, assistant.Config{
		RetrieveLimit: cfg.Retrieval.Limit,
		HistoryWindow: cfg.Chat.HistoryWindow,
	}, log), nil
}

func openAuthStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*auth.Store, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database URL is required (set DATABASE_URL or database.url)")
	}
	return auth.NewStore(ctx, cfg.Database.URL, log)
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %v", err)
	}
	return string(raw), nil
}
