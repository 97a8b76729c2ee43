// cmd/tools/chat-cli/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"medchat-engine/internal/common/config"
	"medchat-engine/internal/common/logger"
	"medchat-engine/internal/knowledge"
	"medchat-engine/internal/models"

	ci "medchat-engine/internal/dialogue/classify-intent"
	eg "medchat-engine/internal/dialogue/evaluate-gating"
	ga "medchat-engine/internal/dialogue/generate-answer"
	mp "medchat-engine/internal/dialogue/merge-profile"
	ot "medchat-engine/internal/dialogue/orchestrate-turn"
)

var (
	configPath string
	corpusPath string
	logLevel   string
	tiktoken   bool

	message  string
	language string
	profile  string
	history  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chat-cli",
		Short:         "Run dialogue turns and check corpus files offline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a service config file (defaults are used when empty)")
	root.PersistentFlags().StringVar(&corpusPath, "corpus", "data/corpus.yaml", "Path to the JSON or YAML corpus")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	turnCmd := &cobra.Command{
		Use:   "turn",
		Short: "Run one turn against the corpus and print the response as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd.Context(), cmd.OutOrStdout())
		},
	}
	turnCmd.Flags().StringVarP(&message, "message", "m", "", "User message (required)")
	turnCmd.Flags().StringVar(&language, "language", string(models.LanguageAuto), "Response language (he, en, auto)")
	turnCmd.Flags().StringVar(&profile, "profile", "", "Known user profile as JSON")
	turnCmd.Flags().StringVar(&history, "history", "", "Conversation history as a JSON array of {role, content}")
	turnCmd.Flags().BoolVar(&tiktoken, "tiktoken", false, "Count tokens with tiktoken instead of estimating (downloads the encoding)")
	_ = turnCmd.MarkFlagRequired("message")

	corpusCmd := &cobra.Command{
		Use:   "corpus",
		Short: "Corpus file utilities",
	}
	corpusCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Parse and validate the corpus, then print per-tag counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout())
		},
	})

	root.AddCommand(turnCmd, corpusCmd)
	return root
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return nil, nil
	}
	return config.LoadFromFile(configPath)
}

func runTurn(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	req := &models.TurnRequest{
		Message:  message,
		Language: models.Language(language),
	}
	if profile != "" {
		if err := json.Unmarshal([]byte(profile), &req.UserProfile); err != nil {
			return fmt.Errorf("parse --profile: %w", err)
		}
	}
	if history != "" {
		if err := json.Unmarshal([]byte(history), &req.ConversationHistory); err != nil {
			return fmt.Errorf("parse --history: %w", err)
		}
	}

	turns, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	resp, err := turns.Execute(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// buildEngine wires an in-memory engine over the corpus file. Telemetry and
// the model-backed analysers stay off.
func buildEngine(ctx context.Context, cfg *config.Config) (*ot.Handler, error) {
	log := logger.NewStructured(logLevel, "console")

	catalog := models.DefaultCatalog()
	gating := models.DefaultGatingTable()
	lang := models.LanguageHebrew
	encoding := "cl100k_base"
	turnTimeout := 20 * time.Second
	limits := knowledge.Limits{MaxResults: knowledge.DefaultMaxResults, MaxChars: knowledge.DefaultMaxChars}
	if cfg != nil {
		catalog = &cfg.Catalog
		gating = cfg.Dialogue.GatingTable()
		lang = models.Language(cfg.Dialogue.DefaultLanguage)
		encoding = cfg.Dialogue.TokenizerEncoding
		turnTimeout = config.GetDuration(cfg.Dialogue.TurnTimeout)
		limits = knowledge.Limits{MaxResults: cfg.Knowledge.MaxResults, MaxChars: cfg.Knowledge.MaxChars}
	}

	var tokenizer ga.Tokenizer = ga.RuneEstimator{}
	if tiktoken {
		tokenizer = nil
	}

	store := knowledge.NewStore(catalog, &knowledgeLoggerAdapter{log})
	if _, err := store.Reload(ctx, knowledge.NewFileLoader(corpusPath)); err != nil {
		return nil, err
	}

	return ot.NewHandler(&ot.Config{
		Catalog:         catalog,
		TurnTimeout:     turnTimeout,
		DefaultLanguage: lang,
		Limits:          limits,
		Backend:         config.BackendMemory,
	}, ot.Dependencies{
		Merger:     mp.NewHandler(&mp.Config{Catalog: catalog}, nil, &mergeProfileLoggerAdapter{log}),
		Classifier: ci.NewHandler(&ci.Config{Catalog: catalog, DefaultLanguage: lang}, nil, &classifyIntentLoggerAdapter{log}),
		Gate:       eg.NewHandler(&eg.Config{Table: gating, Catalog: catalog}, &evaluateGatingLoggerAdapter{log}),
		Retriever:  store,
		Answerer:   ga.NewHandler(&ga.Config{Catalog: catalog, Encoding: encoding}, tokenizer, &generateAnswerLoggerAdapter{log}),
	}, &orchestrateTurnLoggerAdapter{log}), nil
}

func runValidate(out io.Writer) error {
	data, err := os.ReadFile(corpusPath)
	if err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}
	chunks, err := knowledge.ParseCorpus(data, filepath.Ext(corpusPath))
	if err != nil {
		return err
	}
	if err := knowledge.ValidateChunks(chunks); err != nil {
		return fmt.Errorf("%s: %w", corpusPath, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	catalog := models.DefaultCatalog()
	if cfg != nil {
		catalog = &cfg.Catalog
	}
	chunks = knowledge.Canonicalize(chunks, catalog)

	var unknown []string
	for _, c := range chunks {
		if _, ok := catalog.NormalizeCategory(c.Category); !ok {
			unknown = append(unknown, c.ID+"="+c.Category)
		}
	}

	st := knowledge.Stats(chunks)
	fmt.Fprintf(out, "OK %s: %d chunks\n", corpusPath, st.Total)
	printCounts(out, "category", st.ByCategory)
	printCounts(out, "provider", st.ByProvider)
	printCounts(out, "tier", st.ByTier)
	printCounts(out, "language", st.ByLanguage)
	if len(unknown) > 0 {
		fmt.Fprintf(out, "warning: categories not in catalog: %s\n", strings.Join(unknown, ", "))
	}
	return nil
}

func printCounts(out io.Writer, label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-9s %-24s %d\n", label, k, counts[k])
	}
}

type mergeProfileLoggerAdapter struct {
	logger.Logger
}

func (a *mergeProfileLoggerAdapter) With(fields map[string]interface{}) mp.Logger {
	return &mergeProfileLoggerAdapter{a.Logger.With(fields)}
}

type classifyIntentLoggerAdapter struct {
	logger.Logger
}

func (a *classifyIntentLoggerAdapter) With(fields map[string]interface{}) ci.Logger {
	return &classifyIntentLoggerAdapter{a.Logger.With(fields)}
}

type evaluateGatingLoggerAdapter struct {
	logger.Logger
}

func (a *evaluateGatingLoggerAdapter) With(fields map[string]interface{}) eg.Logger {
	return &evaluateGatingLoggerAdapter{a.Logger.With(fields)}
}

type generateAnswerLoggerAdapter struct {
	logger.Logger
}

func (a *generateAnswerLoggerAdapter) With(fields map[string]interface{}) ga.Logger {
	return &generateAnswerLoggerAdapter{a.Logger.With(fields)}
}

type orchestrateTurnLoggerAdapter struct {
	logger.Logger
}

func (a *orchestrateTurnLoggerAdapter) With(fields map[string]interface{}) ot.Logger {
	return &orchestrateTurnLoggerAdapter{a.Logger.With(fields)}
}

type knowledgeLoggerAdapter struct {
	logger.Logger
}

func (a *knowledgeLoggerAdapter) With(fields map[string]interface{}) knowledge.Logger {
	return &knowledgeLoggerAdapter{a.Logger.With(fields)}
}
