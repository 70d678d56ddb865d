package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/categorize"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/extract"
	"github.com/zeroinbox/mailsift/internal/followup"
	"github.com/zeroinbox/mailsift/internal/ledger"
	"github.com/zeroinbox/mailsift/internal/llm/anthropic"
	"github.com/zeroinbox/mailsift/internal/mail"
	"github.com/zeroinbox/mailsift/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML configuration file")
		query      = flag.String("query", "", "comma-separated search keywords (overrides the configured extractor keywords)")
		days       = flag.Int("days", 0, "how many days back to fetch (overrides config)")
		maxEmails  = flag.Int("max", 0, "maximum emails to fetch (overrides config)")
		export     = flag.String("export", "", "export a scope (invoices|concerts|categories|summaries|tasks) instead of running a batch")
		out        = flag.String("out", "", "export output path (.csv or .xlsx); defaults to the configured output file")
		reset      = flag.String("reset", "", "forget a scope's ledger (invoices|concerts|categories|summaries|tasks) and exit")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("ledger close failed", "error", cerr)
		}
	}()

	if *reset != "" {
		scope, err := parseScope(*reset)
		if err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		if err := store.Reset(ctx, scope); err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *export != "" {
		if err := runExport(ctx, cfg, store, *export, *out); err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runBatch(ctx, cfg, store, *query, *days, *maxEmails, logger); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

func runBatch(ctx context.Context, cfg *config.Config, store *ledger.Ledger, query string, days, maxEmails int, logger *slog.Logger) error {
	client := anthropic.NewClient(anthropic.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout.Std(),
		MaxRetries:  cfg.LLM.MaxRetries,
	}, logger)

	extractors, err := extract.FromConfig(cfg, client, logger)
	if err != nil {
		return err
	}

	var categorizer *categorize.Categorizer
	if cfg.Categorization.Enabled {
		policy := categorize.NewPolicy(cfg.Categorization)
		categorizer = categorize.NewCategorizer(policy, client, cfg.LLM.MaxTokens, cfg.Processing.BodyCharLimit, logger)
	}

	lanes := followup.FromConfig(cfg, client, logger)

	source := mail.NewIMAPSource(mail.IMAPConfig{
		Server:   cfg.IMAP.Server,
		Username: cfg.IMAP.Username,
		Password: cfg.IMAP.Password,
		Mailbox:  cfg.IMAP.Mailbox,
	}, logger)
	pdf := mail.NewPDFTextExtractor(cfg.Processing.Pdftotext, logger)

	orch := pipeline.NewOrchestrator(
		source, pdf, store, extractors, categorizer, lanes,
		cfg.Processing.BackupDir, cfg.LLM.CallDelay.Std(), logger,
	)

	if days <= 0 {
		days = cfg.Processing.DefaultDaysBack
	}
	if maxEmails <= 0 {
		maxEmails = cfg.Processing.MaxEmails
	}
	keywords := searchKeywords(cfg)
	if query != "" {
		keywords = splitKeywords(query)
	}

	stats, err := orch.Run(ctx, mail.Query{
		Keywords: keywords,
		Since:    time.Now().AddDate(0, 0, -days),
		Max:      maxEmails,
	})
	if err != nil {
		return err
	}
	logger.Info("batch finished",
		"fetched", stats.Fetched,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"failed", stats.Failed,
		"categorized", stats.Categorized,
		"followed_up", stats.FollowedUp,
	)

	// Refresh the CSV exports after every batch so the output files always
	// reflect the full ledger.
	for _, x := range extractors {
		if _, err := store.ExportCSV(ctx, x.Scope(), x.OutputFile()); err != nil {
			return err
		}
	}
	if cfg.Categorization.Enabled {
		if _, err := store.ExportCSV(ctx, constants.ScopeCategories, cfg.Categorization.OutputFile); err != nil {
			return err
		}
	}
	for _, lane := range lanes {
		if _, err := store.ExportCSV(ctx, lane.Scope(), lane.OutputFile()); err != nil {
			return err
		}
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, store *ledger.Ledger, scopeName, out string) error {
	scope, err := parseScope(scopeName)
	if err != nil {
		return err
	}
	if out == "" {
		out = defaultOutputFile(cfg, scope)
	}
	var n int
	if strings.HasSuffix(strings.ToLower(out), ".xlsx") {
		n, err = store.ExportXLSX(ctx, scope, out)
	} else {
		n, err = store.ExportCSV(ctx, scope, out)
	}
	if err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", n, out)
	return nil
}

func defaultOutputFile(cfg *config.Config, scope constants.Scope) string {
	switch scope {
	case constants.ScopeCategories:
		return cfg.Categorization.OutputFile
	case constants.ScopeSummaries:
		return cfg.Summaries.OutputFile
	case constants.ScopeTasks:
		return cfg.Tasks.OutputFile
	}
	if ext, ok := cfg.Extractors[string(scope)]; ok && ext.OutputFile != "" {
		return ext.OutputFile
	}
	return fmt.Sprintf("output/%s.csv", scope)
}

func parseScope(name string) (constants.Scope, error) {
	switch name {
	case string(constants.ScopeInvoices):
		return constants.ScopeInvoices, nil
	case string(constants.ScopeConcerts):
		return constants.ScopeConcerts, nil
	case string(constants.ScopeCategories):
		return constants.ScopeCategories, nil
	case string(constants.ScopeSummaries):
		return constants.ScopeSummaries, nil
	case string(constants.ScopeTasks):
		return constants.ScopeTasks, nil
	default:
		return "", fmt.Errorf("unknown scope %q", name)
	}
}

func splitKeywords(s string) []string {
	var out []string
	for _, kw := range strings.Split(s, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// searchKeywords is the server-side IMAP pre-filter: the union of every
// enabled extractor's keywords. Empty when only categorization runs, which
// fetches everything in the window.
func searchKeywords(cfg *config.Config) []string {
	seen := map[string]bool{}
	var out []string
	for _, ext := range cfg.Extractors {
		if !ext.Enabled {
			continue
		}
		for _, kw := range ext.AllKeywords() {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}
