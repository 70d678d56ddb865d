// Package config loads configuration from a YAML file and environment
// variables. Template placeholder contracts are checked here so a
// misconfigured prompt fails the run at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeroinbox/mailsift/internal/common"
)

// Duration unmarshals YAML strings like "45s" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LLMConfig holds model client settings.
type LLMConfig struct {
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"-"` // env only, never in YAML
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
	CallDelay   Duration `yaml:"call_delay"`
	MaxRetries  uint64   `yaml:"max_retries"`
}

// IMAPConfig holds mail source settings. The password comes from the
// environment.
type IMAPConfig struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"-"`
	Mailbox  string `yaml:"mailbox"`
}

// ProcessingConfig holds batch-wide limits.
type ProcessingConfig struct {
	DefaultDaysBack int    `yaml:"default_days_back"`
	MaxEmails       int    `yaml:"max_emails"`
	BodyCharLimit   int    `yaml:"body_char_limit"`
	PDFCharLimit    int    `yaml:"pdf_char_limit"`
	BackupDir       string `yaml:"backup_dir"`
	Pdftotext       string `yaml:"pdftotext"` // binary name or absolute path
}

// ExtractorConfig holds the per-extractor gate signals and prompt template.
type ExtractorConfig struct {
	Enabled         bool                `yaml:"enabled"`
	OutputFile      string              `yaml:"output_file"`
	Keywords        map[string][]string `yaml:"keywords"` // per language
	BusinessDomains []string            `yaml:"business_domains"`
	AmountPatterns  map[string][]string `yaml:"amount_patterns"`
	Locations       []string            `yaml:"locations"`
	AcceptPDF       bool                `yaml:"accept_pdf_attachment"`
	PromptTemplate  string              `yaml:"prompt_template"`
}

// AllKeywords flattens the per-language keyword lists preserving order.
func (e ExtractorConfig) AllKeywords() []string {
	var out []string
	for _, lang := range []string{"swedish", "english"} {
		out = append(out, e.Keywords[lang]...)
	}
	for lang, kws := range e.Keywords {
		if lang != "swedish" && lang != "english" {
			out = append(out, kws...)
		}
	}
	return out
}

// AllAmountKeywords flattens the per-language amount pattern keywords.
func (e ExtractorConfig) AllAmountKeywords() []string {
	var out []string
	for _, kws := range e.AmountPatterns {
		out = append(out, kws...)
	}
	return out
}

// SubcategoryConfig describes one leaf of the categorization vocabulary.
type SubcategoryConfig struct {
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// CategoryConfig groups subcategories under one category.
type CategoryConfig struct {
	Subcategories map[string]SubcategoryConfig `yaml:"subcategories"`
}

// CategorizationConfig holds the closed vocabulary tree.
type CategorizationConfig struct {
	Enabled    bool                      `yaml:"enabled"`
	OutputFile string                    `yaml:"output_file"`
	Categories map[string]CategoryConfig `yaml:"categories"`
}

// LaneConfig configures a follow-up lane that runs on emails after they have
// been categorized (summaries for informational mail, tasks for actionable
// mail).
type LaneConfig struct {
	Enabled    bool     `yaml:"enabled"`
	OutputFile string   `yaml:"output_file"`
	Categories []string `yaml:"categories"` // categories the lane applies to
}

// LedgerConfig holds the persistence settings.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// Config is the root of the configuration tree.
type Config struct {
	LLM            LLMConfig                  `yaml:"llm"`
	IMAP           IMAPConfig                 `yaml:"imap"`
	Processing     ProcessingConfig           `yaml:"processing"`
	Ledger         LedgerConfig               `yaml:"ledger"`
	Extractors     map[string]ExtractorConfig `yaml:"extractors"`
	Categorization CategorizationConfig       `yaml:"categorization"`
	Summaries      LaneConfig                 `yaml:"summaries"`
	Tasks          LaneConfig                 `yaml:"tasks"`
}

// requiredPlaceholders maps extractor names to the placeholders their prompt
// templates must carry.
var requiredPlaceholders = map[string][]string{
	"invoices": {"email_content"},
	"concerts": {"email_content"},
}

// RequiredPlaceholders returns the placeholder contract for an extractor name.
func RequiredPlaceholders(name string) []string {
	return requiredPlaceholders[name]
}

// Load reads path, expands ${VAR} references, applies env overrides and
// defaults, and validates the parts that must fail fast.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("read config file %s", path), err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "parse config YAML", err)
	}

	applyDefaults(&cfg)
	cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.IMAP.Password = os.Getenv("IMAP_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 1500
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = Duration(envOrDefaultDuration("LLM_TIMEOUT", 45*time.Second))
	}
	if cfg.LLM.CallDelay <= 0 {
		cfg.LLM.CallDelay = Duration(2 * time.Second)
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.IMAP.Mailbox == "" {
		cfg.IMAP.Mailbox = "INBOX"
	}
	if cfg.Processing.DefaultDaysBack <= 0 {
		cfg.Processing.DefaultDaysBack = envOrDefaultInt("DEFAULT_DAYS_BACK", 30)
	}
	if cfg.Processing.MaxEmails <= 0 {
		cfg.Processing.MaxEmails = 100
	}
	if cfg.Processing.BodyCharLimit <= 0 {
		cfg.Processing.BodyCharLimit = 2000
	}
	if cfg.Processing.PDFCharLimit <= 0 {
		cfg.Processing.PDFCharLimit = 3000
	}
	if cfg.Processing.BackupDir == "" {
		cfg.Processing.BackupDir = "output/backups"
	}
	if cfg.Processing.Pdftotext == "" {
		cfg.Processing.Pdftotext = "pdftotext"
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "output/mailsift.db"
	}
	for name, ext := range cfg.Extractors {
		if ext.OutputFile == "" {
			ext.OutputFile = fmt.Sprintf("output/%s.csv", name)
			cfg.Extractors[name] = ext
		}
	}
	if cfg.Categorization.OutputFile == "" {
		cfg.Categorization.OutputFile = "output/categories.csv"
	}
	if cfg.Summaries.OutputFile == "" {
		cfg.Summaries.OutputFile = "output/summaries.csv"
	}
	if cfg.Tasks.OutputFile == "" {
		cfg.Tasks.OutputFile = "output/tasks.csv"
	}
}

// Validate checks the fail-fast invariants: at least one enabled lane, and
// every enabled extractor's prompt template present with its required
// placeholders. Placeholder presence is re-verified here even though the
// extractor constructors check it too, so `-config` problems surface before
// any network dial.
func (c *Config) Validate() error {
	anyEnabled := c.Categorization.Enabled
	for name, ext := range c.Extractors {
		if !ext.Enabled {
			continue
		}
		anyEnabled = true
		if ext.PromptTemplate == "" {
			return common.ConfigError(fmt.Sprintf("extractor %q has no prompt_template", name))
		}
		for _, ph := range RequiredPlaceholders(name) {
			if !containsPlaceholder(ext.PromptTemplate, ph) {
				return common.ConfigError(fmt.Sprintf("extractor %q prompt_template missing placeholder {%s}", name, ph))
			}
		}
	}
	if !anyEnabled {
		return common.ConfigError("no extractors or categorization enabled")
	}
	if c.Categorization.Enabled && len(c.Categorization.Categories) == 0 {
		return common.ConfigError("categorization enabled but no categories configured")
	}
	for name, lane := range map[string]LaneConfig{"summaries": c.Summaries, "tasks": c.Tasks} {
		if !lane.Enabled {
			continue
		}
		if !c.Categorization.Enabled {
			return common.ConfigError(fmt.Sprintf("%s lane requires categorization to be enabled", name))
		}
		if len(lane.Categories) == 0 {
			return common.ConfigError(fmt.Sprintf("%s lane enabled but no trigger categories configured", name))
		}
		for _, cat := range lane.Categories {
			if _, ok := c.Categorization.Categories[cat]; !ok {
				return common.ConfigError(fmt.Sprintf("%s lane references unknown category %q", name, cat))
			}
		}
	}
	return nil
}

func containsPlaceholder(template, name string) bool {
	return strings.Contains(template, "{"+name+"}")
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
