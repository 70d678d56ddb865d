package extract

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/zeroinbox/mailsift/internal/common"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/llm"
)

// FromConfig builds the enabled extractors in deterministic name order.
// Unknown extractor names are a configuration error: a typo must not silently
// disable a lane.
func FromConfig(cfg *config.Config, client llm.ChatClient, logger *slog.Logger) ([]Extractor, error) {
	names := make([]string, 0, len(cfg.Extractors))
	for name := range cfg.Extractors {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Extractor
	for _, name := range names {
		ext := cfg.Extractors[name]
		if !ext.Enabled {
			continue
		}
		switch name {
		case "invoices":
			x, err := NewInvoiceExtractor(ext, cfg.Processing, client, cfg.LLM.MaxTokens, logger)
			if err != nil {
				return nil, err
			}
			out = append(out, x)
		case "concerts":
			x, err := NewConcertExtractor(ext, cfg.Processing, client, cfg.LLM.MaxTokens, logger)
			if err != nil {
				return nil, err
			}
			out = append(out, x)
		default:
			return nil, common.ConfigError(fmt.Sprintf("unknown extractor %q", name))
		}
	}
	return out, nil
}
