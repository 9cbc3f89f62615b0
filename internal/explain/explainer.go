package explain

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/metrics"
)

// DefaultPromptTemplate frames the keyword for a general tech audience.
const DefaultPromptTemplate = "Explain '%s' simply for someone interested in tech."

// Generator produces text for a prompt; *Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Explainer renders keyword explanations for display.
type Explainer struct {
	gen      Generator
	template string
	logger   *zap.Logger
}

// NewExplainer builds an Explainer. An empty template uses DefaultPromptTemplate.
func NewExplainer(gen Generator, template string, logger *zap.Logger) *Explainer {
	if template == "" {
		template = DefaultPromptTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explainer{gen: gen, template: template, logger: logger.Named("explain")}
}

// Prompt returns the prompt sent for keyword.
func (e *Explainer) Prompt(keyword string) string {
	return fmt.Sprintf(e.template, strings.TrimSpace(keyword))
}

// Explain never fails: any error is returned as "Error: {details}".
func (e *Explainer) Explain(ctx context.Context, keyword string) string {
	text, err := e.gen.Generate(ctx, e.Prompt(keyword))
	if err != nil {
		metrics.ObserveExplain("error")
		e.logger.Warn("explanation failed", zap.String("keyword", keyword), zap.Error(err))
		return "Error: " + err.Error()
	}
	metrics.ObserveExplain("ok")
	return text
}
