package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/receipt-splitter/internal/model"
	"github.com/zombor/receipt-splitter/internal/receipt"
)

const (
	DefaultTimeout = 60 * time.Second

	// Uncategorized is the category given to items the model did not classify
	Uncategorized = "uncategorized"
)

// CategorizedItem is a receipt item with the model's additions. Every field
// of the original item is kept, along with whatever the model added.
type CategorizedItem map[string]any

// Category returns the expense_category tag, if any
func (c CategorizedItem) Category() string {
	s, _ := c["expense_category"].(string)
	return s
}

// Degraded reports whether categorization failed for this item
func (c CategorizedItem) Degraded() bool {
	_, ok := c["error"]
	return ok
}

// SplitSuggestion is the model's advice on how to share a receipt
type SplitSuggestion struct {
	SplitType   string          `json:"split_type"`
	SplitRatios json.RawMessage `json:"split_ratios,omitempty"`
	Reasoning   string          `json:"reasoning,omitempty"`

	Error        string `json:"error,omitempty"`
	DefaultSplit string `json:"default_split,omitempty"`
}

// Degraded reports whether the suggestion is the placeholder returned when
// the model could not help
func (s *SplitSuggestion) Degraded() bool {
	return s.Error != ""
}

var (
	categorizeSchema = receipt.MustCompileSchema("categorize.json", map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "object"},
	})
	splitSchema = receipt.MustCompileSchema("split.json", map[string]any{
		"type":     "object",
		"required": []any{"split_type"},
		"properties": map[string]any{
			"split_type": map[string]any{"type": "string"},
			"reasoning":  map[string]any{"type": []any{"string", "null"}},
		},
	})
)

// Advisor asks the model to categorize items and suggest splits
type Advisor struct {
	invoker model.Invoker
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Advisor
type Option func(*Advisor)

// WithTimeout bounds each model call
func WithTimeout(d time.Duration) Option {
	return func(a *Advisor) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Advisor) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates a new Advisor
func New(invoker model.Invoker, opts ...Option) *Advisor {
	a := &Advisor{
		invoker: invoker,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Categorize adds expense_category, split_suggestion and notes to each item.
// It never returns fewer items than it was given, and never loses a field of
// an input item. An empty input is returned without asking the model.
func (a *Advisor) Categorize(ctx context.Context, items []receipt.Item) []CategorizedItem {
	if len(items) == 0 {
		return []CategorizedItem{}
	}

	originals := make([]CategorizedItem, len(items))
	for i, item := range items {
		originals[i] = itemFields(item)
	}

	categorized, err := a.categorize(ctx, items)
	if err != nil {
		a.logger.WarnContext(ctx, "Failed to categorize items", "items", len(items), "error", err)
		for _, item := range originals {
			item["expense_category"] = Uncategorized
			item["error"] = fmt.Sprintf("Categorization failed: %v", err)
		}
		return originals
	}

	for i, item := range categorized {
		if i >= len(originals) {
			break
		}
		for k, v := range originals[i] {
			if _, ok := item[k]; !ok {
				item[k] = v
			}
		}
	}
	for _, item := range originals[min(len(categorized), len(originals)):] {
		item["expense_category"] = Uncategorized
		categorized = append(categorized, item)
	}
	return categorized
}

func (a *Advisor) categorize(ctx context.Context, items []receipt.Item) ([]CategorizedItem, error) {
	itemsJSON, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling items: %w", err)
	}

	out, err := a.invoke(ctx, categorizePrompt(string(itemsJSON)))
	if err != nil {
		return nil, err
	}

	var categorized []CategorizedItem
	if err := receipt.DecodeArray(out, categorizeSchema, &categorized); err != nil {
		return nil, err
	}
	return categorized, nil
}

// SuggestSplit asks whether the receipt is personal, shared or business and
// how to split it. A failure yields an "unknown" suggestion defaulting to an
// equal split.
func (a *Advisor) SuggestSplit(ctx context.Context, doc *receipt.Document) *SplitSuggestion {
	suggestion, err := a.suggestSplit(ctx, doc)
	if err != nil {
		a.logger.WarnContext(ctx, "Failed to suggest split", "error", err)
		return &SplitSuggestion{
			SplitType:    "unknown",
			Error:        fmt.Sprintf("Failed to suggest split: %v", err),
			DefaultSplit: "equal",
		}
	}
	return suggestion
}

func (a *Advisor) suggestSplit(ctx context.Context, doc *receipt.Document) (*SplitSuggestion, error) {
	docJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling receipt: %w", err)
	}

	out, err := a.invoke(ctx, splitPrompt(string(docJSON)))
	if err != nil {
		return nil, err
	}

	var suggestion SplitSuggestion
	if err := receipt.DecodeObject(out, splitSchema, &suggestion); err != nil {
		return nil, err
	}
	// these belong to the degraded form only
	suggestion.Error = ""
	suggestion.DefaultSplit = ""
	return &suggestion, nil
}

func (a *Advisor) invoke(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.invoker.Invoke(ctx, model.Prompt{Text: text})
}

// itemFields flattens an item into its wire fields
func itemFields(item receipt.Item) CategorizedItem {
	fields := CategorizedItem{}
	b, err := json.Marshal(item)
	if err != nil {
		return fields
	}
	_ = json.Unmarshal(b, &fields)
	return fields
}
