// Package locator finds the caption element currently being written by the
// meeting page. It knows nothing about browsers: any Document that can answer
// CSS selector queries can be searched.
package locator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/capwatch/caption"
)

// Element is one node returned by a Document query.
type Element interface {
	// Identity is stable for the lifetime of the underlying node.
	Identity() caption.NodeID
	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)
}

// Document is a queryable view of a page.
type Document interface {
	// QueryAll returns all elements matching selector, in document order.
	// A selector that matches nothing returns an empty slice and no error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Notifier is implemented by documents that can push change notifications.
// The returned channel receives a value whenever the page mutated; cancel
// releases the subscription. Documents that cannot notify return an error
// and callers fall back to polling.
type Notifier interface {
	Subscribe(ctx context.Context) (changes <-chan struct{}, cancel func(), err error)
}

// Strategy is one structural query, tried in order.
type Strategy struct {
	Name     string
	Selector string
}

// DefaultStrategies target the caption layouts of Google Meet, from the most
// specific containment path to generic class-fragment matching.
var DefaultStrategies = []Strategy{
	{Name: "region-text", Selector: `div[role="region"][aria-label="Captions"] div[jsname="tgaKEf"]`},
	{Name: "region-block", Selector: `div[role="region"][aria-label="Captions"] div.nMcdL`},
	{Name: "legacy-container", Selector: `div.a4cQT div.iTTPOb span`},
	{Name: "legacy-text", Selector: `div.CNusmb`},
	{Name: "jsname-text", Selector: `div[jsname="tgaKEf"]`},
	{Name: "class-fragment", Selector: `[class*="caption"] span, [class*="Caption"] span`},
}

// StrategiesFromSelectors turns configured selectors into strategies named
// after their position.
func StrategiesFromSelectors(selectors []string) []Strategy {
	out := make([]Strategy, 0, len(selectors))
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		out = append(out, Strategy{Name: "custom:" + sel, Selector: sel})
	}
	return out
}

// Locator walks strategies against a Document.
type Locator struct {
	strategies []Strategy
	valid      Plausibility
	logger     *slog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithStrategies replaces the default strategy list.
func WithStrategies(s []Strategy) Option {
	return func(l *Locator) {
		if len(s) > 0 {
			l.strategies = s
		}
	}
}

// WithPlausibility sets the validity predicate.
func WithPlausibility(p Plausibility) Option {
	return func(l *Locator) {
		if p != nil {
			l.valid = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locator) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Locator with DefaultStrategies and BasicPlausibility.
func New(opts ...Option) *Locator {
	l := &Locator{
		strategies: DefaultStrategies,
		valid:      BasicPlausibility{MinLength: DefaultMinLength},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Strategies returns the strategy list in evaluation order.
func (l *Locator) Strategies() []Strategy {
	return l.strategies
}

// Locate returns the newest valid caption element, or nil when no strategy
// yields one. It never fails: query errors are logged and the next strategy
// is tried.
func (l *Locator) Locate(ctx context.Context, doc Document) *caption.Observation {
	if doc == nil {
		return nil
	}
	for _, st := range l.strategies {
		if ctx.Err() != nil {
			return nil
		}
		elems, err := doc.QueryAll(ctx, st.Selector)
		if err != nil {
			l.logger.Debug("locator: query failed", "strategy", st.Name, "error", err)
			continue
		}
		// Captions are appended, so the newest element is the last one.
		for i := len(elems) - 1; i >= 0; i-- {
			raw, err := elems[i].Text(ctx)
			if err != nil {
				continue
			}
			text := CleanText(raw)
			if !l.valid.IsPlausibleUtterance(text) {
				continue
			}
			return &caption.Observation{Identity: elems[i].Identity(), Text: text}
		}
	}
	return nil
}

// CleanText trims text and collapses internal whitespace runs.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
