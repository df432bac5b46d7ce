package locator

import (
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"
)

// DefaultMinLength is the shortest caption text accepted, in runes.
const DefaultMinLength = 2

// Plausibility decides whether a text could be spoken caption content.
type Plausibility interface {
	IsPlausibleUtterance(text string) bool
}

// BasicPlausibility accepts non-empty text of at least MinLength runes that
// contains a letter and is not made of digits and punctuation only.
type BasicPlausibility struct {
	MinLength int
}

func (p BasicPlausibility) IsPlausibleUtterance(text string) bool {
	if text == "" {
		return false
	}
	min := p.MinLength
	if min <= 0 {
		min = DefaultMinLength
	}
	if utf8.RuneCountInString(text) < min {
		return false
	}
	hasLetter := false
	onlySymbols := true
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
			onlySymbols = false
		case unicode.IsDigit(r), unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsSpace(r):
		default:
			onlySymbols = false
		}
	}
	return hasLetter && !onlySymbols
}

// DefaultUIPatterns match meeting chrome that class-fragment strategies can
// pick up instead of captions.
var DefaultUIPatterns = []string{
	`(?i)^turn (on|off) captions`,
	`(?i)^captions? (settings|are on|are off)`,
	`(?i)^you are presenting`,
	`(?i)^(english|french|german|spanish|japanese)( \(.*\))?$`,
	`(?i)^(beta|live captions)$`,
	`(?i)^arrow_(downward|upward|drop_down)$`,
	`(?i)^(more_vert|closed_caption|language|settings)$`,
}

// UIChromeFilter rejects texts matching known interface labels before
// delegating to Next.
type UIChromeFilter struct {
	Next     Plausibility
	patterns []*regexp.Regexp
}

// NewUIChromeFilter compiles patterns. An empty list uses DefaultUIPatterns.
func NewUIChromeFilter(next Plausibility, patterns []string) (*UIChromeFilter, error) {
	if next == nil {
		next = BasicPlausibility{MinLength: DefaultMinLength}
	}
	if len(patterns) == 0 {
		patterns = DefaultUIPatterns
	}
	f := &UIChromeFilter{Next: next}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("locator: compile ui pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

func (f *UIChromeFilter) IsPlausibleUtterance(text string) bool {
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return false
		}
	}
	return f.Next.IsPlausibleUtterance(text)
}
