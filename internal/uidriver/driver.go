// Package uidriver is the browser capability surface the stage pipelines are
// written against. Locators are plain data so that site layouts live in
// configuration rather than in code.
package uidriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var (
	ErrWaitTimeout     = errors.New("ui wait timed out")
	ErrElementNotFound = errors.New("element not found")
	ErrSessionClosed   = errors.New("browser session closed")
)

// Driver drives one browser session. Implementations are not safe for use
// by more than one pipeline at a time.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitUntilPresent(ctx context.Context, loc Locator, timeout time.Duration) error
	WaitUntilClickable(ctx context.Context, loc Locator, timeout time.Duration) error
	WaitUntilGone(ctx context.Context, loc Locator, timeout time.Duration) error
	Click(ctx context.Context, loc Locator) error
	TypeOrPaste(ctx context.Context, loc Locator, text string) error
	UploadFile(ctx context.Context, loc Locator, path string) error
	SelectDropdown(ctx context.Context, loc Locator, optionText string) error
	DragSlider(ctx context.Context, loc Locator, target int) error
	CurrentURL(ctx context.Context) (string, error)
	SetDownloadDir(ctx context.Context, dir string) error
	Quit() error
}

type Strategy string

const (
	StrategyXPath Strategy = "xpath"
	StrategyCSS   Strategy = "css"
	StrategyText  Strategy = "text"
)

type Locator struct {
	Strategy Strategy
	Value    string
}

func XPath(value string) Locator { return Locator{Strategy: StrategyXPath, Value: value} }
func CSS(value string) Locator   { return Locator{Strategy: StrategyCSS, Value: value} }
func Text(value string) Locator  { return Locator{Strategy: StrategyText, Value: value} }

func (l Locator) String() string {
	return string(l.Strategy) + ":" + l.Value
}

func (l Locator) IsZero() bool {
	return strings.TrimSpace(l.Value) == ""
}

// ParseLocator reads "xpath:...", "css:..." or "text:...". A value without a
// known prefix is taken as an XPath expression.
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Locator{}, errors.New("empty locator")
	}
	for _, s := range []Strategy{StrategyXPath, StrategyCSS, StrategyText} {
		prefix := string(s) + ":"
		if strings.HasPrefix(raw, prefix) {
			value := strings.TrimSpace(strings.TrimPrefix(raw, prefix))
			if value == "" {
				return Locator{}, fmt.Errorf("locator %q has no value", raw)
			}
			return Locator{Strategy: s, Value: value}, nil
		}
	}
	return XPath(raw), nil
}

// MatchOption picks the option that best matches want: an exact match
// ignoring case and surrounding space, then a substring match, then the
// nearest option by edit distance if it is close enough.
func MatchOption(options []string, want string) (int, bool) {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	target := norm(want)
	if target == "" {
		return -1, false
	}

	for i, opt := range options {
		if norm(opt) == target {
			return i, true
		}
	}
	for i, opt := range options {
		if strings.Contains(norm(opt), target) {
			return i, true
		}
	}

	best, bestDist := -1, 0
	for i, opt := range options {
		d := levenshtein.DistanceForStrings([]rune(norm(opt)), []rune(target), levenshtein.DefaultOptions)
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	limit := utf8.RuneCountInString(target) / 3
	if limit < 2 {
		limit = 2
	}
	if best == -1 || bestDist > limit {
		return -1, false
	}
	return best, true
}
