package uidriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"autolecture/log"
)

const missingMarker = `"missing"`

type elementState struct {
	Found   bool `json:"found"`
	Visible bool `json:"visible"`
	Enabled bool `json:"enabled"`
}

type sliderGeometry struct {
	Native     bool    `json:"native"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	TrackLeft  float64 `json:"trackLeft"`
	TrackWidth float64 `json:"trackWidth"`
	ThumbX     float64 `json:"thumbX"`
	ThumbY     float64 `json:"thumbY"`
}

// runOn evaluates body against the element loc resolves to.
func (s *Session) runOn(ctx context.Context, loc Locator, body string, out any) error {
	var raw json.RawMessage
	if err := s.evaluate(ctx, withElement(loc, body), &raw); err != nil {
		return err
	}
	if string(raw) == missingMarker {
		return fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (s *Session) state(ctx context.Context, loc Locator) (elementState, error) {
	var st elementState
	err := s.runOn(ctx, loc, stateBody, &st)
	if err != nil && isNotFound(err) {
		return elementState{}, nil
	}
	return st, err
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrElementNotFound)
}

// waitFor polls the element state until cond holds or timeout elapses.
func (s *Session) waitFor(ctx context.Context, loc Locator, timeout time.Duration, what string, cond func(elementState) bool) error {
	if timeout <= 0 {
		timeout = s.opts.ActionTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		st, err := s.state(ctx, loc)
		if err != nil {
			return err
		}
		if cond(st) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s waiting for %s", ErrWaitTimeout, what, timeout, loc)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *Session) WaitUntilPresent(ctx context.Context, loc Locator, timeout time.Duration) error {
	return s.waitFor(ctx, loc, timeout, "present", func(st elementState) bool { return st.Found })
}

func (s *Session) WaitUntilClickable(ctx context.Context, loc Locator, timeout time.Duration) error {
	return s.waitFor(ctx, loc, timeout, "clickable", func(st elementState) bool {
		return st.Found && st.Visible && st.Enabled
	})
}

func (s *Session) WaitUntilGone(ctx context.Context, loc Locator, timeout time.Duration) error {
	return s.waitFor(ctx, loc, timeout, "gone", func(st elementState) bool {
		return !st.Found || !st.Visible
	})
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.call(ctx, "Page.navigate", map[string]any{"url": url}, nil); err != nil {
		return err
	}
	deadline := time.Now().Add(defaultStartTimeout)
	for time.Now().Before(deadline) {
		var ready string
		if err := s.evaluate(ctx, "document.readyState", &ready); err == nil && ready == "complete" {
			log.GetLogger().Debug("[UIDriver] navigated", zap.String("url", url))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}
	}
	return fmt.Errorf("%w: page load of %s", ErrWaitTimeout, url)
}

func (s *Session) Click(ctx context.Context, loc Locator) error {
	if err := s.WaitUntilClickable(ctx, loc, s.opts.ActionTimeout); err != nil {
		return err
	}
	return s.runOn(ctx, loc, clickBody, nil)
}

func (s *Session) TypeOrPaste(ctx context.Context, loc Locator, text string) error {
	if err := s.WaitUntilPresent(ctx, loc, s.opts.ActionTimeout); err != nil {
		return err
	}
	var kind string
	if err := s.runOn(ctx, loc, focusBody, &kind); err != nil {
		return err
	}
	if kind == "field" {
		return s.runOn(ctx, loc, setFieldValueBody(text), nil)
	}
	// Rich editors take the text the way a paste would deliver it.
	return s.call(ctx, "Input.insertText", map[string]any{"text": text}, nil)
}

func (s *Session) UploadFile(ctx context.Context, loc Locator, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("upload source: %w", err)
	}
	if err := s.WaitUntilPresent(ctx, loc, s.opts.ActionTimeout); err != nil {
		return err
	}
	id, err := s.objectID(ctx, loc)
	if err != nil {
		return err
	}
	return s.call(ctx, "DOM.setFileInputFiles", map[string]any{
		"files":    []string{abs},
		"objectId": id,
	}, nil)
}

func (s *Session) SelectDropdown(ctx context.Context, loc Locator, optionText string) error {
	if err := s.WaitUntilPresent(ctx, loc, s.opts.ActionTimeout); err != nil {
		return err
	}
	var opts struct {
		Native  bool     `json:"native"`
		Options []string `json:"options"`
	}
	if err := s.runOn(ctx, loc, optionsBody, &opts); err != nil {
		return err
	}
	if !opts.Native {
		// Custom listbox: open it, then pick the option by its text.
		if err := s.Click(ctx, loc); err != nil {
			return err
		}
		return s.Click(ctx, Text(optionText))
	}
	idx, ok := MatchOption(opts.Options, optionText)
	if !ok {
		return fmt.Errorf("%w: option %q in %s", ErrElementNotFound, optionText, loc)
	}
	log.GetLogger().Debug("[UIDriver] select option",
		zap.String("want", optionText), zap.String("chosen", opts.Options[idx]))
	return s.runOn(ctx, loc, selectIndexBody(idx), nil)
}

func (s *Session) DragSlider(ctx context.Context, loc Locator, target int) error {
	if err := s.WaitUntilPresent(ctx, loc, s.opts.ActionTimeout); err != nil {
		return err
	}
	var g sliderGeometry
	if err := s.runOn(ctx, loc, sliderBody, &g); err != nil {
		return err
	}
	if g.Native {
		return s.runOn(ctx, loc, setFieldValueBody(fmt.Sprint(target)), nil)
	}
	if g.Max <= g.Min || g.TrackWidth <= 0 {
		return fmt.Errorf("slider %s has no usable range", loc)
	}

	ratio := (float64(target) - g.Min) / (g.Max - g.Min)
	ratio = max(0, min(1, ratio))
	toX := g.TrackLeft + g.TrackWidth*ratio

	mouse := func(typ string, x float64, extra map[string]any) error {
		params := map[string]any{"type": typ, "x": x, "y": g.ThumbY, "button": "left"}
		for k, v := range extra {
			params[k] = v
		}
		return s.call(ctx, "Input.dispatchMouseEvent", params, nil)
	}
	if err := mouse("mousePressed", g.ThumbX, map[string]any{"clickCount": 1, "buttons": 1}); err != nil {
		return err
	}
	const steps = 10
	for i := 1; i <= steps; i++ {
		x := g.ThumbX + (toX-g.ThumbX)*float64(i)/steps
		if err := mouse("mouseMoved", x, map[string]any{"buttons": 1}); err != nil {
			return err
		}
	}
	return mouse("mouseReleased", toX, map[string]any{"clickCount": 1})
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := s.evaluate(ctx, "location.href", &url)
	return url, err
}

func (s *Session) SetDownloadDir(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}
	params := map[string]any{"behavior": "allow", "downloadPath": abs}
	if err := s.call(ctx, "Browser.setDownloadBehavior", params, nil); err != nil {
		// Older builds only expose the page-level command.
		if pageErr := s.call(ctx, "Page.setDownloadBehavior", params, nil); pageErr != nil {
			return err
		}
	}
	log.GetLogger().Info("[UIDriver] download dir set", zap.String("dir", abs))
	return nil
}
