package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autolecture/internal/uidriver"
	"autolecture/log"
)

const (
	defaultWait  = 10 * time.Second
	fallbackWait = 3 * time.Second
	// stageSlack is added on top of the longest wait a stage performs.
	stageSlack = time.Minute
)

// clickFirst waits for and clicks the first alternative that becomes
// clickable. The primary locator gets wait; fallbacks get fallbackWait.
func clickFirst(ctx context.Context, d uidriver.Driver, locs []uidriver.Locator, wait time.Duration) error {
	var errs []error
	for i, loc := range locs {
		budget := wait
		if i > 0 {
			budget = fallbackWait
		}
		err := d.WaitUntilClickable(ctx, loc, budget)
		if err == nil {
			err = d.Click(ctx, loc)
		}
		if err == nil {
			if i > 0 {
				log.GetLogger().Info("[Workflow] clicked fallback locator", zap.String("locator", loc.String()))
			}
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		errs = append(errs, fmt.Errorf("%s: %w", loc, err))
	}
	return errors.Join(errs...)
}

// clickRepeat clicks loc n times, ignoring individual failures.
func clickRepeat(ctx context.Context, d uidriver.Driver, loc uidriver.Locator, n int) int {
	clicked := 0
	for i := 0; i < n; i++ {
		if err := d.Click(ctx, loc); err != nil {
			log.GetLogger().Debug("[Workflow] repeated click failed", zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		clicked++
	}
	return clicked
}

// pasteInto waits for the field and pastes text into it.
func pasteInto(ctx context.Context, d uidriver.Driver, loc uidriver.Locator, wait time.Duration, text string) error {
	if err := d.WaitUntilPresent(ctx, loc, wait); err != nil {
		return err
	}
	return d.TypeOrPaste(ctx, loc, text)
}

func openSite(downloadDir, startURL string) func(ctx context.Context, d uidriver.Driver) error {
	return func(ctx context.Context, d uidriver.Driver) error {
		if downloadDir != "" {
			if err := d.SetDownloadDir(ctx, downloadDir); err != nil {
				return fmt.Errorf("set download dir: %w", err)
			}
		}
		return d.Navigate(ctx, startURL)
	}
}
