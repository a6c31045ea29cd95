package workflow

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"autolecture/config"
	"autolecture/internal/stage"
	"autolecture/internal/uidriver"
	"autolecture/log"
)

const (
	SlidesLogin       = "login"
	SlidesContent     = "content"
	SlidesOptionsOpen = "options_open"
	SlidesOptionsPick = "options_pick"
	SlidesContinue    = "continue"
	SlidesCardAdd     = "card_add"
	SlidesCardConfirm = "card_confirm"
	SlidesGenerate    = "generate"
	SlidesCompleted   = "completed"
	SlidesMore        = "more"
	SlidesExport      = "export"
	SlidesExportPDF   = "export_pdf"
)

var slidesLocators = map[string]string{
	SlidesLogin:       "/html/body/div[1]/div/div/div/div[1]/div[2]/div[1]/h2[1]",
	SlidesContent:     "/html/body/div[1]/div/div/div/div[1]/div[2]/div[2]/div/div/div[1]/div/div/div/div/div/div",
	SlidesOptionsOpen: "/html/body/div[1]/div/div/div/div[1]/div[2]/div[2]/div/div/div[2]/div/div/div[2]/button",
	SlidesOptionsPick: "/html/body/div[5]/div[1]/div/div/button[2]",
	SlidesContinue:    "/html/body/div[1]/div/div/div/div[1]/div[2]/div[2]/div/div/div[3]/button",
	SlidesCardAdd:     "/html/body/div[1]/div/div/div/div[1]/div[4]/div/div[2]/div/div[1]/button[3]",
	SlidesCardConfirm: "/html/body/div[1]/div/div/div/div[1]/div[4]/div/div[2]/div/div[2]/div/button",
	SlidesGenerate:    "/html/body/div[1]/div/div/div/div[1]/div[2]/div[2]/div[2]/div[1]/div[1]/div/div[2]/div/div/button",
	SlidesCompleted:   "/html/body/div[1]/div/div/div/div/div[2]/div[2]/div/div[2]/div/div/div/div/div[1]/h2",
	SlidesMore:        "/html/body/div[1]/div/div/div/div/div[1]/div[2]/button",
	SlidesExport:      "/html/body/div[61]/div/div/div[1]/button[5] || xpath://button[contains(., '내보내기...')]",
	SlidesExportPDF:   "/html/body/div[121]/div[3]/div/section/div/div[2]/div[2]/button[1] || xpath://button[contains(., 'PDF로 내보내기')]",
}

var slidesTimeouts = map[string]int{
	SlidesLogin:     300,
	SlidesContent:   10,
	SlidesGenerate:  30,
	SlidesCompleted: 300,
}

// Slides returns the stages that paste script into the slides site, have it
// generate a deck and export that deck as PDF into downloadDir.
func Slides(cfg config.Slides, downloadDir, script string) ([]stage.Stage, error) {
	if strings.TrimSpace(script) == "" {
		return nil, errors.New("empty script")
	}
	p, err := newPlan(slidesLocators, slidesTimeouts, cfg.Site)
	if err != nil {
		return nil, err
	}

	return []stage.Stage{
		{
			Name:    "open",
			Timeout: stageSlack,
			Action:  openSite(downloadDir, cfg.Site.StartUrl),
		},
		{
			Name:    "login",
			Timeout: p.timeout(SlidesLogin) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				log.GetLogger().Info("[Workflow] waiting for slides login; sign in in the browser window if asked")
				return d.WaitUntilPresent(ctx, p.first(SlidesLogin), p.timeout(SlidesLogin))
			},
		},
		{
			Name:    "paste_script",
			Timeout: 2 * stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				if err := pasteInto(ctx, d, p.first(SlidesContent), p.timeout(SlidesContent), script); err != nil {
					return err
				}
				for _, key := range []string{SlidesOptionsOpen, SlidesOptionsPick, SlidesContinue} {
					if err := clickFirst(ctx, d, p.loc(key), p.timeout(key)); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:    "card_count",
			Timeout: 2 * stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				clicked := clickRepeat(ctx, d, p.first(SlidesCardAdd), cfg.CardClicks)
				log.GetLogger().Info("[Workflow] card count adjusted",
					zap.Int("clicks", clicked), zap.Int("requested", cfg.CardClicks))
				return clickFirst(ctx, d, p.loc(SlidesCardConfirm), p.timeout(SlidesCardConfirm))
			},
		},
		{
			Name:    "generate",
			Timeout: p.timeout(SlidesGenerate) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return clickFirst(ctx, d, p.loc(SlidesGenerate), p.timeout(SlidesGenerate))
			},
		},
		{
			Name:    "await_generation",
			Timeout: p.timeout(SlidesCompleted) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return d.WaitUntilPresent(ctx, p.first(SlidesCompleted), p.timeout(SlidesCompleted))
			},
		},
		{
			Name:    "export_pdf",
			Timeout: 2 * stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				for _, key := range []string{SlidesMore, SlidesExport, SlidesExportPDF} {
					if err := clickFirst(ctx, d, p.loc(key), p.timeout(key)); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}, nil
}
