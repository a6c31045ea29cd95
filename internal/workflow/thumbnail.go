package workflow

import (
	"context"
	"errors"
	"strings"

	"autolecture/config"
	"autolecture/internal/stage"
	"autolecture/internal/uidriver"
	"autolecture/log"
)

const (
	ThumbnailLogin    = "login"
	ThumbnailComposer = "composer"
	ThumbnailSubmit   = "submit"
	ThumbnailImage    = "image"
)

var thumbnailLocators = map[string]string{
	ThumbnailLogin:    "/html/body/div[1]/div/div[1]/div[1]/div/div/div/nav/div[1]/div",
	ThumbnailComposer: "css:div.ProseMirror || /html/body/div[1]/div/div[1]/div[2]/main/div/div/div[3]/div[1]/div/div/div[2]/form/div[1]/div/div[1]/div[1]/div[2]/div/div/div/div/div/p",
	ThumbnailSubmit:   "css:#composer-submit-button",
	ThumbnailImage:    `css:img[alt="생성된 이미지"]`,
}

var thumbnailTimeouts = map[string]int{
	ThumbnailLogin:    300,
	ThumbnailComposer: 20,
	ThumbnailSubmit:   20,
	ThumbnailImage:    600,
}

// Thumbnail returns the stages that paste prompt into the chat site and
// submit it. Waiting for the drawn image is optional; the conversation keeps
// it either way.
func Thumbnail(cfg config.Thumbnail, prompt string) ([]stage.Stage, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("empty thumbnail prompt")
	}
	p, err := newPlan(thumbnailLocators, thumbnailTimeouts, cfg.Site)
	if err != nil {
		return nil, err
	}

	return []stage.Stage{
		{
			Name:    "open",
			Timeout: stageSlack,
			Action:  openSite("", cfg.Site.StartUrl),
		},
		{
			Name:    "login",
			Timeout: p.timeout(ThumbnailLogin) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				log.GetLogger().Info("[Workflow] waiting for chat login; sign in in the browser window if asked")
				return d.WaitUntilPresent(ctx, p.first(ThumbnailLogin), p.timeout(ThumbnailLogin))
			},
		},
		{
			Name:    "paste_prompt",
			Timeout: p.timeout(ThumbnailComposer) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				var errs []error
				for _, loc := range p.loc(ThumbnailComposer) {
					err := pasteInto(ctx, d, loc, p.timeout(ThumbnailComposer), prompt)
					if err == nil {
						return nil
					}
					if ctx.Err() != nil {
						return err
					}
					errs = append(errs, err)
				}
				return errors.Join(errs...)
			},
		},
		{
			Name:    "submit",
			Timeout: p.timeout(ThumbnailSubmit) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return clickFirst(ctx, d, p.loc(ThumbnailSubmit), p.timeout(ThumbnailSubmit))
			},
		},
		{
			Name:     "await_image",
			Optional: true,
			Timeout:  p.timeout(ThumbnailImage) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return d.WaitUntilPresent(ctx, p.first(ThumbnailImage), p.timeout(ThumbnailImage))
			},
		},
	}, nil
}
