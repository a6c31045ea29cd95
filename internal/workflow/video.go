package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"autolecture/config"
	"autolecture/internal/stage"
	"autolecture/internal/uidriver"
	"autolecture/log"
)

const (
	VideoLogin        = "login"
	VideoImport       = "import"
	VideoPrompt       = "prompt"
	VideoSlider       = "slider"
	VideoFileInput    = "file_input"
	VideoUploadNext   = "upload_next"
	VideoTemplateSkip = "template_skip"
	VideoLanguage     = "language"
	VideoDialect      = "dialect"
	VideoStyleSkip    = "style_skip"
	VideoScriptNext   = "script_next"
	VideoSubmit       = "submit"
	VideoOverlay      = "overlay"
	VideoDownloadOpen = "download_open"
	VideoDownload     = "download"
	VideoFormat       = "download_format"
	VideoFinalConfirm = "final_confirm"
)

// formatFallbackWait bounds the format button wait when it replaces a
// missing download button.
const formatFallbackWait = 10 * time.Second

// PromptLimit is the most runes the video site accepts in its prompt box.
const PromptLimit = 500

var videoLocators = map[string]string{
	VideoLogin:        "/html/body/div/main/div/div/div/div/div/div[1]/div/button[4]",
	VideoImport:       "/html/body/div/main/div/div/div/div/div/div[1]/div/button[4]",
	VideoPrompt:       "/html/body/div[2]/div/div[2]/div/div[1]/textarea",
	VideoSlider:       "/html/body/div[2]/div/div[2]/div/div[2]/div/span",
	VideoFileInput:    "/html/body/div[2]/div/div[2]/div/div[3]/div/input",
	VideoUploadNext:   "/html/body/div[2]/div/div[3]/div/div/button",
	VideoTemplateSkip: "/html/body/div[2]/div/div[3]/div/div/button[2]",
	VideoLanguage:     "/html/body/div[2]/div/div[2]/div/div[1]/div[1]/select",
	VideoDialect:      "/html/body/div[2]/div/div[2]/div/div[1]/div[2]/select",
	VideoStyleSkip:    "/html/body/div[2]/div/div[3]/div/div/button[2]",
	VideoScriptNext:   "/html/body/div[2]/div/div[3]/div/div/button[3]",
	VideoSubmit:       "/html/body/div[2]/div/div[3]/div/div/button[2]",
	VideoOverlay:      "/html/body/div[2]/div/div",
	VideoDownloadOpen: "/html/body/div/main/div/div/div[1]/nav[2]/button[3]",
	VideoDownload:     "/html/body/div[2]/div/div[3]/button",
	VideoFormat:       "/html/body/div[3]/div/div/button[2]",
	VideoFinalConfirm: "/html/body/div[2]/div/div[3]/button",
}

var videoTimeouts = map[string]int{
	VideoLogin:        300,
	VideoPrompt:       15,
	VideoUploadNext:   120,
	VideoTemplateSkip: 120,
	VideoScriptNext:   60,
	VideoSubmit:       240,
	VideoOverlay:      600,
	VideoDownload:     20,
	VideoFormat:       20,
	VideoFinalConfirm: 3600,
}

// Video returns the stages that import deckPath into the video site, have
// it render narration and download the result into downloadDir.
func Video(cfg config.Video, downloadDir, deckPath, prompt string) ([]stage.Stage, error) {
	if strings.TrimSpace(deckPath) == "" {
		return nil, errors.New("no slide deck to import")
	}
	p, err := newPlan(videoLocators, videoTimeouts, cfg.Site)
	if err != nil {
		return nil, err
	}
	prompt = TruncateRunes(prompt, PromptLimit)
	// Set when the format button had to stand in for a missing download button.
	formatClicked := false

	return []stage.Stage{
		{
			Name:    "open",
			Timeout: stageSlack,
			Action:  openSite(downloadDir, cfg.Site.StartUrl),
		},
		{
			Name:    "login",
			Timeout: p.timeout(VideoLogin) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				log.GetLogger().Info("[Workflow] waiting for video login; sign in in the browser window if asked")
				return d.WaitUntilPresent(ctx, p.first(VideoLogin), p.timeout(VideoLogin))
			},
		},
		{
			Name:    "upload",
			Timeout: p.timeout(VideoUploadNext) + 2*stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				if err := clickFirst(ctx, d, p.loc(VideoImport), p.timeout(VideoImport)); err != nil {
					return err
				}
				if err := pasteInto(ctx, d, p.first(VideoPrompt), p.timeout(VideoPrompt), prompt); err != nil {
					return err
				}
				if cfg.SliderValue > 0 {
					if err := d.DragSlider(ctx, p.first(VideoSlider), cfg.SliderValue); err != nil {
						log.GetLogger().Warn("[Workflow] slider not set, keeping site default", zap.Error(err))
					}
				}
				if err := d.UploadFile(ctx, p.first(VideoFileInput), deckPath); err != nil {
					return err
				}
				return clickFirst(ctx, d, p.loc(VideoUploadNext), p.timeout(VideoUploadNext))
			},
		},
		{
			Name:    "template",
			Timeout: p.timeout(VideoTemplateSkip) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return clickFirst(ctx, d, p.loc(VideoTemplateSkip), p.timeout(VideoTemplateSkip))
			},
		},
		{
			Name:    "style",
			Timeout: 2 * stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				if err := d.SelectDropdown(ctx, p.first(VideoLanguage), cfg.Language); err != nil {
					return err
				}
				if cfg.Dialect != "" {
					if err := d.SelectDropdown(ctx, p.first(VideoDialect), cfg.Dialect); err != nil {
						log.GetLogger().Warn("[Workflow] dialect not selected, keeping site default",
							zap.String("dialect", cfg.Dialect), zap.Error(err))
					}
				}
				return clickFirst(ctx, d, p.loc(VideoStyleSkip), p.timeout(VideoStyleSkip))
			},
		},
		{
			Name:    "script",
			Timeout: p.timeout(VideoScriptNext) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return clickFirst(ctx, d, p.loc(VideoScriptNext), p.timeout(VideoScriptNext))
			},
		},
		{
			Name:    "submit",
			Timeout: p.timeout(VideoSubmit) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return clickFirst(ctx, d, p.loc(VideoSubmit), p.timeout(VideoSubmit))
			},
		},
		{
			Name:    "render",
			Timeout: p.timeout(VideoOverlay) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return d.WaitUntilGone(ctx, p.first(VideoOverlay), p.timeout(VideoOverlay))
			},
		},
		{
			Name:    "download",
			Timeout: 3 * stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				if err := clickFirst(ctx, d, p.loc(VideoDownloadOpen), p.timeout(VideoDownloadOpen)); err != nil {
					if ctx.Err() != nil {
						return err
					}
					// The download menu sometimes needs a reload to appear.
					if err := reload(ctx, d); err != nil {
						return err
					}
					if err := clickFirst(ctx, d, p.loc(VideoDownloadOpen), p.timeout(VideoDownloadOpen)); err != nil {
						return err
					}
				}
				err := clickFirst(ctx, d, p.loc(VideoDownload), p.timeout(VideoDownload))
				if err == nil || ctx.Err() != nil {
					return err
				}
				log.GetLogger().Warn("[Workflow] download button missing, trying the format button", zap.Error(err))
				if err := clickFirst(ctx, d, p.loc(VideoFormat), formatFallbackWait); err != nil {
					return err
				}
				formatClicked = true
				return nil
			},
		},
		{
			Name:     "download_format",
			Optional: true,
			Timeout:  p.timeout(VideoFormat) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				if formatClicked {
					return nil
				}
				return clickFirst(ctx, d, p.loc(VideoFormat), p.timeout(VideoFormat))
			},
		},
		{
			Name:     "final_confirm",
			Optional: true,
			Timeout:  p.timeout(VideoFinalConfirm) + stageSlack,
			Action: func(ctx context.Context, d uidriver.Driver) error {
				return clickFirst(ctx, d, p.loc(VideoFinalConfirm), p.timeout(VideoFinalConfirm))
			},
		},
	}, nil
}

func reload(ctx context.Context, d uidriver.Driver) error {
	url, err := d.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return d.Navigate(ctx, url)
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
