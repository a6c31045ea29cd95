package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"autolecture/internal/polling"
	apperrors "autolecture/pkg/errors"
)

const (
	statusDone    = "done"
	statusPending = "pending"
	statusFailed  = "failed"
)

type LilysConfig struct {
	BaseURL        string
	APIKey         string
	SourceType     string
	ResultLanguage string
	ModelType      string
	Timeout        time.Duration
	Proxy          string
}

// LilysAPI talks to the summaries endpoint over HTTP with a bearer token.
type LilysAPI struct {
	client *resty.Client
	config LilysConfig
}

type submitRequest struct {
	Source struct {
		SourceType string `json:"sourceType"`
		SourceUrl  string `json:"sourceUrl"`
	} `json:"source"`
	ResultLanguage string `json:"resultLanguage"`
	ModelType      string `json:"modelType"`
}

type submitResponse struct {
	RequestId string `json:"requestId"`
}

type statusResponse struct {
	Status string `json:"status"`
	Data   struct {
		Data json.RawMessage `json:"data"`
	} `json:"data"`
}

func NewLilysAPI(cfg LilysConfig) *LilysAPI {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.Proxy != "" {
		client.SetProxy(cfg.Proxy)
	}
	return &LilysAPI{client: client, config: cfg}
}

func (a *LilysAPI) Submit(ctx context.Context, sourceKey string) (string, error) {
	var body submitRequest
	body.Source.SourceType = a.config.SourceType
	body.Source.SourceUrl = sourceKey
	body.ResultLanguage = a.config.ResultLanguage
	body.ModelType = a.config.ModelType

	resp, err := a.client.R().SetContext(ctx).SetBody(body).Post("/summaries")
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeSummarySubmit, "summary submission failed", err)
	}
	if resp.IsError() {
		return "", apperrors.WrapWithDetail(apperrors.CodeSummarySubmit,
			fmt.Sprintf("summary submission rejected with HTTP %d", resp.StatusCode()), resp.String(), nil)
	}

	var out submitResponse
	if err = json.Unmarshal(resp.Body(), &out); err != nil || out.RequestId == "" {
		return "", apperrors.WrapWithDetail(apperrors.CodeSummarySubmit,
			"summary submission returned no requestId", resp.String(), err)
	}
	return out.RequestId, nil
}

func (a *LilysAPI) Fetch(ctx context.Context, jobID string) (polling.Status, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetQueryParam("resultType", a.config.ModelType).
		Get("/summaries/{id}")
	if err != nil {
		return polling.Status{}, err
	}
	raw := resp.String()
	if resp.IsError() {
		return polling.Status{}, fmt.Errorf("summary status returned HTTP %d: %s", resp.StatusCode(), raw)
	}

	var body statusResponse
	if err = json.Unmarshal(resp.Body(), &body); err != nil {
		return polling.Unknown(raw), nil
	}

	switch body.Status {
	case statusDone:
		return polling.Done(extractResult(body.Data.Data, a.config.ModelType), raw), nil
	case statusPending:
		return polling.Pending(raw), nil
	case statusFailed:
		return polling.Failed("remote job failed", raw), nil
	default:
		return polling.Unknown(raw), nil
	}
}

// extractResult picks the requested result type out of data.data. A plain
// string is returned as is; anything else is returned as JSON text.
func extractResult(data json.RawMessage, resultType string) string {
	if len(data) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil {
		if field, ok := fields[resultType]; ok {
			if err = json.Unmarshal(field, &text); err == nil {
				return text
			}
			return string(field)
		}
	}
	return string(data)
}
