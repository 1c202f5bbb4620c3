package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/pipeline"
	"github.com/supportlens/conversations-bot/internal/sources"
)

// WATIProvider fetches the WhatsApp event feed from the WATI API. The whole
// feed is one batch; the adapter does all filtering and grouping.
type WATIProvider struct {
	baseURL string
	token   string
	client  *resty.Client
}

// NewWATIProvider creates a WATI provider.
func NewWATIProvider(baseURL, token string) *WATIProvider {
	return &WATIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Conversations-Bot/1.0"),
	}
}

func (p *WATIProvider) Name() string {
	return string(sources.KindWhatsApp)
}

func (p *WATIProvider) IsEnabled() bool {
	return p.baseURL != "" && p.token != ""
}

func (p *WATIProvider) FetchBatches(ctx context.Context) ([]pipeline.Batch, error) {
	if !p.IsEnabled() {
		logrus.Debug("WATI provider disabled - missing base URL or token")
		return nil, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+p.token).
		Get(p.baseURL + "/api/v1/getMessages")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch WATI events: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("WATI API returned status %d", resp.StatusCode())
	}

	// WATI wraps the event list; unwrap to the flat array the adapter
	// expects, tolerating the bare-array shape some deployments return.
	body := resp.Body()
	var wrapped struct {
		Messages struct {
			Items []json.RawMessage `json:"items"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Messages.Items) > 0 {
		flat, err := json.Marshal(wrapped.Messages.Items)
		if err != nil {
			return nil, err
		}
		body = flat
	}

	return []pipeline.Batch{{Kind: sources.KindWhatsApp, Raw: body}}, nil
}
