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

// ForumProvider fetches configured forum topics as thread JSON. Each topic
// becomes one batch; a topic that fails to fetch is logged and skipped so
// one broken thread never starves the run.
type ForumProvider struct {
	baseURL  string
	topicIDs []string
	client   *resty.Client
}

// NewForumProvider creates a forum provider for the given base URL and topic
// id list.
func NewForumProvider(baseURL string, topicIDs []string) *ForumProvider {
	return &ForumProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		topicIDs: topicIDs,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Conversations-Bot/1.0"),
	}
}

func (p *ForumProvider) Name() string {
	return string(sources.KindForum)
}

func (p *ForumProvider) IsEnabled() bool {
	return p.baseURL != "" && len(p.topicIDs) > 0
}

func (p *ForumProvider) FetchBatches(ctx context.Context) ([]pipeline.Batch, error) {
	if !p.IsEnabled() {
		logrus.Debug("Forum provider disabled - missing base URL or topic ids")
		return nil, nil
	}

	var batches []pipeline.Batch
	for _, topicID := range p.topicIDs {
		raw, err := p.fetchTopic(ctx, topicID)
		if err != nil {
			logrus.Errorf("Failed to fetch forum topic %s: %v", topicID, err)
			continue
		}
		batches = append(batches, pipeline.Batch{Kind: sources.KindForum, Raw: raw})
	}
	return batches, nil
}

func (p *ForumProvider) fetchTopic(ctx context.Context, topicID string) (json.RawMessage, error) {
	topicURL := fmt.Sprintf("%s/t/%s.json", p.baseURL, topicID)

	resp, err := p.client.R().
		SetContext(ctx).
		Get(topicURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("forum API returned status %d", resp.StatusCode())
	}

	// Reshape the Discourse topic response into the thread contract the
	// forum adapter consumes.
	var topic struct {
		Title      string `json:"title"`
		PostStream struct {
			Posts []json.RawMessage `json:"posts"`
		} `json:"post_stream"`
	}
	if err := json.Unmarshal(resp.Body(), &topic); err != nil {
		return nil, fmt.Errorf("failed to parse forum topic response: %w", err)
	}

	thread := map[string]interface{}{
		"topic": topic.Title,
		"url":   topicURL,
		"posts": topic.PostStream.Posts,
	}
	return json.Marshal(thread)
}
