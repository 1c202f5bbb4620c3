package ingest

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/pipeline"
	"github.com/supportlens/conversations-bot/internal/sources"
	"github.com/supportlens/conversations-bot/internal/storage"
)

// FacebookProvider reads the most recent group-scrape JSON from blob
// storage. The scraper itself runs out-of-process and drops its output
// under a known prefix.
type FacebookProvider struct {
	storage storage.StorageInterface
	prefix  string
}

// NewFacebookProvider creates a provider reading scrape blobs under the
// given prefix.
func NewFacebookProvider(store storage.StorageInterface, prefix string) *FacebookProvider {
	return &FacebookProvider{storage: store, prefix: prefix}
}

func (p *FacebookProvider) Name() string {
	return string(sources.KindFacebook)
}

func (p *FacebookProvider) IsEnabled() bool {
	return p.storage != nil && p.prefix != ""
}

func (p *FacebookProvider) FetchBatches(ctx context.Context) ([]pipeline.Batch, error) {
	if !p.IsEnabled() {
		logrus.Debug("Facebook provider disabled - no scrape prefix configured")
		return nil, nil
	}

	names, err := p.storage.List(p.prefix)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		logrus.Infof("No facebook scrape blobs under prefix %q", p.prefix)
		return nil, nil
	}

	// Blob names embed the scrape timestamp, so the lexically last one is
	// the newest.
	latest := names[0]
	for _, name := range names[1:] {
		if name > latest {
			latest = name
		}
	}

	data, err := p.storage.Retrieve(latest)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Loaded facebook scrape %s (%d bytes)", latest, len(data))
	return []pipeline.Batch{{Kind: sources.KindFacebook, Raw: data}}, nil
}
