// Package ingest fetches raw source payloads for the pipeline. Providers
// own the transport glue (HTTP, blob reads); the adapters downstream never
// see anything but the raw JSON.
package ingest

import (
	"context"

	"github.com/supportlens/conversations-bot/internal/pipeline"
)

// Provider fetches the raw batches one source currently has to offer.
type Provider interface {
	Name() string
	IsEnabled() bool
	FetchBatches(ctx context.Context) ([]pipeline.Batch, error)
}
