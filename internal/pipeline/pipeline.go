// Package pipeline drives raw source payloads through adapter, grouper, and
// assembler into the final block list. BuildBlocks is a pure batch
// transform: every index and accumulator is local to one invocation, so
// independent tenants can run it concurrently.
package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/supportlens/conversations-bot/internal/blocks"
	"github.com/supportlens/conversations-bot/internal/grouping"
	"github.com/supportlens/conversations-bot/internal/models"
	"github.com/supportlens/conversations-bot/internal/sources"
)

// Batch is one source's raw payload tagged with the kind that selects its
// adapter.
type Batch struct {
	Kind sources.Kind    `json:"kind"`
	Raw  json.RawMessage `json:"raw"`
}

// Options tunes the grouping stage.
type Options struct {
	// MaxPostsPerBlock caps non-threaded (Facebook) chunks. Zero means the
	// default; lifetime sources ignore it.
	MaxPostsPerBlock int
}

// Stats aggregates adapter counters plus block totals for one run.
type Stats struct {
	sources.Stats
	Posts        int            `json:"posts"`
	Blocks       int            `json:"blocks"`
	SourcePosts  map[string]int `json:"source_posts"`
	SourceBlocks map[string]int `json:"source_blocks"`
}

// BuildBlocks transforms raw batches into time-ordered conversation blocks.
// An unknown kind or a structurally invalid payload fails the run: guessing
// at container shapes would silently corrupt stream grouping. Everything
// below that level recovers per record inside the adapters.
func BuildBlocks(batches []Batch, opts Options) ([]models.ConversationBlock, Stats, error) {
	maxPerBlock := opts.MaxPostsPerBlock
	if maxPerBlock == 0 {
		maxPerBlock = grouping.DefaultMaxPostsPerBlock
	}

	stats := Stats{
		SourcePosts:  make(map[string]int),
		SourceBlocks: make(map[string]int),
	}

	var all []models.ConversationBlock
	for _, batch := range batches {
		adapter, ok := sources.ForKind(batch.Kind)
		if !ok {
			return nil, stats, fmt.Errorf("unknown source kind %q", batch.Kind)
		}

		posts, batchStats, err := adapter.BuildPosts(batch.Raw)
		if err != nil {
			return nil, stats, fmt.Errorf("%s adapter: %w", adapter.Name(), err)
		}
		stats.Add(batchStats)
		stats.Posts += len(posts)
		stats.SourcePosts[adapter.Name()] += len(posts)

		var groups []grouping.Group
		for _, stream := range splitStreams(posts) {
			switch batch.Kind {
			case sources.KindForum:
				groups = append(groups, grouping.GroupByReply(stream)...)
			case sources.KindFacebook:
				groups = append(groups, grouping.GroupByChunk(stream, maxPerBlock)...)
			case sources.KindWhatsApp:
				// Lifetime policy: one customer, one group.
				groups = append(groups, grouping.GroupByChunk(stream, 0)...)
			}
		}

		built := blocks.AssembleAll(groups)
		stats.Blocks += len(built)
		stats.SourceBlocks[adapter.Name()] += len(built)
		all = append(all, built...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].StartTime.Before(all[j].StartTime)
		}
		return all[i].BlockID < all[j].BlockID
	})
	return all, stats, nil
}

// splitStreams partitions posts by stream id, preserving first-seen stream
// order so output stays reproducible.
func splitStreams(posts []models.Post) [][]models.Post {
	byStream := make(map[string][]models.Post)
	var order []string
	for _, p := range posts {
		if _, ok := byStream[p.StreamID]; !ok {
			order = append(order, p.StreamID)
		}
		byStream[p.StreamID] = append(byStream[p.StreamID], p)
	}
	out := make([][]models.Post, 0, len(order))
	for _, id := range order {
		out = append(out, byStream[id])
	}
	return out
}
