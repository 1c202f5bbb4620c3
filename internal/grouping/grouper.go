// Package grouping decides which canonical posts belong to one conversation.
// Reply-threaded streams are grouped by walking each post's reply pointer to
// its root; non-threaded streams are chunked by size or kept whole.
package grouping

import (
	"sort"

	"github.com/supportlens/conversations-bot/internal/models"
)

// DefaultMaxPostsPerBlock bounds non-threaded chunks.
const DefaultMaxPostsPerBlock = 40

// Group is one conversation's worth of posts. RootSequence identifies the
// anchor: for reply-graph groups it is the walked-to root's sequence number,
// for chunks it is the chunk leader's.
type Group struct {
	RootSequence int
	Posts        []models.Post
}

// GroupByReply partitions one stream's posts by walking reply pointers to
// their terminal post. A pointer to a missing sequence number (orphan) or a
// revisited one (cycle) terminates the walk at the current post, so bad
// graphs degrade to self-rooted groups instead of looping or raising.
func GroupByReply(posts []models.Post) []Group {
	index := make(map[int]models.Post, len(posts))
	for _, p := range posts {
		index[p.SequenceNumber] = p
	}

	byRoot := make(map[int][]models.Post)
	var rootOrder []int
	for _, p := range posts {
		root := walkToRoot(p, index)
		if _, ok := byRoot[root]; !ok {
			rootOrder = append(rootOrder, root)
		}
		byRoot[root] = append(byRoot[root], p)
	}
	sort.Ints(rootOrder)

	groups := make([]Group, 0, len(rootOrder))
	for _, root := range rootOrder {
		members := byRoot[root]
		sortChronological(members)
		groups = append(groups, Group{RootSequence: root, Posts: members})
	}
	return groups
}

// walkToRoot follows reply pointers with a visited set. Iterative on
// purpose: pathological chains must not grow the stack.
func walkToRoot(p models.Post, index map[int]models.Post) int {
	visited := map[int]bool{p.SequenceNumber: true}
	current := p
	for {
		if current.ReplyToSequenceNumber == nil {
			return current.SequenceNumber
		}
		parent, ok := index[*current.ReplyToSequenceNumber]
		if !ok {
			// Orphan: the parent never made it into this batch.
			return current.SequenceNumber
		}
		if visited[parent.SequenceNumber] {
			// Cycle: break it by rooting at the post we stand on.
			return current.SequenceNumber
		}
		visited[parent.SequenceNumber] = true
		current = parent
	}
}

// GroupByChunk slices one stream's chronological post list into consecutive
// chunks of at most maxPostsPerBlock. A non-positive limit means no
// splitting at all: the whole stream is one lifetime group, the WhatsApp
// policy of keeping a customer's full history together.
func GroupByChunk(posts []models.Post, maxPostsPerBlock int) []Group {
	if len(posts) == 0 {
		return nil
	}
	ordered := make([]models.Post, len(posts))
	copy(ordered, posts)
	sortChronological(ordered)

	if maxPostsPerBlock <= 0 {
		return []Group{{RootSequence: ordered[0].SequenceNumber, Posts: ordered}}
	}

	var groups []Group
	for start := 0; start < len(ordered); start += maxPostsPerBlock {
		end := start + maxPostsPerBlock
		if end > len(ordered) {
			end = len(ordered)
		}
		chunk := ordered[start:end]
		groups = append(groups, Group{RootSequence: chunk[0].SequenceNumber, Posts: chunk})
	}
	return groups
}

// sortChronological orders posts by created_at, sequence number as tie-break.
func sortChronological(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].SequenceNumber < posts[j].SequenceNumber
	})
}
