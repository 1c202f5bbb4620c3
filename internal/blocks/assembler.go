// Package blocks turns grouped posts into conversation blocks: the
// root/replies split, a flattened human-readable transcript, and aggregate
// time bounds.
package blocks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/supportlens/conversations-bot/internal/grouping"
	"github.com/supportlens/conversations-bot/internal/models"
)

// transcriptTime is the fixed rendering for timestamps inside flattened
// transcripts. Chat-source instants are already UTC, so the designation is
// explicit and unambiguous.
const transcriptTime = "2006-01-02 15:04:05 UTC"

// Assemble builds one conversation block from a group. The root is the post
// whose sequence number matches the group's root key when that post is a
// member (reply-graph groups), otherwise the chronologically first member
// (chunked and lifetime groups, and cycle-broken groups whose nominal root
// landed elsewhere).
func Assemble(g grouping.Group) models.ConversationBlock {
	posts := make([]models.Post, len(g.Posts))
	copy(posts, g.Posts)
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].SequenceNumber < posts[j].SequenceNumber
	})

	rootIdx := 0
	for i, p := range posts {
		if p.SequenceNumber == g.RootSequence {
			rootIdx = i
			break
		}
	}
	root := posts[rootIdx]
	replies := make([]models.Post, 0, len(posts)-1)
	replies = append(replies, posts[:rootIdx]...)
	replies = append(replies, posts[rootIdx+1:]...)

	start, end := root.CreatedAt, root.CreatedAt
	for _, p := range posts {
		if p.CreatedAt.Before(start) {
			start = p.CreatedAt
		}
		if p.CreatedAt.After(end) {
			end = p.CreatedAt
		}
	}

	return models.ConversationBlock{
		BlockID:       fmt.Sprintf("%s:%d", root.StreamID, root.SequenceNumber),
		StreamID:      root.StreamID,
		SourceURL:     root.SourceURL,
		StreamTitle:   root.StreamTitle,
		RootPost:      root,
		Replies:       replies,
		FlattenedText: flatten(root, replies),
		StartTime:     start,
		EndTime:       end,
		ExternalKey:   root.ExternalKey,
	}
}

// AssembleAll assembles every group and sorts the result by start time so
// repeated runs over the same input produce the same ordering.
func AssembleAll(groups []grouping.Group) []models.ConversationBlock {
	out := make([]models.ConversationBlock, 0, len(groups))
	for _, g := range groups {
		if len(g.Posts) == 0 {
			continue
		}
		out = append(out, Assemble(g))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].BlockID < out[j].BlockID
	})
	return out
}

// flatten renders the transcript: root then each reply as
// "[author @ timestamp]" on one line and the message below, entries
// separated by a blank line.
func flatten(root models.Post, replies []models.Post) string {
	entries := make([]string, 0, len(replies)+1)
	entries = append(entries, renderEntry(root))
	for _, reply := range replies {
		entries = append(entries, renderEntry(reply))
	}
	return strings.Join(entries, "\n\n")
}

func renderEntry(p models.Post) string {
	header := fmt.Sprintf("[%s @ %s]", p.Author, p.CreatedAt.UTC().Format(transcriptTime))
	return strings.TrimSpace(header + "\n" + strings.TrimSpace(p.Text))
}
