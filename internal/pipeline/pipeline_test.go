package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supportlens/conversations-bot/internal/models"
	"github.com/supportlens/conversations-bot/internal/sources"
)

const forumBatchJSON = `{
	"topic": "Gearbox whine",
	"url": "https://forum.example.com/t/7",
	"posts": [
		{"post_id": 70, "post_number": 1, "username": "alice", "created_at": "2025-01-01T10:00:00Z", "updated_at": "2025-01-01T10:00:00Z", "cooked": "<p>Whine in 3rd gear</p>"},
		{"post_id": 71, "post_number": 2, "username": "bob", "created_at": "2025-01-01T11:00:00Z", "updated_at": "2025-01-01T11:00:00Z", "cooked": "<p>Oil level?</p>", "reply_to_post_number": 1},
		{"post_id": 72, "post_number": 3, "username": "carol", "created_at": "2025-01-02T09:00:00Z", "updated_at": "2025-01-02T09:00:00Z", "cooked": "<p>Separate question</p>"}
	]
}`

const whatsappBatchJSON = `[
	{"eventType": "ticket", "waId": "15550001111", "topicName": "Service Booking",
	 "eventDescription": "Ticket initialized by contact Dana Fox"},
	{"eventType": "message", "type": "text", "text": "Can I book a service?",
	 "created": "2024-01-05T08:00:00Z", "owner": false, "waId": "15550001111", "id": "aa01"},
	{"eventType": "message", "type": "text", "text": "Still waiting on that part",
	 "created": "2025-02-09T08:00:00Z", "owner": false, "waId": "15550001111", "id": "aa02"}
]`

func facebookBatch(n int) json.RawMessage {
	var records []map[string]string
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		records = append(records, map[string]string{
			"group":      "Car Owners Club",
			"url":        "https://facebook.com/groups/caro",
			"author":     fmt.Sprintf("Member %02d", i),
			"text":       fmt.Sprintf("Member %02d\npost number %d", i, i),
			"scraped_at": base.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05"),
			"post_id":    fmt.Sprintf("fb%03d", i),
		})
	}
	raw, _ := json.Marshal(records)
	return raw
}

func allBatches() []Batch {
	return []Batch{
		{Kind: sources.KindForum, Raw: json.RawMessage(forumBatchJSON)},
		{Kind: sources.KindFacebook, Raw: facebookBatch(5)},
		{Kind: sources.KindWhatsApp, Raw: json.RawMessage(whatsappBatchJSON)},
	}
}

func TestBuildBlocks_Deterministic(t *testing.T) {
	first, _, err := BuildBlocks(allBatches(), Options{})
	require.NoError(t, err)
	second, _, err := BuildBlocks(allBatches(), Options{})
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestBuildBlocks_Completeness(t *testing.T) {
	blocks, stats, err := BuildBlocks(allBatches(), Options{})
	require.NoError(t, err)

	seen := make(map[string]int)
	total := 0
	for _, block := range blocks {
		for _, p := range append([]models.Post{block.RootPost}, block.Replies...) {
			seen[fmt.Sprintf("%s/%d", p.StreamID, p.PostID)]++
			total++
		}
	}

	assert.Equal(t, stats.Posts, total, "every built post lands in exactly one block")
	for key, count := range seen {
		assert.Equal(t, 1, count, "post %s duplicated across blocks", key)
	}
}

func TestBuildBlocks_ForumReplyGraph(t *testing.T) {
	blocks, _, err := BuildBlocks([]Batch{{Kind: sources.KindForum, Raw: json.RawMessage(forumBatchJSON)}}, Options{})
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	// Root uniqueness: distinct blocks, distinct roots.
	assert.NotEqual(t, blocks[0].RootPost.SequenceNumber, blocks[1].RootPost.SequenceNumber)

	assert.Equal(t, "alice", blocks[0].RootPost.Author)
	require.Len(t, blocks[0].Replies, 1)
	assert.Equal(t, "bob", blocks[0].Replies[0].Author)
	assert.Equal(t, "carol", blocks[1].RootPost.Author)
}

func TestBuildBlocks_FacebookChunking(t *testing.T) {
	blocks, _, err := BuildBlocks([]Batch{{Kind: sources.KindFacebook, Raw: facebookBatch(5)}}, Options{MaxPostsPerBlock: 4})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].Replies, 3)
	assert.Len(t, blocks[1].Replies, 0)
}

func TestBuildBlocks_WhatsAppLifetime(t *testing.T) {
	blocks, _, err := BuildBlocks([]Batch{{Kind: sources.KindWhatsApp, Raw: json.RawMessage(whatsappBatchJSON)}}, Options{})
	require.NoError(t, err)
	require.Len(t, blocks, 1, "400-day-apart messages stay in one lifetime block")

	block := blocks[0]
	assert.Equal(t, "15550001111", block.ExternalKey)
	require.Len(t, block.Replies, 1)
	assert.True(t, block.EndTime.Sub(block.StartTime) > 365*24*time.Hour)
}

func TestBuildBlocks_ChronologyInvariant(t *testing.T) {
	blocks, _, err := BuildBlocks(allBatches(), Options{MaxPostsPerBlock: 2})
	require.NoError(t, err)
	require.NotEmpty(t, blocks)

	for _, block := range blocks {
		assert.True(t, !block.StartTime.After(block.EndTime))
		for i := 1; i < len(block.Replies); i++ {
			assert.True(t, !block.Replies[i-1].CreatedAt.After(block.Replies[i].CreatedAt),
				"replies out of order in %s", block.BlockID)
		}
	}

	for i := 1; i < len(blocks); i++ {
		assert.True(t, !blocks[i-1].StartTime.After(blocks[i].StartTime))
	}
}

func TestBuildBlocks_EmptyInput(t *testing.T) {
	blocks, stats, err := BuildBlocks(nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, blocks)
	assert.Equal(t, 0, stats.Posts)
}

func TestBuildBlocks_UnknownKind(t *testing.T) {
	_, _, err := BuildBlocks([]Batch{{Kind: sources.Kind("telegram"), Raw: json.RawMessage(`[]`)}}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source kind")
}

func TestBuildBlocks_StructurallyInvalidPayload(t *testing.T) {
	_, _, err := BuildBlocks([]Batch{{Kind: sources.KindForum, Raw: json.RawMessage(`"not an object"`)}}, Options{})
	assert.Error(t, err)
}

func TestBuildBlocks_IdempotentReimport(t *testing.T) {
	// A re-fetch typically contains every already-seen post plus the new
	// ones. Blocks from the superset must extend, not reshuffle, the
	// earlier run.
	initial := []Batch{{Kind: sources.KindForum, Raw: json.RawMessage(forumBatchJSON)}}

	var thread map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(forumBatchJSON), &thread))
	posts := thread["posts"].([]interface{})
	posts = append(posts, map[string]interface{}{
		"post_id": 73, "post_number": 4, "username": "dave",
		"created_at": "2025-01-03T10:00:00Z", "updated_at": "2025-01-03T10:00:00Z",
		"cooked": "<p>New reply</p>", "reply_to_post_number": 3,
	})
	thread["posts"] = posts
	reimport, err := json.Marshal(thread)
	require.NoError(t, err)

	before, _, err := BuildBlocks(initial, Options{})
	require.NoError(t, err)
	after, _, err := BuildBlocks([]Batch{{Kind: sources.KindForum, Raw: reimport}}, Options{})
	require.NoError(t, err)

	require.Len(t, before, 2)
	require.Len(t, after, 2)
	assert.Equal(t, before[0].BlockID, after[0].BlockID)
	assert.Equal(t, before[0].FlattenedText, after[0].FlattenedText, "untouched block unchanged")
	assert.Len(t, after[1].Replies, len(before[1].Replies)+1, "only the new post appears as an addition")
}

func TestBuildBlocks_JSONRoundTrip(t *testing.T) {
	blocks, _, err := BuildBlocks(allBatches(), Options{})
	require.NoError(t, err)
	require.NotEmpty(t, blocks)

	raw, err := json.Marshal(blocks)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"created_at":"2025-01-01T10:00:00Z"`),
		"timestamps render as ISO-8601")

	var decoded []models.ConversationBlock
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, blocks[0].BlockID, decoded[0].BlockID)
	assert.True(t, blocks[0].StartTime.Equal(decoded[0].StartTime))
}
