package grouping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supportlens/conversations-bot/internal/models"
)

func post(seq int, replyTo *int, created time.Time) models.Post {
	return models.Post{
		StreamID:              "forum:test",
		SequenceNumber:        seq,
		ReplyToSequenceNumber: replyTo,
		CreatedAt:             created,
	}
}

func ref(seq int) *int { return &seq }

func TestGroupByReply(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	posts := []models.Post{
		post(1, nil, base),
		post(2, ref(1), base.Add(1*time.Hour)),
		post(3, ref(2), base.Add(2*time.Hour)),
		post(4, nil, base.Add(3*time.Hour)),
		post(5, ref(99), base.Add(4*time.Hour)), // orphan: parent never fetched
	}

	groups := GroupByReply(posts)
	require.Len(t, groups, 3)

	byRoot := make(map[int][]models.Post)
	for _, g := range groups {
		byRoot[g.RootSequence] = g.Posts
	}
	assert.Len(t, byRoot[1], 3, "transitive replies walk to the thread root")
	assert.Len(t, byRoot[4], 1)
	assert.Len(t, byRoot[5], 1, "orphan becomes its own root")
}

func TestGroupByReply_ChronologicalWithinGroup(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	posts := []models.Post{
		post(2, ref(1), base.Add(2*time.Hour)),
		post(3, ref(1), base.Add(1*time.Hour)),
		post(1, nil, base),
	}

	groups := GroupByReply(posts)
	require.Len(t, groups, 1)

	seqs := []int{}
	for _, p := range groups[0].Posts {
		seqs = append(seqs, p.SequenceNumber)
	}
	assert.Equal(t, []int{1, 3, 2}, seqs)
}

func TestGroupByReply_CycleTerminates(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	posts := []models.Post{
		post(1, ref(2), base),
		post(2, ref(1), base.Add(time.Minute)),
	}

	done := make(chan []Group, 1)
	go func() { done <- GroupByReply(posts) }()

	select {
	case groups := <-done:
		// The cycle is broken by self-rooting; both posts end up grouped,
		// none lost, no panic, no hang.
		total := 0
		for _, g := range groups {
			total += len(g.Posts)
		}
		assert.Equal(t, 2, total)
		assert.Len(t, groups, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("GroupByReply did not terminate on a cyclic reply graph")
	}
}

func TestGroupByChunk(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	var posts []models.Post
	for i := 1; i <= 5; i++ {
		posts = append(posts, post(i, nil, base.Add(time.Duration(i)*time.Minute)))
	}

	groups := GroupByChunk(posts, 2)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0].Posts, 2)
	assert.Len(t, groups[1].Posts, 2)
	assert.Len(t, groups[2].Posts, 1)
	assert.Equal(t, 1, groups[0].RootSequence)
	assert.Equal(t, 3, groups[1].RootSequence)
	assert.Equal(t, 5, groups[2].RootSequence)
}

func TestGroupByChunk_LifetimeKeepsEverything(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	posts := []models.Post{
		post(1, nil, base),
		post(2, nil, base.Add(400*24*time.Hour)), // 400 days later, same group
	}

	groups := GroupByChunk(posts, 0)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Posts, 2)
}

func TestGroupByChunk_Empty(t *testing.T) {
	assert.Nil(t, GroupByChunk(nil, 40))
}

func TestGroupByChunk_SortsBeforeChunking(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	posts := []models.Post{
		post(2, nil, base.Add(time.Hour)),
		post(1, nil, base),
	}

	groups := GroupByChunk(posts, 40)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].RootSequence)
	assert.Equal(t, 1, groups[0].Posts[0].SequenceNumber)
}
