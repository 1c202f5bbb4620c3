package sources

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/identity"
	"github.com/supportlens/conversations-bot/internal/models"
	"github.com/supportlens/conversations-bot/internal/textnorm"
)

// ForumAdapter builds canonical posts from one forum thread's JSON: thread
// metadata plus an ordered post list with native post numbers, HTML bodies,
// and an explicit reply graph.
type ForumAdapter struct{}

type forumThread struct {
	Topic string            `json:"topic"`
	URL   string            `json:"url"`
	Posts []json.RawMessage `json:"posts"`
}

type forumPost struct {
	PostID            *int64 `json:"post_id"`
	PostNumber        int    `json:"post_number"`
	Username          string `json:"username"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
	Cooked            string `json:"cooked"`
	ReplyToPostNumber *int   `json:"reply_to_post_number"`
}

// NewForumAdapter creates a forum adapter.
func NewForumAdapter() *ForumAdapter {
	return &ForumAdapter{}
}

func (a *ForumAdapter) Name() string {
	return string(KindForum)
}

// BuildPosts converts a thread payload into canonical posts. The native
// post_number becomes the sequence number so reply_to_post_number maps
// straight onto the reply graph. Posts whose post_id was already seen in
// this batch are dropped, which keeps re-imports of overlapping fetches
// idempotent.
func (a *ForumAdapter) BuildPosts(raw json.RawMessage) ([]models.Post, Stats, error) {
	var thread forumThread
	if err := json.Unmarshal(raw, &thread); err != nil {
		return nil, Stats{}, fmt.Errorf("forum payload is not a thread object: %w", err)
	}
	if thread.Posts == nil {
		return nil, Stats{}, fmt.Errorf("forum payload has no posts array")
	}

	stats := Stats{Records: len(thread.Posts)}
	seen := make(map[int64]bool, len(thread.Posts))
	var posts []models.Post

	// Posts decode one at a time so a single record with a wrong-typed field
	// costs that record, not the batch.
	for _, rawPost := range thread.Posts {
		var rec forumPost
		if err := json.Unmarshal(rawPost, &rec); err != nil {
			logrus.Warnf("Skipping undecodable forum post: %v", err)
			stats.Skipped++
			continue
		}
		if rec.PostNumber <= 0 || rec.Username == "" {
			logrus.Warnf("Skipping malformed forum post (post_number=%d)", rec.PostNumber)
			stats.Skipped++
			continue
		}

		idHint := strconv.Itoa(rec.PostNumber)
		if rec.PostID != nil {
			idHint = strconv.FormatInt(*rec.PostID, 10)
		}
		postID := identity.PostID(idHint)
		if seen[postID] {
			logrus.Debugf("Dropping duplicate forum post_id %d", postID)
			stats.Skipped++
			continue
		}
		seen[postID] = true

		created, updated, degraded := identity.ResolveTimes(rec.CreatedAt, rec.UpdatedAt, 0, now)
		if degraded {
			stats.FallbackTimestamps++
		}
		calendarDate, isoYear, isoWeek := identity.WeekFields(created)

		post := models.Post{
			StreamID:       forumStreamID(thread.URL),
			SourceURL:      thread.URL,
			PostID:         postID,
			SequenceNumber: rec.PostNumber,
			Author:         rec.Username,
			CreatedAt:      created,
			UpdatedAt:      updated,
			Text:           textnorm.CleanHTML(rec.Cooked),
			StreamTitle:    thread.Topic,
			CalendarDate:   calendarDate,
			ISOWeekYear:    isoYear,
			ISOWeekNumber:  isoWeek,
		}
		if rec.ReplyToPostNumber != nil {
			replyTo := *rec.ReplyToPostNumber
			post.ReplyToSequenceNumber = &replyTo
		}
		posts = append(posts, post)
	}

	return posts, stats, nil
}

// forumStreamID keys a thread stream by its URL so the same thread maps to
// the same stream on every import.
func forumStreamID(url string) string {
	return "forum:" + url
}
