package sources

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/identity"
	"github.com/supportlens/conversations-bot/internal/models"
	"github.com/supportlens/conversations-bot/internal/textnorm"
)

// FacebookAdapter builds canonical posts from a flat list of group-scrape
// records. The scrape carries no reply graph and no per-message timestamps,
// only the capture time, so posts are streamed by (group, url) and ordered
// by scraped_at with the raw id as tie-break.
type FacebookAdapter struct{}

type facebookRecord struct {
	Group     string `json:"group"`
	URL       string `json:"url"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	ScrapedAt string `json:"scraped_at"`
	PostID    string `json:"post_id"`
}

// NewFacebookAdapter creates a Facebook adapter.
func NewFacebookAdapter() *FacebookAdapter {
	return &FacebookAdapter{}
}

func (a *FacebookAdapter) Name() string {
	return string(KindFacebook)
}

// BuildPosts groups scrape records into one stream per (group, url), drops
// records whose text is empty after chrome stripping, and numbers the
// survivors 1..N in scraped_at order. Sequence numbers reflect only posts
// that made it through, so downstream chunking never sees gaps.
func (a *FacebookAdapter) BuildPosts(raw json.RawMessage) ([]models.Post, Stats, error) {
	var rawRecords []json.RawMessage
	if err := json.Unmarshal(raw, &rawRecords); err != nil {
		return nil, Stats{}, fmt.Errorf("facebook payload is not a record array: %w", err)
	}

	stats := Stats{Records: len(rawRecords)}

	type cleaned struct {
		rec  facebookRecord
		text string
	}
	streams := make(map[string][]cleaned)
	var streamKeys []string

	// Records decode one at a time so a single wrong-typed field costs that
	// record, not the batch.
	for _, rawRecord := range rawRecords {
		var rec facebookRecord
		if err := json.Unmarshal(rawRecord, &rec); err != nil {
			logrus.Warnf("Skipping undecodable facebook record: %v", err)
			stats.Skipped++
			continue
		}
		if rec.Group == "" || rec.Author == "" {
			logrus.Warnf("Skipping malformed facebook record (post_id=%q)", rec.PostID)
			stats.Skipped++
			continue
		}
		text := textnorm.CleanChat(rec.Text, rec.Author)
		if text == "" {
			stats.Skipped++
			continue
		}
		key := facebookStreamID(rec.Group, rec.URL)
		if _, ok := streams[key]; !ok {
			streamKeys = append(streamKeys, key)
		}
		streams[key] = append(streams[key], cleaned{rec: rec, text: text})
	}
	sort.Strings(streamKeys)

	var posts []models.Post
	for _, key := range streamKeys {
		members := streams[key]
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].rec.ScrapedAt != members[j].rec.ScrapedAt {
				return members[i].rec.ScrapedAt < members[j].rec.ScrapedAt
			}
			return members[i].rec.PostID < members[j].rec.PostID
		})

		seen := make(map[int64]bool, len(members))
		seq := 0
		for _, m := range members {
			postID := identity.PostID(m.rec.PostID)
			if seen[postID] {
				stats.Skipped++
				continue
			}
			seen[postID] = true
			seq++

			created, updated, degraded := identity.ResolveTimes(m.rec.ScrapedAt, "", 0, now)
			if degraded {
				stats.FallbackTimestamps++
			}
			calendarDate, isoYear, isoWeek := identity.WeekFields(created)

			posts = append(posts, models.Post{
				StreamID:       key,
				SourceURL:      m.rec.URL,
				PostID:         postID,
				SequenceNumber: seq,
				Author:         m.rec.Author,
				CreatedAt:      created,
				UpdatedAt:      updated,
				Text:           m.text,
				StreamTitle:    m.rec.Group,
				CalendarDate:   calendarDate,
				ISOWeekYear:    isoYear,
				ISOWeekNumber:  isoWeek,
			})
		}
	}

	return posts, stats, nil
}

// facebookStreamID keys a stream by group and url together, since one group
// can be scraped through more than one landing page.
func facebookStreamID(group, url string) string {
	return "facebook:" + group + ":" + url
}
