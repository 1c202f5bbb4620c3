package models

import "time"

// Post is the normalized, source-agnostic representation of one message
// produced by a source adapter ("forum", "facebook", "whatsapp").
type Post struct {
	StreamID       string    `json:"stream_id"`
	SourceURL      string    `json:"source_url"`
	PostID         int64     `json:"post_id"`
	SequenceNumber int       `json:"sequence_number"`
	Author         string    `json:"author"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Text           string    `json:"text"`
	// ReplyToSequenceNumber points at another post's SequenceNumber within
	// the same stream. Nil when the source has no reply graph.
	ReplyToSequenceNumber *int   `json:"reply_to_sequence_number,omitempty"`
	StreamTitle           string `json:"stream_title"`
	CalendarDate          string `json:"calendar_date"`
	ISOWeekYear           int    `json:"iso_week_year"`
	ISOWeekNumber         int    `json:"iso_week_number"`
	// IsSenderInternal is true for messages sent by the business/agent side,
	// false for customer messages, nil when the source carries no role signal.
	IsSenderInternal *bool `json:"is_sender_internal,omitempty"`
	// ExternalKey is a cross-block customer key (a phone number for
	// WhatsApp). Empty for sources without one.
	ExternalKey string `json:"external_key,omitempty"`
}

// ConversationBlock is a root post plus its replies, or one fixed-size chunk
// of a non-threaded stream. Blocks are recomputed wholesale every run.
type ConversationBlock struct {
	BlockID       string    `json:"block_id"`
	StreamID      string    `json:"stream_id"`
	SourceURL     string    `json:"source_url"`
	StreamTitle   string    `json:"stream_title"`
	RootPost      Post      `json:"root_post"`
	Replies       []Post    `json:"replies"`
	FlattenedText string    `json:"flattened_text"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ExternalKey   string    `json:"external_key,omitempty"`
}

// IngestReport summarizes one pipeline run for notifications and operators.
type IngestReport struct {
	GeneratedAt        time.Time      `json:"generated_at"`
	Period             string         `json:"period"` // "daily" or "weekly"
	TotalPosts         int            `json:"total_posts"`
	TotalBlocks        int            `json:"total_blocks"`
	SourcePosts        map[string]int `json:"source_posts"`
	SourceBlocks       map[string]int `json:"source_blocks"`
	SkippedRecords     int            `json:"skipped_records"`
	FallbackTimestamps int            `json:"fallback_timestamps"`
	// ZeroBlockWarning is set when a non-empty raw input produced no blocks,
	// which usually means an upstream format change.
	ZeroBlockWarning bool                `json:"zero_block_warning"`
	SampleBlocks     []ConversationBlock `json:"sample_blocks,omitempty"`
}
