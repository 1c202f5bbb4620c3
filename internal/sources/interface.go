package sources

import (
	"encoding/json"
	"time"

	"github.com/supportlens/conversations-bot/internal/models"
)

// Kind identifies a raw-record source and selects its adapter.
type Kind string

const (
	KindForum    Kind = "forum"
	KindFacebook Kind = "facebook"
	KindWhatsApp Kind = "whatsapp"
)

// Adapter maps one source's raw JSON payload into canonical posts. Adapters
// are pure: no network, no shared state, and a single malformed record is
// skipped (and counted) rather than failing the batch. Only a structurally
// invalid top-level payload returns an error.
type Adapter interface {
	Name() string
	BuildPosts(raw json.RawMessage) ([]models.Post, Stats, error)
}

// Stats counts what an adapter did with a batch so data-quality regressions
// stay visible.
type Stats struct {
	Records            int `json:"records"`
	Skipped            int `json:"skipped"`
	FallbackTimestamps int `json:"fallback_timestamps"`
}

// Add merges per-batch stats into an accumulator.
func (s *Stats) Add(other Stats) {
	s.Records += other.Records
	s.Skipped += other.Skipped
	s.FallbackTimestamps += other.FallbackTimestamps
}

// ForKind returns the adapter for a declared source kind.
func ForKind(kind Kind) (Adapter, bool) {
	switch kind {
	case KindForum:
		return NewForumAdapter(), true
	case KindFacebook:
		return NewFacebookAdapter(), true
	case KindWhatsApp:
		return NewWhatsAppAdapter(), true
	}
	return nil, false
}

// now is swappable in tests so degraded-timestamp fallbacks stay
// deterministic.
var now = time.Now
