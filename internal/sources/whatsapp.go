package sources

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/identity"
	"github.com/supportlens/conversations-bot/internal/models"
	"github.com/supportlens/conversations-bot/internal/textnorm"
)

// WhatsAppAdapter builds canonical posts from a WATI event export. Message
// events become posts; ticket events are only mined for the contact's
// display name and the conversation topic. One phone number is one stream,
// and deliberately one conversation: the whole customer history stays
// together regardless of time span.
type WhatsAppAdapter struct{}

type watiEvent struct {
	EventType        string      `json:"eventType"`
	Type             string      `json:"type"`
	Text             string      `json:"text"`
	Created          string      `json:"created"`
	Timestamp        json.Number `json:"timestamp"`
	Owner            *bool       `json:"owner"`
	OperatorName     string      `json:"operatorName"`
	ID               string      `json:"id"`
	WaID             string      `json:"waId"`
	WhatsappNumber   string      `json:"whatsappNumber"`
	SenderNumber     string      `json:"senderNumber"`
	ConversationID   string      `json:"conversationId"`
	TopicName        string      `json:"topicName"`
	EventDescription string      `json:"eventDescription"`
	DetailedEvent    struct {
		AgentName string `json:"agentName"`
		FlowName  string `json:"flowName"`
	} `json:"detailedEventDescription"`
}

var contactFromDescription = regexp.MustCompile(`initialized by contact\s+(.+?)\s*$`)

// NewWhatsAppAdapter creates a WhatsApp/WATI adapter.
func NewWhatsAppAdapter() *WhatsAppAdapter {
	return &WhatsAppAdapter{}
}

func (a *WhatsAppAdapter) Name() string {
	return string(KindWhatsApp)
}

// BuildPosts keeps text message events with non-empty normalized bodies,
// groups them by normalized phone number (conversation id when no phone
// field is present), orders each group by derived timestamp, and numbers the
// filtered set 1..N.
func (a *WhatsAppAdapter) BuildPosts(raw json.RawMessage) ([]models.Post, Stats, error) {
	var rawEvents []json.RawMessage
	if err := json.Unmarshal(raw, &rawEvents); err != nil {
		return nil, Stats{}, fmt.Errorf("whatsapp payload is not an event array: %w", err)
	}

	stats := Stats{Records: len(rawEvents)}

	// Events decode one at a time so a single wrong-typed field costs that
	// event, not the batch.
	events := make([]watiEvent, 0, len(rawEvents))
	for _, rawEvent := range rawEvents {
		var ev watiEvent
		if err := json.Unmarshal(rawEvent, &ev); err != nil {
			logrus.Warnf("Skipping undecodable whatsapp event: %v", err)
			stats.Skipped++
			continue
		}
		events = append(events, ev)
	}

	// First pass: per-group contact name and topic from ticket events.
	contactNames := make(map[string]string)
	topics := make(map[string]string)
	for _, ev := range events {
		if ev.EventType != "ticket" {
			continue
		}
		key := a.groupKey(ev)
		if key == "" {
			continue
		}
		if _, ok := contactNames[key]; !ok {
			if name := a.contactName(ev); name != "" {
				contactNames[key] = name
			}
		}
		if _, ok := topics[key]; !ok {
			if topic := a.topic(ev); topic != "" {
				topics[key] = topic
			}
		}
	}

	type prepared struct {
		ev       watiEvent
		text     string
		author   string
		degraded bool
	}
	groups := make(map[string][]prepared)
	var groupKeys []string

	for _, ev := range events {
		if ev.EventType == "ticket" {
			continue
		}
		if ev.EventType != "message" || ev.Type != "text" {
			stats.Skipped++
			continue
		}
		key := a.groupKey(ev)
		if key == "" {
			logrus.Warnf("Skipping whatsapp message with no phone or conversation id (id=%q)", ev.ID)
			stats.Skipped++
			continue
		}

		contact := contactNames[key]
		if contact == "" {
			contact = "Contact"
		}
		author := contact
		if ev.Owner != nil && *ev.Owner {
			author = ev.OperatorName
			if author == "" {
				author = "Agent"
			}
		}

		text := textnorm.CleanChat(ev.Text, author)
		if text == "" {
			stats.Skipped++
			continue
		}

		if _, ok := groups[key]; !ok {
			groupKeys = append(groupKeys, key)
		}
		groups[key] = append(groups[key], prepared{ev: ev, text: text, author: author})
	}
	sort.Strings(groupKeys)

	var posts []models.Post
	for _, key := range groupKeys {
		members := groups[key]

		topic := topics[key]
		if topic == "" {
			topic = "WhatsApp Conversation"
		}

		built := make([]models.Post, 0, len(members))
		seen := make(map[int64]bool, len(members))
		for _, m := range members {
			idHint := m.ev.ID
			if idHint == "" {
				idHint = key + "|" + m.ev.Created + "|" + m.text
			}
			postID := identity.PostID(idHint)
			if seen[postID] {
				stats.Skipped++
				continue
			}
			seen[postID] = true

			epoch, _ := m.ev.Timestamp.Float64()
			created, updated, degraded := identity.ResolveTimes(m.ev.Created, "", epoch, now)
			if degraded {
				stats.FallbackTimestamps++
			}

			calendarDate, isoYear, isoWeek := identity.WeekFields(created)
			post := models.Post{
				StreamID:      "whatsapp:" + key,
				SourceURL:     "wati:" + key,
				PostID:        postID,
				Author:        m.author,
				CreatedAt:     created,
				UpdatedAt:     updated,
				Text:          m.text,
				StreamTitle:   topic,
				CalendarDate:  calendarDate,
				ISOWeekYear:   isoYear,
				ISOWeekNumber: isoWeek,
				ExternalKey:   key,
			}
			if m.ev.Owner != nil {
				internal := *m.ev.Owner
				post.IsSenderInternal = &internal
			}
			built = append(built, post)
		}

		sort.SliceStable(built, func(i, j int) bool {
			return built[i].CreatedAt.Before(built[j].CreatedAt)
		})
		for i := range built {
			built[i].SequenceNumber = i + 1
		}
		posts = append(posts, built...)
	}

	return posts, stats, nil
}

// groupKey extracts the normalized phone number from whichever field carries
// it, falling back to the conversation id.
func (a *WhatsAppAdapter) groupKey(ev watiEvent) string {
	for _, candidate := range []string{ev.WaID, ev.WhatsappNumber, ev.SenderNumber} {
		if phone := identity.NormalizePhone(candidate); phone != "" {
			return phone
		}
	}
	return strings.TrimSpace(ev.ConversationID)
}

// contactName pulls the customer's display name out of ticket metadata:
// the agent-name field when WATI filled it, otherwise the name trailing
// "initialized by contact" in the event description.
func (a *WhatsAppAdapter) contactName(ev watiEvent) string {
	if name := strings.TrimSpace(ev.DetailedEvent.AgentName); name != "" {
		return name
	}
	if match := contactFromDescription.FindStringSubmatch(ev.EventDescription); match != nil {
		return strings.TrimSpace(match[1])
	}
	return ""
}

func (a *WhatsAppAdapter) topic(ev watiEvent) string {
	if topic := strings.TrimSpace(ev.TopicName); topic != "" {
		return topic
	}
	return strings.TrimSpace(ev.DetailedEvent.FlowName)
}
