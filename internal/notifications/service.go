package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/config"
	"github.com/supportlens/conversations-bot/internal/models"
	"gopkg.in/gomail.v2"
)

// Service delivers ingest reports via the configured channels.
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendReport sends an ingest report via every configured channel.
func (s *Service) SendReport(report *models.IngestReport) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(report); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent ingest report to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent ingest report via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(report *models.IngestReport) error {
	message := s.buildTeamsMessage(report)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(report *models.IngestReport) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Conversation Ingest Report - %s", strings.Title(report.Period)),
		Text:    fmt.Sprintf("Built %d conversation blocks from %d posts", report.TotalBlocks, report.TotalPosts),
	}

	facts := []TeamsFact{
		{Name: "Total Posts", Value: fmt.Sprintf("%d", report.TotalPosts)},
		{Name: "Total Blocks", Value: fmt.Sprintf("%d", report.TotalBlocks)},
		{Name: "Skipped Records", Value: fmt.Sprintf("%d", report.SkippedRecords)},
		{Name: "Timestamp Fallbacks", Value: fmt.Sprintf("%d", report.FallbackTimestamps)},
		{Name: "Generated", Value: report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")},
	}
	for _, source := range sortedKeys(report.SourceBlocks) {
		facts = append(facts, TeamsFact{
			Name:  fmt.Sprintf("%s Blocks", strings.Title(source)),
			Value: fmt.Sprintf("%d (%d posts)", report.SourceBlocks[source], report.SourcePosts[source]),
		})
	}
	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if report.ZeroBlockWarning {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Warning",
			ActivityText:  "Raw input was non-empty but produced **zero** conversation blocks. Check the source formats.",
			Markdown:      true,
		})
	}

	if len(report.SampleBlocks) > 0 {
		var samples []string
		for _, block := range report.SampleBlocks {
			samples = append(samples, fmt.Sprintf("**%s** - %s (%d replies, %s)",
				block.StreamTitle, block.BlockID, len(block.Replies), block.StartTime.Format("Jan 2")))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Sample Blocks",
			ActivityText:  strings.Join(samples, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(report *models.IngestReport) error {
	subject := fmt.Sprintf("Conversation Ingest Report - %s (%d blocks)",
		strings.Title(report.Period), report.TotalBlocks)

	htmlBody, err := s.buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	textBody := s.buildEmailText(report)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) buildEmailHTML(report *models.IngestReport) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Conversation Ingest Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #2b6777; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .warning { background-color: #fff4ce; border-left: 4px solid #d1a000; padding: 10px; margin: 10px 0; }
        .block { border-left: 4px solid #2b6777; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .block-title { font-weight: bold; margin-bottom: 5px; }
        .block-meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Conversation Ingest Report</h1>
        <p>{{.Period}} report generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Posts:</strong> {{.TotalPosts}}</p>
        <p><strong>Blocks:</strong> {{.TotalBlocks}}</p>
        <p><strong>Skipped Records:</strong> {{.SkippedRecords}}</p>
        <p><strong>Timestamp Fallbacks:</strong> {{.FallbackTimestamps}}</p>
    </div>

    {{if .ZeroBlockWarning}}
    <div class="warning">
        Raw input was non-empty but produced zero conversation blocks. Check the source formats.
    </div>
    {{end}}

    {{if .SampleBlocks}}
    <h2>Sample Blocks</h2>
    {{range .SampleBlocks}}
        <div class="block">
            <div class="block-title">{{.StreamTitle}}</div>
            <div class="block-meta">
                {{.BlockID}} | {{len .Replies}} replies | {{.StartTime.Format "Jan 2, 2006"}} - {{.EndTime.Format "Jan 2, 2006"}}
            </div>
            <p>{{truncate .FlattenedText 200}}</p>
        </div>
    {{end}}
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the Conversations Bot.</small></p>
</body>
</html>
`

	t := template.New("email").Funcs(template.FuncMap{
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
	})

	t, err := t.Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(report *models.IngestReport) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Conversation Ingest Report - %s\n", strings.Title(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Posts: %d\n", report.TotalPosts))
	text.WriteString(fmt.Sprintf("Blocks: %d\n", report.TotalBlocks))
	text.WriteString(fmt.Sprintf("Skipped Records: %d\n", report.SkippedRecords))
	text.WriteString(fmt.Sprintf("Timestamp Fallbacks: %d\n", report.FallbackTimestamps))

	for _, source := range sortedKeys(report.SourceBlocks) {
		text.WriteString(fmt.Sprintf("%s: %d blocks from %d posts\n",
			strings.Title(source), report.SourceBlocks[source], report.SourcePosts[source]))
	}

	if report.ZeroBlockWarning {
		text.WriteString("\nWARNING: raw input was non-empty but produced zero blocks.\n")
	}

	if len(report.SampleBlocks) > 0 {
		text.WriteString("\nSAMPLE BLOCKS\n")
		text.WriteString("=============\n")
		for i, block := range report.SampleBlocks {
			text.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, block.StreamTitle))
			text.WriteString(fmt.Sprintf("   Block: %s | Replies: %d | %s - %s\n",
				block.BlockID, len(block.Replies),
				block.StartTime.Format("Jan 2, 2006"), block.EndTime.Format("Jan 2, 2006")))
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the Conversations Bot.\n")

	return text.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
