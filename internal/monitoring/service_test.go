package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supportlens/conversations-bot/internal/config"
	"github.com/supportlens/conversations-bot/internal/ingest"
	"github.com/supportlens/conversations-bot/internal/models"
	"github.com/supportlens/conversations-bot/internal/pipeline"
	"github.com/supportlens/conversations-bot/internal/sources"
)

// MockStorage implements StorageInterface in memory
type MockStorage struct {
	data map[string][]byte
}

func NewMockStorage() *MockStorage {
	return &MockStorage{data: make(map[string][]byte)}
}

func (m *MockStorage) Store(filename string, data []byte) error {
	m.data[filename] = data
	return nil
}

func (m *MockStorage) Retrieve(filename string) ([]byte, error) {
	if data, exists := m.data[filename]; exists {
		return data, nil
	}
	return nil, fmt.Errorf("file not found: %s", filename)
}

func (m *MockStorage) List(prefix string) ([]string, error) {
	var files []string
	for filename := range m.data {
		if strings.HasPrefix(filename, prefix) {
			files = append(files, filename)
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(filename string) error {
	delete(m.data, filename)
	return nil
}

// MockNotificationService records sent reports
type MockNotificationService struct {
	reports []models.IngestReport
}

func (m *MockNotificationService) SendReport(report *models.IngestReport) error {
	m.reports = append(m.reports, *report)
	return nil
}

// stubProvider serves a fixed batch list
type stubProvider struct {
	name    string
	batches []pipeline.Batch
	err     error
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) IsEnabled() bool { return true }
func (s *stubProvider) FetchBatches(ctx context.Context) ([]pipeline.Batch, error) {
	return s.batches, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		IngestSchedule:   "daily",
		MaxPostsPerBlock: 40,
	}
}

const whatsappFixture = `[
	{"eventType": "ticket", "waId": "15550001111", "topicName": "Service Booking",
	 "eventDescription": "Ticket initialized by contact Dana Fox"},
	{"eventType": "message", "type": "text", "text": "Can I book a service?",
	 "created": "2025-01-05T08:00:00Z", "owner": false, "waId": "15550001111", "id": "aa01"},
	{"eventType": "message", "type": "text", "text": "Of course, when suits you?",
	 "created": "2025-01-05T08:05:00Z", "owner": true, "operatorName": "Maya", "waId": "15550001111", "id": "aa02"}
]`

func TestService_RunIngestion(t *testing.T) {
	store := NewMockStorage()
	notifier := &MockNotificationService{}
	provider := &stubProvider{
		name:    "whatsapp",
		batches: []pipeline.Batch{{Kind: sources.KindWhatsApp, Raw: json.RawMessage(whatsappFixture)}},
	}

	service := NewServiceWithProviders(testConfig(), store, notifier, []ingest.Provider{provider})
	require.NoError(t, service.RunIngestion())

	// Blocks persisted as one JSON blob.
	files, err := store.List("blocks/")
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := store.Retrieve(files[0])
	require.NoError(t, err)
	var blocks []models.ConversationBlock
	require.NoError(t, json.Unmarshal(data, &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, "Dana Fox", blocks[0].RootPost.Author)
	assert.Len(t, blocks[0].Replies, 1)

	// Report sent with matching counters.
	require.Len(t, notifier.reports, 1)
	report := notifier.reports[0]
	assert.Equal(t, 2, report.TotalPosts)
	assert.Equal(t, 1, report.TotalBlocks)
	assert.False(t, report.ZeroBlockWarning)
	assert.Equal(t, 1, report.SourceBlocks["whatsapp"])

	// Metrics exposed as JSON.
	var metrics Metrics
	require.NoError(t, json.Unmarshal([]byte(service.GetMetrics()), &metrics))
	assert.Equal(t, 1, metrics.TotalBlocks)
	assert.Equal(t, 2, metrics.TotalPosts)
	assert.Equal(t, 0, metrics.ErrorCount)
}

func TestService_ReportAndMetricsDoNotShareMaps(t *testing.T) {
	store := NewMockStorage()
	notifier := &MockNotificationService{}
	provider := &stubProvider{
		name:    "whatsapp",
		batches: []pipeline.Batch{{Kind: sources.KindWhatsApp, Raw: json.RawMessage(whatsappFixture)}},
	}

	service := NewServiceWithProviders(testConfig(), store, notifier, []ingest.Provider{provider})
	require.NoError(t, service.RunIngestion())

	require.Len(t, notifier.reports, 1)
	notifier.reports[0].SourceBlocks["whatsapp"] = 99
	notifier.reports[0].SourcePosts["whatsapp"] = 99

	var metrics Metrics
	require.NoError(t, json.Unmarshal([]byte(service.GetMetrics()), &metrics))
	assert.Equal(t, 1, metrics.SourceBlocks["whatsapp"])
	assert.Equal(t, 2, metrics.SourcePosts["whatsapp"])
}

func TestService_ZeroBlockWarning(t *testing.T) {
	// Non-empty raw input where nothing survives filtering: the report
	// must flag it rather than look like a quiet day.
	raw := `[{"eventType": "message", "type": "image", "waId": "15550001111", "id": "bb01"}]`
	store := NewMockStorage()
	notifier := &MockNotificationService{}
	provider := &stubProvider{
		name:    "whatsapp",
		batches: []pipeline.Batch{{Kind: sources.KindWhatsApp, Raw: json.RawMessage(raw)}},
	}

	service := NewServiceWithProviders(testConfig(), store, notifier, []ingest.Provider{provider})
	require.NoError(t, service.RunIngestion())

	require.Len(t, notifier.reports, 1)
	assert.True(t, notifier.reports[0].ZeroBlockWarning)
	assert.Equal(t, 0, notifier.reports[0].TotalBlocks)
}

func TestService_ProviderFailureDoesNotStopRun(t *testing.T) {
	store := NewMockStorage()
	notifier := &MockNotificationService{}
	providers := []ingest.Provider{
		&stubProvider{name: "forum", err: fmt.Errorf("upstream down")},
		&stubProvider{
			name:    "whatsapp",
			batches: []pipeline.Batch{{Kind: sources.KindWhatsApp, Raw: json.RawMessage(whatsappFixture)}},
		},
	}

	service := NewServiceWithProviders(testConfig(), store, notifier, providers)
	require.NoError(t, service.RunIngestion())

	require.Len(t, notifier.reports, 1)
	assert.Equal(t, 1, notifier.reports[0].TotalBlocks)

	var metrics Metrics
	require.NoError(t, json.Unmarshal([]byte(service.GetMetrics()), &metrics))
	assert.Equal(t, 1, metrics.ErrorCount)
}
