// Package monitoring orchestrates pipeline runs: it gathers raw batches
// from every enabled provider, feeds them through the pure pipeline,
// persists the resulting block set, and reports what happened.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/config"
	"github.com/supportlens/conversations-bot/internal/ingest"
	"github.com/supportlens/conversations-bot/internal/models"
	"github.com/supportlens/conversations-bot/internal/notifications"
	"github.com/supportlens/conversations-bot/internal/pipeline"
	"github.com/supportlens/conversations-bot/internal/storage"
)

// Service handles scheduled and manual ingestion runs.
type Service struct {
	config              *config.Config
	storage             storage.StorageInterface
	notificationService notifications.NotificationInterface
	providers           []ingest.Provider
	metrics             *Metrics
	mu                  sync.RWMutex
}

// Metrics holds counters from the most recent run.
type Metrics struct {
	TotalPosts         int            `json:"total_posts"`
	TotalBlocks        int            `json:"total_blocks"`
	SkippedRecords     int            `json:"skipped_records"`
	FallbackTimestamps int            `json:"fallback_timestamps"`
	LastRun            time.Time      `json:"last_run"`
	LastRunDuration    string         `json:"last_run_duration"`
	SourcePosts        map[string]int `json:"source_posts"`
	SourceBlocks       map[string]int `json:"source_blocks"`
	ErrorCount         int            `json:"error_count"`
}

// NewService creates an ingestion service with the default providers.
func NewService(cfg *config.Config, store storage.StorageInterface, notificationService notifications.NotificationInterface) *Service {
	service := &Service{
		config:              cfg,
		storage:             store,
		notificationService: notificationService,
		metrics: &Metrics{
			SourcePosts:  make(map[string]int),
			SourceBlocks: make(map[string]int),
		},
	}

	service.providers = []ingest.Provider{
		ingest.NewForumProvider(cfg.ForumBaseURL, cfg.ForumTopics),
		ingest.NewWATIProvider(cfg.WATIBaseURL, cfg.WATIToken),
		ingest.NewFacebookProvider(store, cfg.FacebookScrapePrefix),
	}

	return service
}

// NewServiceWithProviders creates a service with an explicit provider list.
// Used by tests and one-off tooling.
func NewServiceWithProviders(cfg *config.Config, store storage.StorageInterface, notificationService notifications.NotificationInterface, providers []ingest.Provider) *Service {
	service := NewService(cfg, store, notificationService)
	service.providers = providers
	return service
}

// RunIngestion performs one full ingestion run.
func (s *Service) RunIngestion() error {
	start := time.Now()
	logrus.Info("Starting ingestion run")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	batches, errorCount := s.collectBatches(ctx)
	logrus.Infof("Collected %d raw batches from %d providers", len(batches), len(s.providers))

	blocks, stats, err := pipeline.BuildBlocks(batches, pipeline.Options{
		MaxPostsPerBlock: s.config.MaxPostsPerBlock,
	})
	if err != nil {
		logrus.Errorf("Pipeline run failed: %v", err)
		return err
	}

	logrus.Infof("Built %d conversation blocks from %d posts (%d records skipped, %d timestamp fallbacks)",
		stats.Blocks, stats.Posts, stats.Skipped, stats.FallbackTimestamps)

	if err := s.storeBlocks(blocks); err != nil {
		logrus.Errorf("Failed to store blocks: %v", err)
		return err
	}

	s.updateMetrics(stats, time.Since(start), errorCount)

	report := s.buildReport(blocks, stats)
	if report.ZeroBlockWarning {
		logrus.Warn("Non-empty raw input produced zero blocks - possible upstream format change")
	}
	if err := s.notificationService.SendReport(report); err != nil {
		logrus.Errorf("Failed to send ingest report: %v", err)
		return err
	}

	logrus.Infof("Ingestion run completed in %v", time.Since(start))
	return nil
}

// collectBatches fans out to all providers concurrently and merges their
// batches. Provider failures are counted, logged, and do not stop the run.
func (s *Service) collectBatches(ctx context.Context) ([]pipeline.Batch, int) {
	var wg sync.WaitGroup
	batchesChan := make(chan []pipeline.Batch, len(s.providers))
	errorsChan := make(chan error, len(s.providers))

	for _, provider := range s.providers {
		if !provider.IsEnabled() {
			logrus.Debugf("Provider %s disabled, skipping", provider.Name())
			continue
		}
		wg.Add(1)
		go func(p ingest.Provider) {
			defer wg.Done()

			logrus.Infof("Fetching raw batches from %s", p.Name())
			batches, err := p.FetchBatches(ctx)
			if err != nil {
				logrus.Errorf("Error fetching from %s: %v", p.Name(), err)
				errorsChan <- err
				return
			}
			logrus.Infof("Got %d batches from %s", len(batches), p.Name())
			batchesChan <- batches
		}(provider)
	}

	go func() {
		wg.Wait()
		close(batchesChan)
		close(errorsChan)
	}()

	var all []pipeline.Batch
	for batches := range batchesChan {
		all = append(all, batches...)
	}

	errorCount := 0
	for range errorsChan {
		errorCount++
	}
	return all, errorCount
}

func (s *Service) storeBlocks(blocks []models.ConversationBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	data, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("failed to marshal blocks: %w", err)
	}

	filename := fmt.Sprintf("blocks/blocks-%s.json", time.Now().Format("2006-01-02-15-04-05"))
	return s.storage.Store(filename, data)
}

func (s *Service) buildReport(blocks []models.ConversationBlock, stats pipeline.Stats) *models.IngestReport {
	report := &models.IngestReport{
		GeneratedAt:        time.Now().UTC(),
		Period:             s.config.IngestSchedule,
		TotalPosts:         stats.Posts,
		TotalBlocks:        stats.Blocks,
		SourcePosts:        copyCounts(stats.SourcePosts),
		SourceBlocks:       copyCounts(stats.SourceBlocks),
		SkippedRecords:     stats.Skipped,
		FallbackTimestamps: stats.FallbackTimestamps,
		ZeroBlockWarning:   stats.Records > 0 && stats.Blocks == 0,
	}

	limit := 5
	if len(blocks) < limit {
		limit = len(blocks)
	}
	report.SampleBlocks = blocks[:limit]

	return report
}

func (s *Service) updateMetrics(stats pipeline.Stats, duration time.Duration, errorCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalPosts = stats.Posts
	s.metrics.TotalBlocks = stats.Blocks
	s.metrics.SkippedRecords = stats.Skipped
	s.metrics.FallbackTimestamps = stats.FallbackTimestamps
	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	s.metrics.ErrorCount = errorCount
	s.metrics.SourcePosts = copyCounts(stats.SourcePosts)
	s.metrics.SourceBlocks = copyCounts(stats.SourceBlocks)
}

// copyCounts clones a counter map so the report and the metrics struct never
// alias the same instance.
func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetMetrics returns current metrics as JSON.
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
