package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/supportlens/conversations-bot/internal/config"
	"github.com/supportlens/conversations-bot/internal/monitoring"
)

// Service handles scheduling of ingestion runs
type Service struct {
	config        *config.Config
	ingestService *monitoring.Service
	cron          *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, ingestService *monitoring.Service) *Service {
	return &Service{
		config:        cfg,
		ingestService: ingestService,
		cron:          cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled ingestion
func (s *Service) Start() error {
	var cronExpression string

	switch s.config.IngestSchedule {
	case "daily":
		// Run daily at 6 AM UTC, before the analytics jobs pick up the output
		cronExpression = "0 0 6 * * *"
	case "weekly":
		// Run weekly on Monday at 6 AM UTC
		cronExpression = "0 0 6 * * MON"
	default:
		cronExpression = "0 0 6 * * *"
	}

	_, err := s.cron.AddFunc(cronExpression, func() {
		logrus.Info("Starting scheduled ingestion run")
		if err := s.ingestService.RunIngestion(); err != nil {
			logrus.Errorf("Scheduled ingestion run failed: %v", err)
		}
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s schedule", s.config.IngestSchedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
