package notifications

import "github.com/supportlens/conversations-bot/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendReport(report *models.IngestReport) error
}
