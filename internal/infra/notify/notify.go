// Package notify provides log-backed notification and CRM adapters for
// deployments without a mail gateway or CRM account.
package notify

import (
	"context"
	"log/slog"

	"gibiertrace/internal/core"
	"gibiertrace/pkg/domain"
)

// LogSender records notifications in the structured log.
type LogSender struct {
	logger *slog.Logger
}

var _ core.NotificationSender = (*LogSender)(nil)

// NewLogSender returns a sender that writes to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the notification. Email delivery is logged as a channel only.
func (s *LogSender) Send(ctx context.Context, user domain.User, n core.Notification) error {
	channels := []string{"in_app"}
	if n.Email && user.WantsEmail() && user.Email != "" {
		channels = append(channels, "email")
	}
	names := make([]string, 0, len(n.Attachments))
	for _, a := range n.Attachments {
		names = append(names, a.Name)
	}
	s.logger.InfoContext(ctx, "notification",
		"user_id", user.ID,
		"recipient", user.DisplayName(),
		"title", n.Title,
		"channels", channels,
		"attachments", names,
	)
	return nil
}

// LogCRM records CRM mirroring calls in the structured log.
type LogCRM struct {
	logger *slog.Logger
}

var _ core.CrmSync = (*LogCRM)(nil)

// NewLogCRM returns a CRM adapter that writes to logger.
func NewLogCRM(logger *slog.Logger) *LogCRM {
	return &LogCRM{logger: logger}
}

// UpsertContact logs the contact upsert.
func (c *LogCRM) UpsertContact(ctx context.Context, user domain.User) error {
	c.logger.DebugContext(ctx, "crm contact", "user_id", user.ID, "email", user.Email)
	return nil
}

// UpsertCompany logs the company upsert.
func (c *LogCRM) UpsertCompany(ctx context.Context, entity domain.Entity) error {
	c.logger.DebugContext(ctx, "crm company", "entity_id", entity.ID, "type", entity.Type, "name", entity.RaisonSociale)
	return nil
}

// UpdateDeal logs the deal stage change carried by event.
func (c *LogCRM) UpdateDeal(ctx context.Context, event domain.DomainEvent) error {
	c.logger.InfoContext(ctx, "crm deal",
		"fei_numero", event.DossierNumero,
		"event", event.Type,
		"current_role", event.CurrentRole,
	)
	return nil
}
