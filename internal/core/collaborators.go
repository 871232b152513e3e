package core

import (
	"context"

	"gibiertrace/pkg/domain"
)

// Attachment is a file sent alongside a notification.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Notification is a user-facing message. Email requests the email channel in
// addition to in-app delivery.
type Notification struct {
	Title       string
	Body        string
	Email       bool
	Attachments []Attachment
}

// NotificationSender delivers notifications to users.
type NotificationSender interface {
	Send(ctx context.Context, user domain.User, n Notification) error
}

// WebhookSender forwards domain events to a user's registered webhook.
type WebhookSender interface {
	Send(ctx context.Context, userID string, eventName string, payload domain.DomainEvent) error
}

// CrmSync mirrors parties and dossier progress into the CRM.
type CrmSync interface {
	UpsertContact(ctx context.Context, user domain.User) error
	UpsertCompany(ctx context.Context, entity domain.Entity) error
	UpdateDeal(ctx context.Context, event domain.DomainEvent) error
}

// Directory resolves users and entities for party resolution.
type Directory interface {
	FindUser(ctx context.Context, id string) (domain.User, bool, error)
	FindEntity(ctx context.Context, id string) (domain.Entity, bool, error)
}

// DedupStore remembers which event keys were already dispatched.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string) error
}

// EventSink accepts committed domain events for side-effect dispatch.
type EventSink interface {
	Publish(ctx context.Context, events []domain.DomainEvent)
}

// StoreDirectory reads the user and entity directory from the persistent store.
type StoreDirectory struct {
	Store domain.PersistentStore
}

// FindUser implements Directory.
func (d StoreDirectory) FindUser(ctx context.Context, id string) (domain.User, bool, error) {
	var (
		user  domain.User
		found bool
	)
	err := d.Store.View(ctx, func(v domain.TransactionView) error {
		user, found = v.FindUser(id)
		return nil
	})
	return user, found, err
}

// FindEntity implements Directory.
func (d StoreDirectory) FindEntity(ctx context.Context, id string) (domain.Entity, bool, error) {
	var (
		entity domain.Entity
		found  bool
	)
	err := d.Store.View(ctx, func(v domain.TransactionView) error {
		entity, found = v.FindEntity(id)
		return nil
	})
	return entity, found, err
}
