// Package notify pushes freshly stored notifications to realtime consumers.
// The stored Notification document is authoritative; publishing is best effort.
package notify

import (
	"context"
	"log"

	"greendrake/haggle/internal/models"
)

// Publisher delivers a stored notification to whoever is listening for its recipient.
type Publisher interface {
	Publish(ctx context.Context, notification *models.Notification) error
}

// LoggingPublisher only logs. Used when nothing else is configured.
type LoggingPublisher struct{}

func NewLoggingPublisher() Publisher {
	return &LoggingPublisher{}
}

func (p *LoggingPublisher) Publish(ctx context.Context, n *models.Notification) error {
	log.Printf("Notification %s (%s) for %s from %s: %v", n.ID.String(), n.Type, n.RecipientID, n.ActorID, n.Data)
	return nil
}
