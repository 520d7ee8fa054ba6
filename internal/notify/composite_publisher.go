package notify

import (
	"context"
	"fmt"
	"strings"

	"greendrake/haggle/internal/models"
)

// CompositePublisher fans a notification out to several publishers.
type CompositePublisher struct {
	publishers []Publisher
}

// NewCompositePublisher returns the concrete type so AddPublisher can be called during wiring.
func NewCompositePublisher(publishers ...Publisher) *CompositePublisher {
	return &CompositePublisher{publishers: publishers}
}

// AddPublisher adds a publisher; nil is ignored.
func (cp *CompositePublisher) AddPublisher(publisher Publisher) {
	if publisher != nil {
		cp.publishers = append(cp.publishers, publisher)
	}
}

// Publish calls every publisher and joins their errors.
func (cp *CompositePublisher) Publish(ctx context.Context, n *models.Notification) error {
	if len(cp.publishers) == 0 {
		return fmt.Errorf("no publishers configured in CompositePublisher")
	}

	var allErrors []string
	for _, publisher := range cp.publishers {
		if err := publisher.Publish(ctx, n); err != nil {
			allErrors = append(allErrors, err.Error())
		}
	}
	if len(allErrors) > 0 {
		return fmt.Errorf("composite publish failed: [ %s ]", strings.Join(allErrors, "; "))
	}
	return nil
}
