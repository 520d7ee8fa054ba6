package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"greendrake/haggle/internal/models"
)

// FilePublisher appends one JSON line per notification to a file (LOG_NOTIFICATIONS).
type FilePublisher struct {
	filePath string
	mu       sync.Mutex
}

// NewFilePublisher makes sure the directory for the log file exists.
func NewFilePublisher(filePath string) (*FilePublisher, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("notification log file path cannot be empty")
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for notification log file '%s': %w", dir, err)
	}
	return &FilePublisher{filePath: filePath}, nil
}

type fileEntry struct {
	LoggedAt     string               `json:"logged_at"`
	Notification *models.Notification `json:"notification"`
}

func (p *FilePublisher) Publish(ctx context.Context, n *models.Notification) error {
	line, err := json.Marshal(fileEntry{LoggedAt: time.Now().UTC().Format(time.RFC3339Nano), Notification: n})
	if err != nil {
		return fmt.Errorf("failed to marshal notification for file log: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open notification log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write notification to log file: %w", err)
	}
	return nil
}
