package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

const notificationQueueName = "notifications.json"

type pendingNotification struct {
	FireAt  time.Time                  `json:"fireAt"`
	Content domain.NotificationContent `json:"content"`
}

// FileNotificationScheduler queues notices in a JSON file the platform's
// notification layer consumes. Failures here affect UX, never policy;
// callers log and move on.
type FileNotificationScheduler struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileNotificationScheduler creates a scheduler queueing into dir.
func NewFileNotificationScheduler(dir string, logger *zap.Logger) *FileNotificationScheduler {
	return &FileNotificationScheduler{
		path:   filepath.Join(dir, notificationQueueName),
		logger: logger,
	}
}

// Schedule queues a notice to fire at the given time, replacing any
// pending notice with the same id.
func (n *FileNotificationScheduler) Schedule(id string, fireAt time.Time, content domain.NotificationContent) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	queue := n.load()
	queue[id] = pendingNotification{FireAt: fireAt, Content: content}
	return n.save(queue)
}

// Cancel removes pending notices by id. Unknown ids are a no-op.
func (n *FileNotificationScheduler) Cancel(ids ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	queue := n.load()
	changed := false
	for _, id := range ids {
		if _, ok := queue[id]; ok {
			delete(queue, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return n.save(queue)
}

// DeliverNow fires a notice immediately.
func (n *FileNotificationScheduler) DeliverNow(id string, content domain.NotificationContent) error {
	n.logger.Info("notification delivered",
		zap.String("id", id),
		zap.String("title", content.Title))
	return n.Schedule(id, time.Now(), content)
}

// load reads the queue; a missing or undecodable queue is empty.
func (n *FileNotificationScheduler) load() map[string]pendingNotification {
	queue := make(map[string]pendingNotification)
	data, err := os.ReadFile(n.path)
	if err != nil {
		return queue
	}
	if err := json.Unmarshal(data, &queue); err != nil {
		return make(map[string]pendingNotification)
	}
	return queue
}

func (n *FileNotificationScheduler) save(queue map[string]pendingNotification) error {
	data, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(n.path), 0700); err != nil {
		return err
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", n.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, n.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileNotificationScheduler implements domain.NotificationScheduler.
var _ domain.NotificationScheduler = (*FileNotificationScheduler)(nil)

// MemoryNotificationScheduler records calls for tests.
type MemoryNotificationScheduler struct {
	mu        sync.Mutex
	Scheduled map[string]pendingNotification
	Cancelled []string
	Delivered []string
}

// NewMemoryNotificationScheduler creates an empty recorder.
func NewMemoryNotificationScheduler() *MemoryNotificationScheduler {
	return &MemoryNotificationScheduler{Scheduled: make(map[string]pendingNotification)}
}

// Schedule records a scheduled notice.
func (n *MemoryNotificationScheduler) Schedule(id string, fireAt time.Time, content domain.NotificationContent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Scheduled[id] = pendingNotification{FireAt: fireAt, Content: content}
	return nil
}

// Cancel records cancellations and drops pending notices.
func (n *MemoryNotificationScheduler) Cancel(ids ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		delete(n.Scheduled, id)
		n.Cancelled = append(n.Cancelled, id)
	}
	return nil
}

// DeliverNow records an immediate delivery.
func (n *MemoryNotificationScheduler) DeliverNow(id string, content domain.NotificationContent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Delivered = append(n.Delivered, id)
	return nil
}

// Pending reports whether a notice with the id is scheduled.
func (n *MemoryNotificationScheduler) Pending(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.Scheduled[id]
	return ok
}

// Ensure MemoryNotificationScheduler implements domain.NotificationScheduler.
var _ domain.NotificationScheduler = (*MemoryNotificationScheduler)(nil)
