package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

const shieldProjectionName = "shield_state.json"

// FileSink projects the desired shield state to a JSON file the
// platform's blocking layer consumes. The engine only ever writes it;
// the file is never read back as a truth source. The two slots are
// overwritten independently, matching the external sink contract.
type FileSink struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	state domain.ShieldState
}

// NewFileSink creates a sink projecting into dir.
func NewFileSink(dir string, logger *zap.Logger) *FileSink {
	return &FileSink{
		path:   filepath.Join(dir, shieldProjectionName),
		logger: logger,
	}
}

// SetBlockedApps overwrites the app-level slot.
func (s *FileSink) SetBlockedApps(apps []domain.AppToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Apps = apps
	return s.project()
}

// SetCategoryMode overwrites the category-level slot.
func (s *FileSink) SetCategoryMode(policy domain.CategoryPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Categories = policy
	return s.project()
}

// project writes the projection atomically (temp + rename), same
// pattern as the state store.
func (s *FileSink) project() error {
	data, err := json.Marshal(s.state)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileSink implements domain.ShieldSink.
var _ domain.ShieldSink = (*FileSink)(nil)

// MemorySink records slot writes in memory. Used by tests and the
// dry-run reconcile command.
type MemorySink struct {
	mu sync.Mutex

	Apps       []domain.AppToken
	Categories domain.CategoryPolicy

	// AppWrites and CategoryWrites count slot overwrites, including
	// no-change overwrites (the reconciler pushes unconditionally).
	AppWrites      int
	CategoryWrites int
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{Categories: domain.Unrestricted()}
}

// SetBlockedApps overwrites the app-level slot.
func (s *MemorySink) SetBlockedApps(apps []domain.AppToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Apps = apps
	s.AppWrites++
	return nil
}

// SetCategoryMode overwrites the category-level slot.
func (s *MemorySink) SetCategoryMode(policy domain.CategoryPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Categories = policy
	s.CategoryWrites++
	return nil
}

// State returns a snapshot of both slots.
func (s *MemorySink) State() domain.ShieldState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ShieldState{Apps: s.Apps, Categories: s.Categories}
}

// Ensure MemorySink implements domain.ShieldSink.
var _ domain.ShieldSink = (*MemorySink)(nil)
