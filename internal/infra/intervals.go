package infra

import (
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

// StoreIntervalScheduler records interval-monitor registrations in the
// shared state store so the monitor process, which runs at uncoordinated
// times, can observe which windows it is responsible for.
type StoreIntervalScheduler struct {
	store  domain.StateStore
	logger *zap.Logger
}

// NewStoreIntervalScheduler creates the scheduler.
func NewStoreIntervalScheduler(store domain.StateStore, logger *zap.Logger) *StoreIntervalScheduler {
	return &StoreIntervalScheduler{store: store, logger: logger}
}

// StartMonitoring registers a named window, replacing any existing
// registration under the same name.
func (s *StoreIntervalScheduler) StartMonitoring(name string, window domain.MonitorWindow) error {
	regs := s.store.MonitorRegistrations()
	regs[name] = window
	if err := s.store.SaveMonitorRegistrations(regs); err != nil {
		return err
	}
	s.logger.Debug("monitoring started", zap.String("name", name))
	return nil
}

// StopMonitoring removes a named registration. Unknown names are a no-op.
func (s *StoreIntervalScheduler) StopMonitoring(name string) error {
	regs := s.store.MonitorRegistrations()
	if _, ok := regs[name]; !ok {
		return nil
	}
	delete(regs, name)
	if err := s.store.SaveMonitorRegistrations(regs); err != nil {
		return err
	}
	s.logger.Debug("monitoring stopped", zap.String("name", name))
	return nil
}

// Ensure StoreIntervalScheduler implements domain.IntervalScheduler.
var _ domain.IntervalScheduler = (*StoreIntervalScheduler)(nil)
