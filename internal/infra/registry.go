package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/onelife/shieldd/internal/domain"
)

const registryFileName = "process_registry.json"

// FileRegistry implements domain.ProcessRegistry using a JSON file in
// the shared data directory. Each engine process records its PID so the
// status command can report which roles are alive.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
	appVersion     string
}

// NewFileRegistry creates a file-based process registry.
func NewFileRegistry(dataDir string, pm domain.ProcessManager, appVersion string) *FileRegistry {
	return &FileRegistry{
		path:           filepath.Join(dataDir, registryFileName),
		processManager: pm,
		appVersion:     appVersion,
	}
}

// Register saves the current process PID under its role.
func (r *FileRegistry) Register(role domain.ProcessRole, pid int) error {
	entry, err := r.Entry()
	if err != nil || entry == nil {
		entry = &domain.RegistryEntry{Version: 1, PIDs: make(map[string]int)}
	}
	if entry.PIDs == nil {
		entry.PIDs = make(map[string]int)
	}

	entry.PIDs[string(role)] = pid
	entry.LastHeartbeat = time.Now().Unix()
	if r.appVersion != "" {
		entry.AppVersion = r.appVersion
	}
	return r.atomicWrite(entry)
}

// Heartbeat updates the liveness timestamp.
func (r *FileRegistry) Heartbeat(role domain.ProcessRole) error {
	entry, err := r.Entry()
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("process %s not registered", role)
	}
	entry.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(entry)
}

// Entry returns the full registry state, nil when none exists.
func (r *FileRegistry) Entry() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// IsAlive checks whether the role's registered PID is still running.
func (r *FileRegistry) IsAlive(role domain.ProcessRole) bool {
	entry, err := r.Entry()
	if err != nil || entry == nil {
		return false
	}
	pid, ok := entry.PIDs[string(role)]
	if !ok {
		return false
	}
	return r.processManager.IsRunning(pid)
}

// Clear removes the registry file (for clean restart).
func (r *FileRegistry) Clear() error {
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// atomicWrite writes the registry atomically (temp file + rename).
func (r *FileRegistry) atomicWrite(entry *domain.RegistryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return err
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.ProcessRegistry.
var _ domain.ProcessRegistry = (*FileRegistry)(nil)
