package domainxml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PrivateData is the persistable placeholder for a domain's runtime state.
// Runtime handles are never serialized; only enough intent survives a driver
// restart to rebuild endpoints on the next start.
type PrivateData struct {
	// VMID is the identifier of the last machine instance.
	VMID uint64 `json:"vmid,omitempty"`

	// DisplayPorts are the remote-display ports that were active.
	DisplayPorts []uint32 `json:"display_ports,omitempty"`
}

// Option describes how domain configuration and runtime private data are
// encoded. Immutable after creation.
type Option struct {
	stateDir string
}

// NewOption creates an Option persisting private data under stateDir.
func NewOption(stateDir string) *Option {
	return &Option{stateDir: stateDir}
}

func (o *Option) path(name string) string {
	return filepath.Join(o.stateDir, name+".json")
}

// LoadPrivateData reads the persisted placeholder for a domain. A missing
// file yields an empty placeholder, not an error.
func (o *Option) LoadPrivateData(name string) (*PrivateData, error) {
	data, err := os.ReadFile(o.path(name))
	if os.IsNotExist(err) {
		return &PrivateData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read private data: %w", err)
	}

	var pd PrivateData
	if err := json.Unmarshal(data, &pd); err != nil {
		return nil, fmt.Errorf("parse private data: %w", err)
	}
	return &pd, nil
}

// SavePrivateData writes the placeholder for a domain.
func (o *Option) SavePrivateData(name string, pd *PrivateData) error {
	if err := os.MkdirAll(o.stateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal private data: %w", err)
	}

	// Write atomically
	path := o.path(name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write private data: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// RemovePrivateData deletes the placeholder. Missing files are not errors.
func (o *Option) RemovePrivateData(name string) error {
	if err := os.Remove(o.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove private data: %w", err)
	}
	return nil
}
