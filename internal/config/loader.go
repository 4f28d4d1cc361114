package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Room is a toggleable light tile
type Room struct {
	Label    string `json:"label" yaml:"label"`
	EntityID string `json:"entity_id" yaml:"entity_id"`
}

// InfoItem is a read-only sensor tile
type InfoItem struct {
	Label    string `json:"label" yaml:"label"`
	EntityID string `json:"entity_id" yaml:"entity_id"`
	Unit     string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// QuickAction is a named, pre-configured service call
type QuickAction struct {
	Label   string                 `json:"label" yaml:"label"`
	Domain  string                 `json:"domain" yaml:"domain"`
	Service string                 `json:"service" yaml:"service"`
	Data    map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
}

// Dashboard represents the dashboard file structure
type Dashboard struct {
	Rooms        []Room        `json:"rooms" yaml:"rooms"`
	Info         []InfoItem    `json:"info" yaml:"info"`
	QuickActions []QuickAction `json:"quickActions" yaml:"quickActions"`
}

// FindAction returns the quick action with exactly this label
func (d *Dashboard) FindAction(label string) (QuickAction, bool) {
	for _, action := range d.QuickActions {
		if action.Label == label {
			return action, true
		}
	}
	return QuickAction{}, false
}

// normalize replaces nil slices so the dashboard always encodes as arrays
func (d *Dashboard) normalize() {
	if d.Rooms == nil {
		d.Rooms = []Room{}
	}
	if d.Info == nil {
		d.Info = []InfoItem{}
	}
	if d.QuickActions == nil {
		d.QuickActions = []QuickAction{}
	}
}

// Empty returns a dashboard with no rooms, info items or actions
func Empty() *Dashboard {
	d := &Dashboard{}
	d.normalize()
	return d
}

// Loader reads the dashboard file. The file is read on every call so
// edits take effect without a restart.
type Loader struct {
	path   string
	logger *zap.Logger
}

// NewLoader creates a new dashboard loader
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{
		path:   path,
		logger: logger,
	}
}

// Path returns the dashboard file path
func (l *Loader) Path() string {
	return l.path
}

// Load reads and parses the dashboard file. JSON is used unless the file
// extension is .yaml or .yml.
func (l *Loader) Load() (*Dashboard, error) {
	l.logger.Debug("Loading dashboard config", zap.String("path", l.path))

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard config: %w", err)
	}

	var dashboard Dashboard
	switch strings.ToLower(filepath.Ext(l.path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &dashboard); err != nil {
			return nil, fmt.Errorf("failed to parse dashboard config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &dashboard); err != nil {
			return nil, fmt.Errorf("failed to parse dashboard config: %w", err)
		}
	}

	dashboard.normalize()
	return &dashboard, nil
}

// Dashboard returns the current dashboard, or an empty one when the file
// is missing or invalid.
func (l *Loader) Dashboard() *Dashboard {
	dashboard, err := l.Load()
	if err != nil {
		l.logger.Warn("Using empty dashboard config", zap.String("path", l.path), zap.Error(err))
		return Empty()
	}
	return dashboard
}
