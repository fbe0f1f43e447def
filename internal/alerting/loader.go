package alerting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// MonitorsConfig is the layout of a monitors file.
type MonitorsConfig struct {
	Monitors []*models.Monitor `yaml:"monitors"`
}

// Limits bounds monitor definitions. Zero values fall back to the model defaults and
// leave throttles unbounded.
type Limits struct {
	MaxInputs   int
	MaxTriggers int
	MinThrottle time.Duration
	MaxThrottle time.Duration
}

// Validate checks a normalized monitor against the limits.
func (l Limits) Validate(m *models.Monitor) error {
	if err := m.Validate(l.MaxInputs, l.MaxTriggers); err != nil {
		return err
	}
	return m.ValidateThrottles(l.MinThrottle, l.MaxThrottle)
}

// LoadMonitorsFromFile loads monitors from a YAML file.
func LoadMonitorsFromFile(path string, limits Limits) ([]*models.Monitor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open monitors file: %w", err)
	}
	defer f.Close()

	return LoadMonitors(f, limits)
}

// LoadMonitors loads monitors from a reader.
func LoadMonitors(r io.Reader, limits Limits) ([]*models.Monitor, error) {
	var config MonitorsConfig
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse monitors YAML: %w", err)
	}
	return prepareMonitors(config.Monitors, limits)
}

// LoadMonitorsFromBytes loads monitors from YAML bytes.
func LoadMonitorsFromBytes(data []byte, limits Limits) ([]*models.Monitor, error) {
	var config MonitorsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse monitors YAML: %w", err)
	}
	return prepareMonitors(config.Monitors, limits)
}

// prepareMonitors normalizes and validates file monitors. File monitors need an id, and
// triggers or actions without one get an id derived from their names so reloads keep
// alert identities stable.
func prepareMonitors(monitors []*models.Monitor, limits Limits) ([]*models.Monitor, error) {
	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(monitors))
	for i, m := range monitors {
		if m == nil {
			return nil, fmt.Errorf("invalid monitor at index %d: empty definition", i)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("invalid monitor at index %d: id is required in monitors files", i)
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("invalid monitor at index %d: duplicate monitor id %s", i, m.ID)
		}
		seen[m.ID] = struct{}{}

		assignStableIDs(m)
		m.Normalize(now)
		if err := limits.Validate(m); err != nil {
			return nil, fmt.Errorf("invalid monitor at index %d: %w", i, err)
		}
	}
	return monitors, nil
}

func assignStableIDs(m *models.Monitor) {
	for i := range m.Triggers {
		base := m.Triggers[i].Base()
		if base == nil {
			continue
		}
		if base.ID == "" {
			base.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(m.ID+"/"+base.Name)).String()
		}
		for j := range base.Actions {
			a := &base.Actions[j]
			if a.ID == "" {
				a.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(base.ID+"/"+a.Name)).String()
			}
		}
	}
}
