package calcrule

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"claim-batch/internal/batch/application"
)

const defaultTimeout = 30 * time.Second

// Entry binds a calculation id to a remote rule endpoint.
type Entry struct {
	ID       string        `yaml:"id"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Disabled bool          `yaml:"disabled"`
}

// Catalog lists the installed calculation rules.
type Catalog struct {
	Calculations []Entry `yaml:"calculations"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (Catalog, error) {
	var catalog Catalog
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog, err
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return catalog, fmt.Errorf("calculation catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(catalog.Calculations))
	for i := range catalog.Calculations {
		entry := &catalog.Calculations[i]
		if entry.ID == "" {
			return catalog, fmt.Errorf("calculation catalog: entry %d has no id", i)
		}
		if entry.Endpoint == "" {
			return catalog, fmt.Errorf("calculation catalog: %s has no endpoint", entry.ID)
		}
		if _, dup := seen[entry.ID]; dup {
			return catalog, fmt.Errorf("calculation catalog: duplicate id %s", entry.ID)
		}
		seen[entry.ID] = struct{}{}
		if entry.Timeout <= 0 {
			entry.Timeout = defaultTimeout
		}
	}
	return catalog, nil
}

// Register binds every enabled catalog entry to an HTTP calculation.
func (c Catalog) Register(registry *application.Registry, logger *zap.Logger) (int, error) {
	if registry == nil {
		return 0, errors.New("calculation catalog: nil registry")
	}
	count := 0
	for _, entry := range c.Calculations {
		if entry.Disabled {
			continue
		}
		registry.Register(entry.ID, NewHTTPCalculation(entry, logger))
		count++
	}
	return count, nil
}
