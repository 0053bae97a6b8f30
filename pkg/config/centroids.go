package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tessera-intel/tessera/pkg/models"
)

type centroidFile struct {
	Centroids []models.Centroid `yaml:"centroids"`
}

// LoadCentroids reads the immutable centroid configuration from a YAML file.
// Centroid IDs must be unique and every centroid needs at least one keyword.
func LoadCentroids(path string) ([]models.Centroid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read centroid config: %w", err)
	}

	var file centroidFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse centroid config: %w", err)
	}
	if len(file.Centroids) == 0 {
		return nil, fmt.Errorf("centroid config %s defines no centroids", path)
	}

	seen := make(map[string]bool, len(file.Centroids))
	for _, c := range file.Centroids {
		if c.ID == "" {
			return nil, fmt.Errorf("centroid with empty id in %s", path)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate centroid id %q in %s", c.ID, path)
		}
		seen[c.ID] = true
		if len(c.Keywords) == 0 {
			return nil, fmt.Errorf("centroid %q has no keywords", c.ID)
		}
	}
	return file.Centroids, nil
}
