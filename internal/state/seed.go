package state

import (
	"context"
	"fmt"
	"os"

	"cropadvisor/internal/domain"

	"gopkg.in/yaml.v3"
)

// cropSeedFile is the on-disk format for `cropadvisor cropdata import`.
type cropSeedFile struct {
	Crops []domain.CropRecord `yaml:"crops"`
}

// ImportCropsFile loads crop records from a YAML file and upserts them into
// the store. Returns the number of records imported.
func (s *Store) ImportCropsFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("cannot read crop data file %s: %w", path, err)
	}

	var seed cropSeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("cannot parse crop data file %s: %w", path, err)
	}

	for i, rec := range seed.Crops {
		if rec.Location == "" || rec.Crop == "" {
			return 0, fmt.Errorf("crop record %d: location and crop are required", i)
		}
		if err := s.UpsertCrop(ctx, rec); err != nil {
			return 0, fmt.Errorf("import %q: %w", rec.Location, err)
		}
	}

	return len(seed.Crops), nil
}
