// Package closet imports course learning outcome sets from YAML files, so a
// course's CLOs can be versioned alongside its teaching material and seeded
// into the service at startup.
package closet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/classpulse/clo-analysis/internal/analysis"
)

// SetFile is one CLO set definition as written on disk.
type SetFile struct {
	Name string   `yaml:"name"`
	CLOs []CLODef `yaml:"clos"`
}

// CLODef is one outcome within a set file.
type CLODef struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Bloom       string `yaml:"bloom"`
}

// LoadDir walks dir and parses every .yaml/.yml file as a CLO set
// definition. Files that do not parse or carry no name are skipped with a
// warning rather than failing the whole import.
func LoadDir(dir string) ([]SetFile, error) {
	var sets []SetFile
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var set SetFile
		if err := yaml.Unmarshal(data, &set); err != nil {
			slog.Warn("skipping invalid CLO set YAML", "path", path, "error", err)
			return nil
		}
		if set.Name == "" {
			slog.Warn("skipping CLO set file without a name", "path", path)
			return nil
		}
		if err := set.validate(); err != nil {
			slog.Warn("skipping CLO set file", "path", path, "error", err)
			return nil
		}
		sets = append(sets, set)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading CLO sets: %w", err)
	}
	return sets, nil
}

func (s SetFile) validate() error {
	seen := make(map[string]bool, len(s.CLOs))
	for i, clo := range s.CLOs {
		if clo.Code == "" {
			return fmt.Errorf("CLO %d has no code", i+1)
		}
		if clo.Description == "" {
			return fmt.Errorf("CLO %s has no description", clo.Code)
		}
		if seen[clo.Code] {
			return fmt.Errorf("duplicate CLO code %s", clo.Code)
		}
		seen[clo.Code] = true
		if !analysis.BloomLevel(clo.Bloom).Valid() {
			return fmt.Errorf("CLO %s has unknown Bloom level %q", clo.Code, clo.Bloom)
		}
	}
	return nil
}

// Import writes the loaded sets into the store and returns the created
// CLOSet records keyed by name.
func Import(ctx context.Context, store analysis.Store, sets []SetFile) (map[string]analysis.CLOSet, error) {
	created := make(map[string]analysis.CLOSet, len(sets))
	for _, set := range sets {
		rec, err := store.CreateCLOSet(ctx, set.Name)
		if err != nil {
			return nil, fmt.Errorf("create CLO set %q: %w", set.Name, err)
		}
		for _, clo := range set.CLOs {
			if _, err := store.AddCLO(ctx, analysis.CLO{
				SetID:       rec.ID,
				Code:        clo.Code,
				Description: clo.Description,
				Bloom:       analysis.BloomLevel(clo.Bloom),
			}); err != nil {
				return nil, fmt.Errorf("add CLO %s to %q: %w", clo.Code, set.Name, err)
			}
		}
		created[set.Name] = rec
		slog.Info("CLO set imported", "name", set.Name, "clos", len(set.CLOs))
	}
	return created, nil
}
