package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BartekS5/caregap/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrUnknownSystem is returned when a system id has no configuration.
var ErrUnknownSystem = errors.New("unknown system")

// Registry resolves system ids to their immutable configuration.
type Registry struct {
	systems map[string]*models.SystemConfig
}

// NewRegistry builds a registry from already-parsed configurations.
func NewRegistry(systems ...*models.SystemConfig) (*Registry, error) {
	r := &Registry{systems: make(map[string]*models.SystemConfig, len(systems))}
	for _, s := range systems {
		if err := validateSystem(s); err != nil {
			return nil, err
		}
		if _, dup := r.systems[s.ID]; dup {
			return nil, fmt.Errorf("duplicate system id %q", s.ID)
		}
		s.Normalize()
		r.systems[s.ID] = s
	}
	return r, nil
}

// Get returns the configuration for id or ErrUnknownSystem.
func (r *Registry) Get(id string) (*models.SystemConfig, error) {
	s, ok := r.systems[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, id)
	}
	return s, nil
}

// IDs lists the registered system ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.systems))
	for id := range r.systems {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadSystems reads one system file, or every .json/.yaml/.yml file in a directory.
func LoadSystems(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read systems config '%s': %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to list systems config '%s': %w", path, err)
		}
		files = files[:0]
		for _, e := range entries {
			if e.IsDir() || !isSystemFile(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(path, e.Name()))
		}
		sort.Strings(files)
	}

	systems := make([]*models.SystemConfig, 0, len(files))
	for _, f := range files {
		s, err := LoadSystem(f)
		if err != nil {
			return nil, err
		}
		systems = append(systems, s)
	}
	return NewRegistry(systems...)
}

// LoadSystem reads and parses a single system mapping file.
func LoadSystem(filePath string) (*models.SystemConfig, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file '%s': %w", filePath, err)
	}

	var system models.SystemConfig
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bytes, &system)
	default:
		err = json.Unmarshal(bytes, &system)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
	}
	if err := validateSystem(&system); err != nil {
		return nil, fmt.Errorf("mapping file '%s': %w", filePath, err)
	}

	return &system, nil
}

func isSystemFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func validateSystem(s *models.SystemConfig) error {
	if s.ID == "" {
		return errors.New("system id is required")
	}
	for header, field := range s.PatientColumns {
		switch field {
		case models.FieldMemberName, models.FieldMemberDob, models.FieldMemberTelephone, models.FieldMemberAddress:
		default:
			return fmt.Errorf("system %q: column %q maps to unknown patient field %q", s.ID, header, field)
		}
	}
	for header, mc := range s.MeasureColumns {
		if mc.RequestType == "" || mc.QualityMeasure == "" {
			return fmt.Errorf("system %q: column %q needs requestType and qualityMeasure", s.ID, header)
		}
		if mc.Role != models.MeasureRoleDate && mc.Role != models.MeasureRoleStatus {
			return fmt.Errorf("system %q: column %q has unknown role %q", s.ID, header, mc.Role)
		}
	}
	return nil
}
