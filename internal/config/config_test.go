package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BartekS5/caregap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "sqlserver requires connection string",
			env:     map[string]string{"STORE_DRIVER": "sqlserver"},
			wantErr: true,
		},
		{
			name: "sqlserver defaults",
			env:  map[string]string{"SQL_CONNECTION_STRING": "sqlserver://sa@localhost"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DriverSQLServer, cfg.StoreDriver)
				assert.Equal(t, 30*time.Minute, cfg.PreviewTTL)
				assert.Equal(t, time.Minute, cfg.PreviewSweepInterval)
				assert.Equal(t, "configs/systems", cfg.SystemsPath)
				assert.Equal(t, "caregap", cfg.MongoDatabase)
			},
		},
		{
			name:    "mongo requires connection string",
			env:     map[string]string{"STORE_DRIVER": "mongo"},
			wantErr: true,
		},
		{
			name: "memory with custom ttl",
			env:  map[string]string{"STORE_DRIVER": "MEMORY", "PREVIEW_TTL": "5m"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DriverMemory, cfg.StoreDriver)
				assert.Equal(t, 5*time.Minute, cfg.PreviewTTL)
			},
		},
		{
			name:    "bad ttl",
			env:     map[string]string{"STORE_DRIVER": "memory", "PREVIEW_TTL": "soon"},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"STORE_DRIVER": "oracle"},
			wantErr: true,
		},
	}

	keys := []string{"STORE_DRIVER", "SQL_CONNECTION_STRING", "MONGO_CONNECTION_STRING", "PREVIEW_TTL", "PREVIEW_SWEEP_INTERVAL", "SYSTEMS_CONFIG", "MONGO_DATABASE"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadSystemsFromRepository(t *testing.T) {
	reg, err := LoadSystems(filepath.Join("..", "..", "configs", "systems"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hill", "sutter"}, reg.IDs())

	hill, err := reg.Get("hill")
	require.NoError(t, err)
	assert.Equal(t, models.FieldMemberName, hill.PatientColumns["Patient"])
	assert.True(t, hill.MeasureBelongsTo("Screening", "Colon Cancer Screening"))

	sutter, err := reg.Get("sutter")
	require.NoError(t, err)
	// request types are derived from measure columns when not configured
	assert.True(t, sutter.HasRequestType("Screening"))
	assert.True(t, sutter.MeasureBelongsTo("AWV", "Annual Wellness Visit"))
	assert.Equal(t, []string{models.FieldMemberName, models.FieldMemberDob}, sutter.RequiredFields)
}

func TestRegistryUnknownSystem(t *testing.T) {
	reg, err := NewRegistry(&models.SystemConfig{ID: "hill"})
	require.NoError(t, err)

	_, err = reg.Get("nope")
	assert.True(t, errors.Is(err, ErrUnknownSystem))
}

func TestLoadSystemRejectsBadRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	body := `{"id":"x","measureColumns":{"A":{"requestType":"AWV","qualityMeasure":"Annual Wellness Visit","role":"other"}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadSystem(path)
	assert.ErrorContains(t, err, "unknown role")
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&models.SystemConfig{ID: "a"}, &models.SystemConfig{ID: "a"})
	assert.Error(t, err)
}
