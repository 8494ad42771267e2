package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"labovik/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
database:
  path: "test.db"
api:
  enabled: true
resources:
  - id: lab-a101
    name: "Chemistry Lab A101"
    kind: lab
    campus_id: campus-north
    capacity: 24
    hourly_rate: 50
budgets:
  - scope: campus-north
    category: equipment
    fiscal_period: FY2026
    allocated: 10000
    period_start: "2025-09-01"
    period_end: "2026-08-31"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if len(cfg.Resources) != 1 || cfg.Resources[0].ID != "lab-a101" {
		t.Errorf("expected 1 resource with id lab-a101")
	}
	if len(cfg.Budgets) != 1 || cfg.Budgets[0].Key().String() != "campus-north/equipment/FY2026" {
		t.Errorf("expected budget account campus-north/equipment/FY2026")
	}

	// defaults
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default http port 8080, got %d", cfg.API.HTTP.Port)
	}
	if !cfg.API.HTTP.Enabled {
		t.Errorf("expected http enabled when api is enabled")
	}
	if cfg.Policy.LabCutoffHours != models.DefaultLabCutoffHours {
		t.Errorf("expected default lab cutoff %d, got %d", models.DefaultLabCutoffHours, cfg.Policy.LabCutoffHours)
	}
	if cfg.Policy.LockWait() != time.Duration(models.DefaultLockWaitMillis)*time.Millisecond {
		t.Errorf("unexpected lock wait: %s", cfg.Policy.LockWait())
	}
}

func TestValidateConfig(t *testing.T) {
	validResource := models.Resource{ID: "lab-1", Name: "Lab", Kind: models.KindLab, HourlyRate: 10}
	validBudget := BudgetSeed{
		Scope: "campus-1", Category: "equipment", FiscalPeriod: "FY2026",
		Allocated: 100, PeriodStart: "2025-09-01", PeriodEnd: "2026-08-31",
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database:  DatabaseConfig{Path: "path"},
				Resources: []models.Resource{validResource},
				Budgets:   []BudgetSeed{validBudget},
			},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name: "duplicate resource id",
			cfg: Config{
				Database:  DatabaseConfig{Path: "path"},
				Resources: []models.Resource{validResource, validResource},
			},
			wantErr: true,
		},
		{
			name: "unknown resource kind",
			cfg: Config{
				Database:  DatabaseConfig{Path: "path"},
				Resources: []models.Resource{{ID: "x", Kind: "warehouse"}},
			},
			wantErr: true,
		},
		{
			name: "invalid operating hours",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Resources: []models.Resource{{
					ID: "x", Kind: models.KindLab,
					Hours: []models.OperatingWindow{{Weekday: 1, Open: "9am", Close: "17:00"}},
				}},
			},
			wantErr: true,
		},
		{
			name: "budget period inverted",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Budgets: []BudgetSeed{{
					Scope: "c", Category: "equipment", FiscalPeriod: "FY2026",
					PeriodStart: "2026-08-31", PeriodEnd: "2025-09-01",
				}},
			},
			wantErr: true,
		},
		{
			name: "duplicate budget key",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Budgets:  []BudgetSeed{validBudget, validBudget},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
