package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hippo.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"database": {"postgres": {"dsn": "postgres://x"}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Attention.CapacityBase != 7 {
		t.Errorf("got capacity base %d, want 7", cfg.Attention.CapacityBase)
	}
	if cfg.Attention.CapacityVariance != 2 {
		t.Errorf("got capacity variance %d, want 2", cfg.Attention.CapacityVariance)
	}
	if cfg.Consolidation.LearningRate != 0.1 {
		t.Errorf("got learning rate %g, want 0.1", cfg.Consolidation.LearningRate)
	}
	if cfg.Semantic.ClusterCount != 1000 {
		t.Errorf("got cluster count %d, want 1000", cfg.Semantic.ClusterCount)
	}
	if cfg.Writeback.BatchSize != 1000 || cfg.Writeback.MinBatchSize != 50 {
		t.Errorf("got writeback %d/%d, want 1000/50",
			cfg.Writeback.BatchSize, cfg.Writeback.MinBatchSize)
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("HIPPO_TEST_DSN", "postgres://fromenv")
	path := writeConfig(t, `{
		"database": {
			"postgres": {"dsn": "${HIPPO_TEST_DSN}"},
			"redis": {"url": "${HIPPO_TEST_MISSING:redis://default}"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Postgres.DSN != "postgres://fromenv" {
		t.Errorf("got dsn %q, want env value", cfg.Database.Postgres.DSN)
	}
	if cfg.Database.Redis.URL != "redis://default" {
		t.Errorf("got redis url %q, want default", cfg.Database.Redis.URL)
	}
}

func TestValidateRejectsCapacityOutsideBounds(t *testing.T) {
	cfg := Default()
	cfg.Attention.CapacityBase = 12
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for capacity range outside [5,9]")
	}

	cfg = Default()
	cfg.Attention.CapacityBase = 5
	cfg.Attention.CapacityVariance = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error: 5-1 dips below the floor")
	}
}

func TestValidateRejectsLearningRateOutsideRange(t *testing.T) {
	cfg := Default()
	cfg.Consolidation.LearningRate = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for learning rate above 0.2")
	}

	cfg.Consolidation.LearningRate = 0.01
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for learning rate below 0.05")
	}
}

func TestValidateRejectsWeightSumMismatch(t *testing.T) {
	cfg := Default()
	cfg.Semantic.StrengthWeight = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for retrieval weights not summing to 1")
	}
}

func TestValidateRejectsBatchBelowFloor(t *testing.T) {
	cfg := Default()
	cfg.Writeback.BatchSize = 10
	cfg.Writeback.MinBatchSize = 50
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for batch size below floor")
	}
}

func TestValidateRejectsUnitIntervalViolations(t *testing.T) {
	cfg := Default()
	cfg.Consolidation.PromotionThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/hippo.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
