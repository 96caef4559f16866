package pipeline

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.hjson"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("workers = %d, want NumCPU", cfg.Workers)
	}
	if cfg.TaxonomyDir != "taxonomies" || cfg.ReportDir != "reports" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Taxonomies) != 3 {
		t.Errorf("taxonomies = %v", cfg.Taxonomies)
	}
}

func TestLoadConfigParsesHjsonWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.hjson")
	content := `{
		// tuned down for the staging database
		workers: 2
		taxonomy_dir: /data/taxonomies
		taxonomies: ["ifrs-full"]
		mappings_file: mappings.yaml
		report_dir: /tmp/reports
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Workers)
	}
	if cfg.TaxonomyDir != "/data/taxonomies" {
		t.Errorf("taxonomy_dir = %q", cfg.TaxonomyDir)
	}
	if len(cfg.Taxonomies) != 1 || cfg.Taxonomies[0] != "ifrs-full" {
		t.Errorf("taxonomies = %v", cfg.Taxonomies)
	}
	if cfg.MappingsFile != "mappings.yaml" {
		t.Errorf("mappings_file = %q", cfg.MappingsFile)
	}
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.hjson")
	if err := os.WriteFile(path, []byte("workers: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("want parse error for malformed config")
	}
}

func TestLoadConfigNonPositiveWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.hjson")
	if err := os.WriteFile(path, []byte(`{workers: 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != runtime.NumCPU() {
		t.Errorf("workers = %d, want NumCPU fallback", cfg.Workers)
	}
}
