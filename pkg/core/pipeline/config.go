package pipeline

import (
	"fmt"
	"os"
	"runtime"

	"github.com/hjson/hjson-go/v4"
)

// Config drives one pipeline run. The file format is HJSON so operators can
// comment out taxonomies and tweak worker counts in place.
type Config struct {
	Workers      int      `json:"workers"`
	TaxonomyDir  string   `json:"taxonomy_dir"`
	Taxonomies   []string `json:"taxonomies"`
	MappingsFile string   `json:"mappings_file"`
	ReportDir    string   `json:"report_dir"`
}

// DefaultConfig matches a local single-machine run.
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		TaxonomyDir: "taxonomies",
		Taxonomies:  []string{"us-gaap", "ifrs-full", "esef"},
		ReportDir:   "reports",
	}
}

// LoadConfig reads an HJSON config file. A missing file yields the defaults;
// a present but unparsable file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := hjson.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, nil
}
