package testkit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// ConfigEntry is one group in a master suite file. Each group points at a
// file holding a JSON array of scenarios.
type ConfigEntry struct {
	ServiceName       string `json:"serviceName"`
	FilePath          string `json:"filePath"`
	ScenariosFileName string `json:"scenariosFileName"`
	Skip              bool   `json:"skip,omitempty"`
}

// RunSuite runs every group listed in the master config, one subtest per
// group and one per scenario. Paths are relative to the master config.
// Every scenario gets its own handler from factory.
func RunSuite(t *testing.T, masterConfigPath string, factory Factory) {
	t.Helper()

	abs, err := filepath.Abs(masterConfigPath)
	if err != nil {
		t.Fatalf("testkit: resolve master config path %q: %v", masterConfigPath, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("testkit: read master config %q: %v", abs, err)
	}

	var entries []ConfigEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("testkit: parse master config %q: %v", abs, err)
	}

	base := filepath.Dir(abs)
	for _, entry := range entries {
		t.Run(entry.ServiceName, func(t *testing.T) {
			if entry.Skip {
				t.Skip("skipped in master config")
			}
			path := filepath.Join(base, entry.FilePath, entry.ScenariosFileName)
			scenarios, err := LoadScenarioArray(path)
			if err != nil {
				t.Fatal(err)
			}
			for _, s := range scenarios {
				t.Run(s.Name, func(t *testing.T) {
					RunScenario(t, factory, s)
				})
			}
		})
	}
}
