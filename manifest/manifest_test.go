package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/babygc/vm"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a babygc.toml
	dir := t.TempDir()
	tomlContent := `
[collector]
initial-threshold = 32
growth-factor = 3

[log]
verbosity = 2
file = "gc.log"

[journal]
path = "data/gc.db"

[image]
output = "/tmp/heap.img"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Collector.InitialThreshold == nil || *m.Collector.InitialThreshold != 32 {
		t.Errorf("initial threshold = %v, want 32", m.Collector.InitialThreshold)
	}
	if m.Collector.GrowthFactor == nil || *m.Collector.GrowthFactor != 3 {
		t.Errorf("growth factor = %v, want 3", m.Collector.GrowthFactor)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got, want := m.LogFilePath(), filepath.Join(m.Dir, "gc.log"); got != want {
		t.Errorf("LogFilePath() = %q, want %q", got, want)
	}
	if got, want := m.JournalPath(), filepath.Join(m.Dir, "data", "gc.db"); got != want {
		t.Errorf("JournalPath() = %q, want %q", got, want)
	}
	if got := m.ImageOutputPath(); got != "/tmp/heap.img" {
		t.Errorf("ImageOutputPath() = %q, want absolute path unchanged", got)
	}

	v := vm.New(m.VMOptions()...)
	if v.Threshold() != 32 {
		t.Errorf("VM threshold = %d, want 32", v.Threshold())
	}
	if v.GrowthFactor() != 3 {
		t.Errorf("VM growth factor = %d, want 3", v.GrowthFactor())
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.VMOptions()) != 0 {
		t.Errorf("empty manifest produced %d options, want 0", len(m.VMOptions()))
	}
	if m.JournalPath() != "" || m.ImageOutputPath() != "" || m.LogFilePath() != "" {
		t.Error("unset paths should resolve to empty strings")
	}

	v := vm.New(m.VMOptions()...)
	if v.Threshold() != vm.DefaultInitialThreshold {
		t.Errorf("VM threshold = %d, want default %d", v.Threshold(), vm.DefaultInitialThreshold)
	}
}

func TestZeroInitialThresholdIsKept(t *testing.T) {
	m, err := Parse([]byte("[collector]\ninitial-threshold = 0\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v := vm.New(m.VMOptions()...)
	if v.Threshold() != 0 {
		t.Errorf("VM threshold = %d, want 0", v.Threshold())
	}
}

func TestParseRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"negative threshold", "[collector]\ninitial-threshold = -1\n"},
		{"negative growth", "[collector]\ngrowth-factor = -2\n"},
		{"zero growth", "[collector]\ngrowth-factor = 0\n"},
		{"syntax", "[collector\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.toml)); err == nil {
				t.Error("Parse should fail")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load should fail without babygc.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := "[collector]\ngrowth-factor = 4\n"
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected manifest, got nil")
	}
	if m.Collector.GrowthFactor == nil || *m.Collector.GrowthFactor != 4 {
		t.Errorf("growth factor = %v, want 4", m.Collector.GrowthFactor)
	}

	absRoot, _ := filepath.Abs(root)
	if m.Dir != absRoot {
		t.Errorf("manifest dir = %q, want %q", m.Dir, absRoot)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when none exists")
	}
}
