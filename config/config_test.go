package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
}

func TestLoad(t *testing.T) {
	content := `
rvh = false
sv48 = false
pmp_active_entries = 4
pmp_table = true
memory_base = 0x80000000
memory_size = 0x400000
log_path = "/tmp/rvsim.log"
`
	path := filepath.Join(t.TempDir(), "rvsim.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	want.RVH = false
	want.Sv48 = false
	want.PMPActiveEntries = 4
	want.PMPTable = true
	want.MemorySize = 0x400000
	want.LogPath = "/tmp/rvsim.log"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"too many pmp entries", func(c *Config) { c.PMPActiveEntries = 17 }, false},
		{"negative pmp entries", func(c *Config) { c.PMPActiveEntries = -1 }, false},
		{"table without entries", func(c *Config) {
			c.PMPTable = true
			c.PMPActiveEntries = 0
		}, false},
		{"multicore without share", func(c *Config) {
			c.MulticoreDiff = true
			c.Share = false
		}, false},
		{"zero memory", func(c *Config) { c.MemorySize = 0 }, false},
		{"unaligned base", func(c *Config) { c.MemoryBase = 0x80000100 }, false},
		{"unaligned size", func(c *Config) { c.MemorySize = 0x1100 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("expected validation to fail")
			}
		})
	}
}
