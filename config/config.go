package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the capability matrix of the simulated hart. Extensions the
// reference hardware compiles in or out are runtime choices here, checked
// once at load time.
type Config struct {
	// extensions
	RVH      bool `toml:"rvh"`      // hypervisor extension, two-stage translation
	Sv48     bool `toml:"sv48"`     // allow satp/vsatp/hgatp mode 9
	Sdtrig   bool `toml:"sdtrig"`   // debug trigger module (tcontrol)
	Sscofpmf bool `toml:"sscofpmf"` // counter-overflow interrupt line

	// physical memory protection
	PMPActiveEntries int  `toml:"pmp_active_entries"`
	PMPTable         bool `toml:"pmp_table"` // table extension, honors the T bit
	Bitmap           bool `toml:"bitmap"`    // sub-page bitmap isolation (mbmc)

	// difftest / co-simulation
	Share         bool `toml:"share"`          // co-simulation build profile
	MulticoreDiff bool `toml:"multicore_diff"` // PTE reads go to the golden image

	// HardwareAD selects hardware-managed accessed/dirty bits. When false a
	// stale A (or stale D on stores) re-faults so software sets the bits and
	// the instruction retries from the top.
	HardwareAD bool `toml:"hardware_ad"`

	// TvalIllegalInstr writes the faulting instruction bits to xtval on
	// illegal-instruction traps instead of zero.
	TvalIllegalInstr bool `toml:"tval_illegal_instr"`

	// SoftAlignCheck raises misaligned-access exceptions before translation
	// instead of leaving alignment to the memory system.
	SoftAlignCheck bool `toml:"soft_align_check"`

	// memory map
	MemoryBase uint64 `toml:"memory_base"`
	MemorySize uint64 `toml:"memory_size"`

	LogPath string `toml:"log_path"`
}

// Default returns the configuration matching the reference model's
// co-simulation profile.
func Default() *Config {
	return &Config{
		RVH:              true,
		Sv48:             true,
		PMPActiveEntries: 16,
		Share:            true,
		TvalIllegalInstr: true,
		SoftAlignCheck:   true,
		MemoryBase:       0x80000000,
		MemorySize:       256 * 1024 * 1024,
	}
}

// Load reads a TOML capability file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects capability combinations the core cannot honor.
func (c *Config) Validate() error {
	if c.PMPActiveEntries < 0 || c.PMPActiveEntries > 16 {
		return fmt.Errorf("pmp_active_entries %d out of range 0..16", c.PMPActiveEntries)
	}
	if c.PMPTable && c.PMPActiveEntries == 0 {
		return fmt.Errorf("pmp_table requires active pmp entries")
	}
	if c.MulticoreDiff && !c.Share {
		return fmt.Errorf("multicore_diff requires share mode")
	}
	if c.MemorySize == 0 {
		return fmt.Errorf("memory_size must be non-zero")
	}
	if c.MemorySize%4096 != 0 || c.MemoryBase%4096 != 0 {
		return fmt.Errorf("memory map must be page aligned")
	}
	return nil
}
