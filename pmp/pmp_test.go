package pmp

import (
	"testing"

	"rvsim/config"
	"rvsim/csr"
	"rvsim/mem"
)

const testBase = 0x80000000

func testChecker(cfg *config.Config) (*csr.File, *mem.Memory, *Checker) {
	c := &csr.File{Mode: csr.ModeM}
	m := mem.New(cfg.MemoryBase, cfg.MemorySize)
	return c, m, New(c, m, cfg)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MemorySize = 0x400000
	return cfg
}

// napotEncode builds a pmpaddr value covering [base, base+size).
func napotEncode(base, size uint64) uint64 {
	return (base >> 2) | (size>>3 - 1)
}

func TestNoActiveEntries(t *testing.T) {
	cfg := testConfig()
	cfg.PMPActiveEntries = 0
	_, _, p := testChecker(cfg)

	if !p.CheckPermission(testBase, 8, mem.TypeWrite, csr.ModeS) {
		t.Errorf("access denied with protection unconfigured")
	}
}

func TestNoMatchDefaults(t *testing.T) {
	_, _, p := testChecker(testConfig())
	// entries active but none configured: only machine mode passes
	if !p.CheckPermission(testBase, 8, mem.TypeRead, csr.ModeM) {
		t.Errorf("machine access denied with no matching entry")
	}
	if p.CheckPermission(testBase, 8, mem.TypeRead, csr.ModeS) {
		t.Errorf("supervisor access granted with no matching entry")
	}
}

func TestNAPOTRegion(t *testing.T) {
	c, _, p := testChecker(testConfig())
	c.Pmpaddr[0] = napotEncode(testBase, 0x1000)
	c.SetPmpcfgByte(0, 0x18|0x03) // NAPOT, R|W

	tests := []struct {
		name  string
		addr  uint64
		atype int
		want  bool
	}{
		{"read inside", testBase + 0x100, mem.TypeRead, true},
		{"write inside", testBase + 0xff8, mem.TypeWrite, true},
		{"ifetch inside", testBase + 0x100, mem.TypeIfetch, false},
		{"read outside", testBase + 0x2000, mem.TypeRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CheckPermission(tt.addr, 4, tt.atype, csr.ModeS)
			if got != tt.want {
				t.Errorf("wanted %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPartialOverlapDenied(t *testing.T) {
	c, _, p := testChecker(testConfig())
	c.Pmpaddr[0] = napotEncode(testBase, 0x1000)
	c.SetPmpcfgByte(0, 0x18|0x03)

	// footprint straddles the region end: denied even for machine mode
	if p.CheckPermission(testBase+0xffc, 8, mem.TypeRead, csr.ModeM) {
		t.Errorf("partially overlapping machine access granted")
	}
	if p.CheckPermission(testBase+0xffc, 8, mem.TypeRead, csr.ModeS) {
		t.Errorf("partially overlapping supervisor access granted")
	}
}

func TestLockedEntry(t *testing.T) {
	c, _, p := testChecker(testConfig())
	c.Pmpaddr[0] = napotEncode(testBase, 0x1000)
	c.SetPmpcfgByte(0, 0x80|0x18) // locked NAPOT, no permissions

	if p.CheckPermission(testBase, 4, mem.TypeRead, csr.ModeM) {
		t.Errorf("locked entry did not bind machine mode")
	}
	// unlocked entry with no permissions still passes machine mode
	c.SetPmpcfgByte(0, 0x18)
	if !p.CheckPermission(testBase, 4, mem.TypeRead, csr.ModeM) {
		t.Errorf("unlocked entry denied machine mode")
	}
}

func TestTORRegion(t *testing.T) {
	c, _, p := testChecker(testConfig())
	// entry 0: [0, testBase+0x1000), read-only
	c.Pmpaddr[0] = (testBase + 0x1000) >> 2
	c.SetPmpcfgByte(0, 0x08|0x01) // TOR, R

	if !p.CheckPermission(testBase+0x800, 4, mem.TypeRead, csr.ModeS) {
		t.Errorf("read below the top denied")
	}
	if p.CheckPermission(testBase+0x800, 4, mem.TypeWrite, csr.ModeS) {
		t.Errorf("write granted by a read-only entry")
	}
	if p.CheckPermission(testBase+0x1000, 4, mem.TypeRead, csr.ModeS) {
		t.Errorf("read above the top granted")
	}
}

func TestMPRVOverride(t *testing.T) {
	c, _, p := testChecker(testConfig())
	c.Mode = csr.ModeM
	c.Pmpaddr[0] = napotEncode(testBase, 0x1000)
	c.SetPmpcfgByte(0, 0x18) // NAPOT, no permissions

	if !p.CheckPermission(testBase, 4, mem.TypeRead, csr.ModeM) {
		t.Errorf("machine data access denied without MPRV")
	}

	c.Mstatus.SetMPRV(true)
	c.Mstatus.SetMPP(csr.ModeS)
	if p.CheckPermission(testBase, 4, mem.TypeRead, csr.ModeM) {
		t.Errorf("MPRV data access not judged at MPP mode")
	}
	// fetches never take the override
	if !p.CheckPermission(testBase, 4, mem.TypeIfetch, csr.ModeM) {
		t.Errorf("MPRV applied to an instruction fetch")
	}
}

func TestTableInlinePermission(t *testing.T) {
	cfg := testConfig()
	cfg.PMPTable = true
	c, m, p := testChecker(cfg)

	rootTableBase := uint64(testBase + 0x100000)
	// entry 0: TOR [0, testBase+0x40000) with the table bit; entry 1
	// carries the root table page number
	c.Pmpaddr[0] = (testBase + 0x40000) >> 2
	c.Pmpaddr[1] = rootTableBase >> 12
	c.SetPmpcfgByte(0, 0x08|0x40)

	addr := uint64(testBase + 0x1000)
	off1 := (addr >> 25) & 0x1ff
	// root entry with an inline permission nibble: read-only
	m.Write(rootTableBase+(off1<<3), 8, (0x1<<1)|1)

	if !p.CheckPermission(addr, 4, mem.TypeRead, csr.ModeS) {
		t.Errorf("read denied by inline table permission")
	}
	if p.CheckPermission(addr, 4, mem.TypeWrite, csr.ModeS) {
		t.Errorf("write granted by a read-only table entry")
	}
	if !p.CheckPermission(addr, 4, mem.TypeWrite, csr.ModeM) {
		t.Errorf("table permission bound machine mode")
	}
}

func TestTableLeafPermission(t *testing.T) {
	cfg := testConfig()
	cfg.PMPTable = true
	c, m, p := testChecker(cfg)

	rootTableBase := uint64(testBase + 0x100000)
	leafTableBase := uint64(testBase + 0x101000)
	c.Pmpaddr[0] = (testBase + 0x40000) >> 2
	c.Pmpaddr[1] = rootTableBase >> 12
	c.SetPmpcfgByte(0, 0x08|0x40)

	addr := uint64(testBase + 0x1000) // page index 1, odd: high nibble
	off1 := (addr >> 25) & 0x1ff
	off0 := (addr >> 16) & 0x1ff

	// root entry pointing at the leaf table
	m.Write(rootTableBase+(off1<<3), 8, (leafTableBase>>12)<<5|1)
	// leaf byte holding pages 0 and 1: page 1 gets R|W in the high nibble
	m.Write(leafTableBase+(off0<<3), 1, 0x30)

	if !p.CheckPermission(addr, 4, mem.TypeRead, csr.ModeS) {
		t.Errorf("read denied by leaf table permission")
	}
	if !p.CheckPermission(addr, 4, mem.TypeWrite, csr.ModeS) {
		t.Errorf("write denied by leaf table permission")
	}
	if p.CheckPermission(addr, 4, mem.TypeIfetch, csr.ModeS) {
		t.Errorf("ifetch granted without execute permission")
	}
	// the even page of the same byte has no permissions
	if p.CheckPermission(testBase, 4, mem.TypeRead, csr.ModeS) {
		t.Errorf("read granted from the empty low nibble")
	}
}

func TestTableBitOnLastEntry(t *testing.T) {
	cfg := testConfig()
	cfg.PMPTable = true
	c, _, p := testChecker(cfg)

	// the T bit on the last register has no next register to hold the
	// table root: the matching access is denied, not a panic
	c.Pmpaddr[15] = (testBase + 0x40000) >> 2
	c.SetPmpcfgByte(15, 0x08|0x40)

	if p.CheckPermission(testBase+0x1000, 4, mem.TypeRead, csr.ModeS) {
		t.Errorf("table bit without a root register granted access")
	}
	if p.CheckPermission(testBase+0x1000, 4, mem.TypeRead, csr.ModeM) {
		t.Errorf("table bit without a root register granted machine access")
	}
}

func TestBitmap(t *testing.T) {
	cfg := testConfig()
	cfg.Bitmap = true
	c, m, p := testChecker(cfg)

	addr := uint64(testBase + 0x5000)
	ppn := addr >> 12
	c.Mbmc.SetBMA(testBase + 0x2000)

	// bitmap disabled: always granted
	if !p.CheckBitmap(addr, 0) {
		t.Errorf("denied with BME clear")
	}

	c.Mbmc.SetBME(true)
	if !p.CheckBitmap(addr, 0) {
		t.Errorf("denied with a clear bitmap bit")
	}

	// an isolated page denies at every privilege level
	byteAddr := c.Mbmc.BMA() + ppn/8
	m.Write(byteAddr, 1, 1<<(ppn%8))
	c.Mode = csr.ModeS
	if p.CheckBitmap(addr, 0) {
		t.Errorf("granted with the bitmap bit set")
	}
	c.Mode = csr.ModeM
	if p.CheckBitmap(addr, 0) {
		t.Errorf("machine mode exempted from the bitmap")
	}

	// secure mode skips the check
	c.Mbmc.SetCMODE(true)
	if !p.CheckBitmap(addr, 0) {
		t.Errorf("denied in secure mode")
	}
}
