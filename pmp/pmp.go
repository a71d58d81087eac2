package pmp

import (
	"rvsim/config"
	"rvsim/csr"
	"rvsim/mem"
)

/**
Physical memory protection. Region entries are evaluated low-index-first
and the first matching entry decides; an access that only partially
overlaps a region is denied no matter what the permission bits say.
*/

// pmpcfg bits
const (
	permR = 0x01
	permW = 0x02
	permX = 0x04
	aMask = 0x18
	// T selects the table extension for a matching entry
	bitT = 0x40
	bitL = 0x80

	aTOR   = 0x08
	aNA4   = 0x10
	aNAPOT = 0x18

	// pmpaddr registers hold physical addresses shifted right by 2
	pmpShift = 2
)

// Checker gates raw physical accesses by mode and access type.
type Checker struct {
	csr *csr.File
	mem *mem.Memory
	cfg *config.Config
}

// New returns a checker over the given architectural state.
func New(c *csr.File, m *mem.Memory, cfg *config.Config) *Checker {
	return &Checker{csr: c, mem: m, cfg: cfg}
}

// effectiveMode resolves the mode a physical access is judged at. The
// memory layer cannot pass down the MPRV override, so it is applied here.
func (c *Checker) effectiveMode(atype int, outMode uint64) uint64 {
	if outMode != csr.ModeM {
		return outMode
	}
	ifetch := atype == mem.TypeIfetch
	if c.csr.Mstatus.MPRV() && !ifetch {
		return c.csr.Mstatus.MPP()
	}
	return c.csr.Mode
}

// CheckPermission reports whether a physical access is authorized. With no
// active entries every access is granted; with entries but no match only
// machine mode passes.
func (c *Checker) CheckPermission(addr uint64, n int, atype int, outMode uint64) bool {
	if c.cfg.PMPActiveEntries == 0 {
		return true
	}
	mode := c.effectiveMode(atype, outMode)
	if c.cfg.PMPTable {
		return c.checkWithTable(addr, n, atype, mode, outMode)
	}
	return c.checkRegions(addr, n, atype, mode)
}

// checkRegions is the sector-matching region check: every 4-byte sector of
// the access footprint has to match the same entry.
func (c *Checker) checkRegions(addr uint64, n int, atype int, mode uint64) bool {
	base := uint64(0)
	for i := 0; i < c.cfg.PMPActiveEntries; i++ {
		pmpaddr := c.csr.Pmpaddr[i]
		tor := pmpaddr << pmpShift
		cfg := c.csr.PmpcfgByte(i)

		if cfg&aMask != 0 {
			isTOR := cfg&aMask == aTOR
			isNA4 := cfg&aMask == aNA4

			mask := pmpaddr << 1
			if !isNA4 {
				mask |= 1
			}
			mask = ^(mask & ^(mask + 1)) << pmpShift

			anyMatch := false
			allMatch := true
			for off := uint64(0); off < uint64(n); off += 1 << pmpShift {
				cur := addr + off
				napotMatch := ((cur ^ tor) & mask) == 0
				torMatch := base <= cur && cur < tor
				match := napotMatch
				if isTOR {
					match = torMatch
				}
				anyMatch = anyMatch || match
				allMatch = allMatch && match
			}

			if anyMatch {
				if !allMatch {
					return false
				}
				return (mode == csr.ModeM && cfg&bitL == 0) ||
					(isReadKind(atype) && cfg&permR != 0) ||
					(atype == mem.TypeWrite && cfg&permW != 0) ||
					(atype == mem.TypeIfetch && cfg&permX != 0)
			}
		}

		base = tor
	}

	return mode == csr.ModeM
}

// checkWithTable is the region loop of the table extension: a matching
// entry with the T bit set defers to the two-level permission table rooted
// at the next pmpaddr register.
func (c *Checker) checkWithTable(addr uint64, n int, atype int, mode, outMode uint64) bool {
	base := uint64(0)
	for i := 0; i < c.cfg.PMPActiveEntries; i++ {
		cfg := c.csr.PmpcfgByte(i)
		pmpaddr := c.csr.Pmpaddr[i]
		addrMode := cfg & aMask
		if addrMode != 0 {
			switch c.addressMatch(base, addr, n, pmpaddr, addrMode) {
			case 1:
				// only part of the footprint is inside the region
				return false
			case 0:
				// not matched, keep scanning
			default:
				if cfg&bitT != 0 {
					// the table root lives in the next pmpaddr register;
					// a T bit on the last entry has no root and denies
					if i+1 >= len(c.csr.Pmpaddr) {
						return false
					}
					offset := addr - (pmpaddr << pmpShift)
					if addrMode == aTOR {
						offset = addr - base
					}
					rootTableBase := c.csr.Pmpaddr[i+1] << 12
					return c.tablePermission(offset, rootTableBase, atype, mode)
				}
				return c.cfgPermission(cfg, atype, mode)
			}
		}
		base = pmpaddr << pmpShift
	}
	return true
}

// addressMatch counts how many of the access endpoints fall inside the
// entry's region: 2 full match, 1 partial, 0 none.
func (c *Checker) addressMatch(base, addr uint64, n int, pmpaddr uint64, addrMode uint8) int {
	addrS := addr
	addrE := addr + uint64(n)
	sFlag, eFlag := 0, 0

	switch addrMode {
	case aTOR:
		top := pmpaddr << pmpShift
		if base <= addrS && addrS < top {
			sFlag = 1
		}
		if base <= addrE && addrE < top {
			eFlag = 1
		}
	case aNA4:
		lo := pmpaddr << pmpShift
		hi := lo + (1 << pmpShift)
		if lo <= addrS && addrS < hi {
			sFlag = 1
		}
		if lo <= addrE && addrE < hi {
			eFlag = 1
		}
	case aNAPOT:
		if napotDecode(addrS, pmpaddr) {
			sFlag = 1
		}
		if napotDecode(addrE, pmpaddr) {
			eFlag = 1
		}
	}
	return sFlag + eFlag
}

// napotDecode checks addr against the power-of-two region encoded by the
// trailing ones of pmpaddr.
func napotDecode(addr, pmpaddr uint64) bool {
	start := (pmpaddr & (pmpaddr + 1)) << pmpShift
	end := (pmpaddr | (pmpaddr + 1)) << pmpShift
	return start <= addr && addr < end
}

// cfgPermission judges a plain region match by the entry's R/W/X bits.
// Machine mode always passes.
func (c *Checker) cfgPermission(cfg uint8, atype int, mode uint64) bool {
	if mode == csr.ModeM {
		return true
	}
	switch {
	case isReadKind(atype):
		return cfg&permR != 0
	case atype == mem.TypeWrite:
		return cfg&permW != 0
	case atype == mem.TypeIfetch:
		return cfg&permX != 0
	}
	return false
}

// tablePermission is the two-level table lookup: a root entry indexed by
// the high offset bits either carries the permission nibble itself or
// points at a leaf table of packed 4-bit nibbles. Reads go through the raw
// host path so the lookup cannot recurse into the PMP check.
func (c *Checker) tablePermission(offset, rootTableBase uint64, atype int, mode uint64) bool {
	if mode == csr.ModeM {
		return true
	}

	off1 := (offset >> 25) & 0x1ff
	off0 := (offset >> 16) & 0x1ff
	pageIndex := (offset >> 12) & 0xf
	perm := uint64(0)

	rootPte := c.mem.HostRead(rootTableBase+(off1<<3), 8)

	switch {
	case rootPte&0x0f == 1:
		// valid with no inline permission: consult the leaf table
		atHigh := pageIndex%2 == 1
		idx := pageIndex / 2
		leafPte := c.mem.HostRead(((rootPte>>5)<<12)+(off0<<3)+idx, 1)
		if atHigh {
			perm = leafPte >> 4
		} else {
			perm = leafPte & 0xf
		}
	case rootPte&0x1 == 1:
		// valid with inline permission nibble
		perm = (rootPte >> 1) & 0xf
	default:
		return false
	}

	switch {
	case isReadKind(atype):
		return perm&permR != 0
	case atype == mem.TypeWrite:
		return perm&permW != 0
	case atype == mem.TypeIfetch:
		return perm&permX != 0
	}
	return false
}

// CheckBitmap applies the sub-page bitmap isolation gate. level is the
// table level the walker resolved the leaf at, which sizes the page number
// the bitmap is indexed by. A set bit denies the access regardless of the
// privilege level.
func (c *Checker) CheckBitmap(addr uint64, level int) bool {
	if !c.cfg.Bitmap {
		return true
	}
	if !c.csr.Mbmc.BME() {
		return true
	}
	if c.csr.Mbmc.CMODE() {
		// secure mode skips the bitmap check
		return true
	}
	bmBase := c.csr.Mbmc.BMA()
	ppn := (addr >> (9*uint(level) + 12)) << (9 * uint(level))
	isolated := (c.mem.HostRead(bmBase+ppn/8, 1) >> (ppn % 8)) & 1
	return isolated == 0
}

func isReadKind(atype int) bool {
	return atype == mem.TypeRead || atype == mem.TypeIfetchRead ||
		atype == mem.TypeWriteRead || atype == mem.TypeBitmapRead
}
