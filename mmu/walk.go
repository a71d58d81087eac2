package mmu

import (
	"rvsim/csr"
	"rvsim/mem"
	"rvsim/trap"
)

// Translate resolves a virtual address to a host physical address,
// walking the active page table (and, under virtualization, the guest's
// second-stage table). Faults abort the instruction via panic; the
// dispatch loop is the only recovery point. Accesses crossing a page
// boundary return RetCrossPage for the caller to split.
func (m *MMU) Translate(vaddr uint64, n int, atype int) uint64 {
	if (vaddr&PageMask)+uint64(n) > PageSize {
		return RetCrossPage
	}
	paddr := m.ptw(vaddr, atype)
	if m.guidedExec && m.guide.ForceRaiseException {
		m.forceRaisePF(vaddr, atype)
		if m.cfg.RVH {
			m.forceRaiseGPF(vaddr, atype)
		}
	}
	return paddr
}

// pteRead fetches one table entry through the physical layer. The read is
// tagged with the outer access kind so protection faults report the cause
// of the access being translated, not a bare load.
func (m *MMU) pteRead(addr uint64, atype int, vaddr uint64) uint64 {
	if m.cfg.Share && m.mem.InMMIO(addr) {
		// a table entry fetched from a device window is an access fault
		// of the outer access's flavor
		m.raiseAccessFault(accessFaultCause(atype), vaddr)
	}
	readKind := mem.TypeRead
	switch atype {
	case mem.TypeIfetch:
		readKind = mem.TypeIfetchRead
	case mem.TypeWrite:
		readKind = mem.TypeWriteRead
	}
	if !m.pmp.CheckPermission(addr, PteSize, readKind, csr.ModeS) {
		m.raiseAccessFault(accessFaultCause(atype), vaddr)
	}
	val, ok := m.mem.Read(addr, PteSize)
	if !ok {
		m.raiseAccessFault(accessFaultCause(atype), vaddr)
	}
	return val
}

// ptw walks the first-stage radix table.
func (m *MMU) ptw(vaddr uint64, atype int) uint64 {
	m.log.Debugf("page walk for %x", vaddr)

	pgBase := m.csr.Satp.PPN() << PageShift
	maxLevel := 4
	if m.csr.Satp.Mode() == csr.AtpSv39 {
		maxLevel = 3
	}

	virt := false
	mode := m.csr.Mode
	if m.cfg.RVH {
		virt = m.csr.V
		if atype != mem.TypeIfetch {
			if m.csr.Mstatus.MPRV() {
				mode = m.csr.Mstatus.MPP()
				virt = m.csr.Mstatus.MPV() && mode != csr.ModeM
			}
			if m.hldSt {
				virt = true
				mode = m.csr.Hstatus.SPVP()
			}
		}
		if virt {
			if m.csr.Vsatp.Mode() == csr.AtpBare {
				// the guest presents guest-physical addresses directly
				return m.gstage(vaddr, vaddr, atype)
			}
			pgBase = m.csr.Vsatp.PPN() << PageShift
			maxLevel = 4
			if m.csr.Vsatp.Mode() == csr.AtpSv39 {
				maxLevel = 3
			}
		}
	}

	// canonical-address rule: bits above the used width must copy the
	// top used bit
	usedBits := uint(39)
	if maxLevel == 4 {
		usedBits = 48
	}
	sext := uint64(int64(vaddr<<(64-usedBits)) >> (64 - usedBits))
	if sext != vaddr {
		m.walkFailed(0, vaddr, atype, virt, mode)
	}

	var pte csr.Pte
	var level int
	for level = maxLevel - 1; level >= 0; {
		pPte := pgBase + vpni(vaddr, level)*PteSize
		if m.cfg.MulticoreDiff {
			// walk the shared golden image so every core sees the
			// reference model's tables
			pte = csr.Pte(m.mem.GoldenRead(pPte, PteSize))
		} else {
			if virt {
				pPte = m.gstage(pPte, vaddr, atype)
			}
			pte = csr.Pte(m.pteRead(pPte, atype, vaddr))
		}
		pgBase = pte.Ppn() << PageShift
		m.log.Debugf("ptw: level %d vaddr %x pte %x", level, vaddr, uint64(pte))
		if !pte.V() || (!pte.R() && pte.W()) {
			m.walkFailed(pte, vaddr, atype, virt, mode)
		}
		if pte.R() || pte.X() || pte.Pad() != 0 {
			// leaf found; W-without-R was rejected above, so R|X covers
			// every legal leaf encoding
			break
		}
		level--
		if level < 0 {
			m.walkFailed(pte, vaddr, atype, virt, mode)
		}
	}

	m.checkPermission(pte, true, vaddr, atype, virt, mode)
	m.ptLevel = level

	if level > 0 {
		// superpage: the physical base must be aligned to the mapping
		// size, and the skipped index bits come from the virtual address
		pgMask := uint64(1)<<vpnShift(level) - 1
		if pgBase&pgMask != 0 {
			m.walkFailed(pte, vaddr, atype, virt, mode)
		}
		pgBase = (pgBase &^ pgMask) | (vaddr & pgMask &^ uint64(PageMask))
	}

	if !m.cfg.Share && !m.cfg.HardwareAD {
		// software-managed A/D: a stale accessed bit, or a stale dirty
		// bit on stores, re-faults so software sets it and the
		// instruction retries from the top. Judged on the stage-1 entry,
		// before any guest-physical mapping is applied.
		isWrite := atype == mem.TypeWrite
		if !pte.A() || (!pte.D() && isWrite) {
			m.raisePageFault(m.pageFaultCause(atype), vaddr)
		}
	}

	if m.cfg.RVH && virt {
		return m.gstage(pgBase|(vaddr&PageMask), vaddr, atype)
	}

	return pgBase | (vaddr & PageMask)
}

// walkFailed funnels every structural walk failure through the permission
// checker with the provisional flag cleared, so the fault cause and trap
// value are chosen in exactly one place.
func (m *MMU) walkFailed(pte csr.Pte, vaddr uint64, atype int, virt bool, mode uint64) {
	m.log.Debugf("translation failed for %x", vaddr)
	m.checkPermission(pte, false, vaddr, atype, virt, mode)
	// with the provisional flag cleared the permission check always raises
	panic(trap.Exception{Num: m.pageFaultCause(atype), Tval: vaddr, Msg: "page walk failed"})
}
