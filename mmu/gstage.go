package mmu

import (
	"rvsim/csr"
	"rvsim/mem"
	"rvsim/trap"
)

// gstage translates a guest-physical address through hgatp. vaddr is the
// original guest-virtual address, reported on faults; the guest-physical
// address goes to htval/mtval2 shifted right by 2.
func (m *MMU) gstage(gpaddr, vaddr uint64, atype int) uint64 {
	m.ptLevel = 0

	if m.csr.Hgatp.Mode() == csr.AtpBare {
		return gpaddr
	}
	maxLevel := 4
	if m.csr.Hgatp.Mode() == csr.AtpSv39 {
		maxLevel = 3
	}

	// the guest-physical space is two bits wider than the matching
	// virtual space; anything above that width faults before the walk
	var maxGpa uint64 = (1 << 41) - 1
	if maxLevel == 4 {
		maxGpa = (1 << 50) - 1
	}
	if gpaddr&^maxGpa != 0 {
		m.raiseGuestExcep(gpaddr, vaddr, atype)
	}

	pgBase := m.csr.Hgatp.PPN() << PageShift
	mxr := m.csr.Mstatus.MXR()
	for level := maxLevel - 1; level >= 0; level-- {
		pPte := pgBase + gvpn(gpaddr, level, maxLevel)*PteSize
		pte := csr.Pte(m.pteRead(pPte, atype, vaddr))
		pgBase = pte.Ppn() << PageShift
		m.log.Debugf("gstage: level %d gpaddr %x pte %x", level, gpaddr, uint64(pte))

		if pte.V() && !pte.R() && !pte.W() && !pte.X() {
			if level == 0 {
				break
			}
			continue
		}
		if !pte.V() || (!pte.R() && pte.W()) {
			break
		}
		// G-stage leaves are always user pages
		if !pte.U() {
			break
		}
		denied := false
		switch {
		case atype == mem.TypeIfetch || m.hlvx:
			denied = !pte.X()
		case atype == mem.TypeRead || atype == mem.TypeIfetchRead || atype == mem.TypeWriteRead:
			denied = !pte.R() && !(mxr && pte.X())
		default:
			denied = !pte.R() || !pte.W()
		}
		if denied {
			break
		}

		if level > 0 {
			pgMask := uint64(1)<<vpnShift(level) - 1
			if pgBase&pgMask != 0 {
				m.log.Debugf("gstage: misaligned superpage at level %d", level)
				break
			}
			pgBase = (pgBase &^ pgMask) | (gpaddr & pgMask &^ uint64(PageMask))
		}
		m.ptLevel = level
		return pgBase | (gpaddr & PageMask)
	}

	m.raiseGuestExcep(gpaddr, vaddr, atype)
	return 0 // unreachable, raiseGuestExcep panics
}

// raiseGuestExcep records a guest page fault. The guest-virtual address
// goes to the stage-1 trap value register, the guest-physical address
// (shifted right by 2) to htval or mtval2 depending on delegation.
func (m *MMU) raiseGuestExcep(gpaddr, vaddr uint64, atype int) {
	if m.guidedExec && m.guide.ForceRaiseException {
		switch m.guide.ExceptionNum {
		case trap.ExIPF, trap.ExLPF, trap.ExSPF:
			// the model took a regular page fault where this side found a
			// guest fault; reproduce the model's verdict
			m.forceRaisePF(vaddr, atype)
		}
	}

	var ex uint64
	switch atype {
	case mem.TypeIfetch:
		ex = trap.ExIGPF
	case mem.TypeRead:
		if m.csr.AMO {
			ex = trap.ExSGPF
		} else {
			ex = trap.ExLGPF
		}
	default:
		ex = trap.ExSGPF
	}

	if m.intrDelegS(ex) {
		m.csr.Stval = vaddr
		m.csr.Htval = gpaddr >> 2
	} else {
		m.csr.Mtval = vaddr
		m.csr.Mtval2 = gpaddr >> 2
	}
	m.log.Debugf("guest page fault: gpaddr %x vaddr %x cause %d", gpaddr, vaddr, ex)
	panic(trap.Exception{Num: ex, Tval: vaddr, Gtval: gpaddr >> 2, Msg: "guest page fault"})
}
