package mmu

import (
	"rvsim/csr"
	"rvsim/mem"
	"rvsim/trap"
)

// checkPermission judges a resolved leaf entry against the access. ok is
// false when the walk already failed structurally; the entry then only
// determines which fault is reported. Raises on denial, returns on grant.
func (m *MMU) checkPermission(pte csr.Pte, ok bool, vaddr uint64, atype int, virt bool, mode uint64) {
	sum := m.csr.Mstatus.SUM()
	if m.cfg.RVH && virt {
		sum = m.csr.Vsstatus.SUM()
	}

	ok = ok && pte.V()
	ok = ok && !(mode == csr.ModeU && !pte.U())
	ok = ok && !(pte.U() && ((mode == csr.ModeS) && (!sum || atype == mem.TypeIfetch)))

	// with software-managed A/D a stale accessed bit (or stale dirty bit
	// on stores) re-faults on an otherwise valid access, so software can
	// set the bit and retry the instruction
	softAD := m.cfg.Share && !m.cfg.HardwareAD && !m.cfg.MulticoreDiff

	switch atype {
	case mem.TypeIfetch:
		updateAD := softAD && !pte.A()
		if !(ok && pte.X() && pte.Pad() == 0) || updateAD {
			m.log.Debugf("ifetch denied: vaddr %x pte %x mode %d", vaddr, uint64(pte), mode)
			m.raisePageFault(trap.ExIPF, vaddr)
		}
	case mem.TypeRead:
		mxr := m.csr.Mstatus.MXR()
		var canLoad bool
		if m.hlvx {
			// HLVX reads through the execute permission, R is ignored
			canLoad = pte.X()
		} else {
			if m.cfg.RVH && virt {
				mxr = mxr || m.csr.Vsstatus.MXR()
			}
			canLoad = pte.R() || (mxr && pte.X())
		}
		updateAD := softAD && !pte.A()
		if !(ok && canLoad && pte.Pad() == 0) || updateAD {
			ex := uint64(trap.ExLPF)
			if m.csr.AMO {
				ex = trap.ExSPF
			}
			m.log.Debugf("load denied: vaddr %x pte %x mode %d", vaddr, uint64(pte), mode)
			m.raisePageFault(ex, vaddr)
		}
	default:
		updateAD := softAD && (!pte.A() || !pte.D())
		if !(ok && pte.W() && pte.Pad() == 0) || updateAD {
			m.log.Debugf("store denied: vaddr %x pte %x mode %d", vaddr, uint64(pte), mode)
			m.raisePageFault(trap.ExSPF, vaddr)
		}
	}
}
