package mmu

import (
	"rvsim/mem"
	"rvsim/trap"
)

// ExecutionGuide carries the reference model's verdict for the current
// instruction in co-simulation: a fault the model took that this side
// must reproduce, or a jump target this side cannot compute on its own.
type ExecutionGuide struct {
	ForceRaiseException bool
	ExceptionNum        uint64
	Mtval               uint64
	Stval               uint64
	Vstval              uint64
	Mtval2              uint64
	Htval               uint64

	ForceSetJumpTarget bool
	JumpTarget         uint64
}

// SetGuide attaches (or detaches, with nil) the co-simulation guide.
func (m *MMU) SetGuide(g *ExecutionGuide) {
	m.guide = g
	m.guidedExec = g != nil
}

// Guide returns the attached guide, nil when not co-simulating.
func (m *MMU) Guide() *ExecutionGuide { return m.guide }

// forceRecord tracks repeated forced faults at one address so a guide
// stuck on the same instruction cannot livelock the loop: exactly the
// fifth repeat is skipped, letting the access complete once. slot is
// 0/1/2 for ifetch/load/store.
func forceRecord(lastAddr *[3]uint64, count *[3]int, slot int, vaddr uint64) bool {
	if lastAddr[slot] != vaddr {
		lastAddr[slot] = vaddr
		count[slot] = 0
	}
	count[slot]++
	return count[slot] == 5
}

func forceSlot(atype int) int {
	switch atype {
	case mem.TypeIfetch:
		return 0
	case mem.TypeRead:
		return 1
	default:
		return 2
	}
}

// crossPageFetch tolerates the legal trap-value mismatch of a fetch that
// straddled a page boundary: this side reports the first page's last
// word, the reference model the second page.
func crossPageFetch(vaddr, guideVal uint64) bool {
	return vaddr&PageMask == 0xffe && guideVal&PageMask == 0
}

// forceRaisePF reproduces the reference model's regular page fault when
// it applies to this access. Returns normally when the guide's exception
// is of another class.
func (m *MMU) forceRaisePF(vaddr uint64, atype int) {
	if !m.guidedExec || !m.guide.ForceRaiseException {
		return
	}
	g := m.guide
	ifetch := atype == mem.TypeIfetch

	switch {
	case ifetch && g.ExceptionNum == trap.ExIPF:
		if forceRecord(&m.forceLastAddr, &m.forceCount, forceSlot(atype), vaddr) {
			return
		}
		// the fetch fault takes its trap value from the guide, warning
		// when it disagrees with what this side computed
		var guideVal uint64
		switch {
		case m.cfg.RVH && m.csr.V && m.intrDelegVS(trap.ExIPF):
			guideVal = g.Vstval
			m.csr.Vstval = guideVal
		case m.intrDelegS(trap.ExIPF):
			guideVal = g.Stval
			m.csr.Stval = guideVal
		default:
			guideVal = g.Mtval
			m.csr.Mtval = guideVal
		}
		if vaddr != guideVal && !crossPageFetch(vaddr, guideVal) {
			m.log.Warnf("forced ipf tval mismatch: here %x model %x", vaddr, guideVal)
		}
		panic(trap.Exception{Num: trap.ExIPF, Tval: guideVal, Msg: "forced instruction page fault"})
	case !ifetch && atype == mem.TypeRead && g.ExceptionNum == trap.ExLPF:
		if forceRecord(&m.forceLastAddr, &m.forceCount, forceSlot(atype), vaddr) {
			return
		}
		m.setTrapValue(trap.ExLPF, vaddr)
		panic(trap.Exception{Num: trap.ExLPF, Tval: vaddr, Msg: "forced load page fault"})
	case atype == mem.TypeWrite && g.ExceptionNum == trap.ExSPF:
		if forceRecord(&m.forceLastAddr, &m.forceCount, forceSlot(atype), vaddr) {
			return
		}
		m.setTrapValue(trap.ExSPF, vaddr)
		panic(trap.Exception{Num: trap.ExSPF, Tval: vaddr, Msg: "forced store page fault"})
	}
}

// forceRaiseGPF is the guest-page-fault counterpart of forceRaisePF.
func (m *MMU) forceRaiseGPF(vaddr uint64, atype int) {
	if !m.guidedExec || !m.guide.ForceRaiseException {
		return
	}
	g := m.guide
	ifetch := atype == mem.TypeIfetch

	switch {
	case ifetch && g.ExceptionNum == trap.ExIGPF:
		if forceRecord(&m.gForceLastAddr, &m.gForceCount, forceSlot(atype), vaddr) {
			return
		}
		var guideVal uint64
		if m.intrDelegS(trap.ExIGPF) {
			guideVal = g.Stval
			m.csr.Stval = guideVal
			m.csr.Htval = g.Htval
		} else {
			guideVal = g.Mtval
			m.csr.Mtval = guideVal
			m.csr.Mtval2 = g.Mtval2
		}
		if vaddr != guideVal && !crossPageFetch(vaddr, guideVal) {
			m.log.Warnf("forced igpf tval mismatch: here %x model %x", vaddr, guideVal)
		}
		panic(trap.Exception{Num: trap.ExIGPF, Tval: guideVal, Gtval: g.Htval, Msg: "forced instruction guest-page fault"})
	case !ifetch && atype == mem.TypeRead && g.ExceptionNum == trap.ExLGPF:
		if forceRecord(&m.gForceLastAddr, &m.gForceCount, forceSlot(atype), vaddr) {
			return
		}
		m.setTrapValue(trap.ExLGPF, vaddr)
		m.csr.Htval = g.Htval
		m.csr.Mtval2 = g.Mtval2
		panic(trap.Exception{Num: trap.ExLGPF, Tval: vaddr, Gtval: g.Htval, Msg: "forced load guest-page fault"})
	case atype == mem.TypeWrite && g.ExceptionNum == trap.ExSGPF:
		if forceRecord(&m.gForceLastAddr, &m.gForceCount, forceSlot(atype), vaddr) {
			return
		}
		m.setTrapValue(trap.ExSGPF, vaddr)
		m.csr.Htval = g.Htval
		m.csr.Mtval2 = g.Mtval2
		panic(trap.Exception{Num: trap.ExSGPF, Tval: vaddr, Gtval: g.Htval, Msg: "forced store guest-page fault"})
	}
}
