package mmu

import (
	"github.com/sirupsen/logrus"

	"rvsim/config"
	"rvsim/csr"
	"rvsim/mem"
	"rvsim/pmp"
	"rvsim/trap"
)

// translation states per access class
const (
	MMUDirect = iota
	MMUTranslate
)

const (
	// PageShift is the bit width of the page offset
	PageShift = 12
	// PageSize - 4 KiB pages
	PageSize = 1 << PageShift
	// PageMask selects the page offset
	PageMask = PageSize - 1

	// PteSize - page table entries are 8 bytes
	PteSize = 8

	vpnMask   = 0x1ff
	gpVpnMask = 0x7ff
)

// RetCrossPage is returned by Translate when the access straddles a page
// boundary; the caller splits the access and translates each half.
const RetCrossPage = ^uint64(0)

// MMU is the privileged translation and trap core of one hart.
type MMU struct {
	csr *csr.File
	mem *mem.Memory
	pmp *pmp.Checker
	cfg *config.Config
	log *logrus.Logger

	// cached translation state per access class, recomputed on every
	// mode / satp-family change
	ifetchState int
	dataState   int
	hState      int

	// table level the last successful walk resolved its leaf at; sizes
	// the sub-page bitmap lookup
	ptLevel int

	// hypervisor load/store context. hldSt forces VS-stage translation
	// from M/HS mode; hlvx makes loads require execute permission.
	hlvx  bool
	hldSt bool

	// set when a trap leaves guest mode; collaborators flush their
	// address-translation caches and clear it
	flushTCache bool

	// co-simulation guide
	guidedExec bool
	guide      *ExecutionGuide

	// forced-fault bookkeeping, one slot per access type
	forceLastAddr  [3]uint64
	forceCount     [3]int
	gForceLastAddr [3]uint64
	gForceCount    [3]int
}

// New wires the MMU over the architectural state. The initial MMU state is
// computed immediately so callers may consult it before any CSR write.
func New(c *csr.File, m *mem.Memory, p *pmp.Checker, cfg *config.Config, log *logrus.Logger) *MMU {
	mm := &MMU{csr: c, mem: m, pmp: p, cfg: cfg, log: log}
	mm.UpdateMMUState()
	return mm
}

// PtLevel returns the table level of the last resolved leaf.
func (m *MMU) PtLevel() int { return m.ptLevel }

// SetHLVX marks the next load as a hypervisor virtual-machine load that
// requires execute permission (HLVX.HU / HLVX.WU).
func (m *MMU) SetHLVX(on bool) { m.hlvx = on }

// SetHLDST marks the current access as a hypervisor load/store, translated
// with the guest's context regardless of the current mode.
func (m *MMU) SetHLDST(on bool) { m.hldSt = on }

// TakeFlushTCache reports and clears the pending translation-cache flush
// request raised when a trap left guest mode.
func (m *MMU) TakeFlushTCache() bool {
	f := m.flushTCache
	m.flushTCache = false
	return f
}

// CheckBitmap applies the sub-page isolation gate at the level the last
// walk resolved, for callers finishing a translated access.
func (m *MMU) CheckBitmap(addr uint64) bool {
	return m.pmp.CheckBitmap(addr, m.ptLevel)
}

func vpnShift(i int) uint { return PageShift + 9*uint(i) }

func vpni(va uint64, i int) uint64 { return (va >> vpnShift(i)) & vpnMask }

// gvpn is the guest-physical page index: the top level of a guest walk is
// two bits wider to cover the guest-physical address space.
func gvpn(gpa uint64, i, maxLevel int) uint64 {
	if i == maxLevel-1 {
		return (gpa >> vpnShift(i)) & gpVpnMask
	}
	return (gpa >> vpnShift(i)) & vpnMask
}

// stateInternal derives Direct/Translate for the first translation stage.
// MPRV lets machine mode adopt MPP's view for data accesses, never fetches.
func (m *MMU) stateInternal(ifetch bool) int {
	mode := m.csr.Mode
	if m.csr.Mstatus.MPRV() && !ifetch {
		mode = m.csr.Mstatus.MPP()
	}
	if mode < csr.ModeM {
		sm := m.csr.Satp.Mode()
		if sm == csr.AtpSv39 || (m.cfg.Sv48 && sm == csr.AtpSv48) {
			return MMUTranslate
		}
	}
	return MMUDirect
}

// hStateInternal derives the state of guest-context accesses, where either
// the VS stage or the G stage being on means a walk is needed.
func (m *MMU) hStateInternal(ifetch bool) int {
	mode := m.csr.Mode
	if m.csr.Mstatus.MPRV() && !ifetch {
		mode = m.csr.Mstatus.MPP()
	}
	if mode < csr.ModeM {
		vm := m.csr.Vsatp.Mode()
		gm := m.csr.Hgatp.Mode()
		if vm == csr.AtpSv39 || gm == csr.AtpSv39 ||
			(m.cfg.Sv48 && (vm == csr.AtpSv48 || gm == csr.AtpSv48)) {
			return MMUTranslate
		}
	}
	return MMUDirect
}

// UpdateMMUState recomputes the cached per-class translation states. Must
// run after every write that can change mode, the virtualization flag or a
// satp-family register. Returns whether the data state flipped, which
// drives external translation-cache invalidation.
func (m *MMU) UpdateMMUState() bool {
	m.ifetchState = m.stateInternal(true)
	dataOld := m.dataState
	m.dataState = m.stateInternal(false)
	if m.cfg.RVH {
		m.hState = m.hStateInternal(false)
	}
	return m.dataState != dataOld
}

// misalignCheck raises the load/store-misaligned exception before any
// translation when soft alignment checking is configured. AMO loads count
// as stores.
func (m *MMU) misalignCheck(vaddr uint64, n int, atype int) {
	if n == 0 || vaddr&uint64(n-1) == 0 {
		return
	}
	m.log.Debugf("addr misaligned: vaddr %x len %d type %d pc %x", vaddr, n, atype, m.csr.PC)
	if !m.cfg.SoftAlignCheck {
		return
	}
	ex := uint64(trap.ExLAM)
	if m.csr.AMO || atype == mem.TypeWrite {
		ex = trap.ExSAM
	}
	m.setTrapValue(ex, vaddr)
	panic(trap.Exception{Num: ex, Tval: vaddr, Msg: "misaligned data address"})
}

// CheckMMUState tells the caller whether an access needs the walker. It
// also performs the checks that must precede any walk: data alignment and
// the canonical-address rule (unused high bits must sign-extend the top
// used bit), which faults with the access's page fault before any table
// is read.
func (m *MMU) CheckMMUState(vaddr uint64, n int, atype int) int {
	isIfetch := atype == mem.TypeIfetch

	if !isIfetch {
		m.misalignCheck(vaddr, n, atype)
	}

	enable39 := m.csr.Satp.Mode() == csr.AtpSv39
	enable48 := m.csr.Satp.Mode() == csr.AtpSv48
	if m.cfg.RVH && m.csr.V {
		enable39 = enable39 || m.csr.Vsatp.Mode() == csr.AtpSv39 || m.csr.Hgatp.Mode() == csr.AtpSv39
		enable48 = enable48 || m.csr.Vsatp.Mode() == csr.AtpSv48 || m.csr.Hgatp.Mode() == csr.AtpSv48
	}
	mode := m.csr.Mode
	if m.csr.Mstatus.MPRV() && !isIfetch {
		mode = m.csr.Mstatus.MPP()
	}
	vmEnable := mode < csr.ModeM && (enable39 || enable48)

	vaMsbsOk := true
	if vmEnable {
		if enable48 {
			msbs := vaddr >> 47
			vaMsbsOk = msbs == (1<<17)-1 || msbs == 0
		} else {
			msbs := vaddr >> 38
			vaMsbsOk = msbs == (1<<26)-1 || msbs == 0
		}
	}

	// a guest running with VS-stage translation off presents
	// guest-physical addresses directly: no sign-extension rule, but a
	// hard width limit
	gpf := false
	if m.cfg.RVH && m.csr.V && m.csr.Vsatp.Mode() == csr.AtpBare {
		var maxGpa uint64
		if enable48 {
			maxGpa = (1 << 50) - 1
		} else if enable39 {
			maxGpa = (1 << 41) - 1
		}
		if maxGpa != 0 {
			if vaddr&^maxGpa == 0 {
				vaMsbsOk = true
			} else {
				gpf = true
			}
		}
	}

	if !vaMsbsOk {
		if m.cfg.RVH && (m.hldSt || gpf) {
			m.raiseGuestExcep(vaddr, vaddr, atype)
		}
		m.raisePageFault(m.pageFaultCause(atype), vaddr)
	}

	if m.cfg.RVH && m.csr.V {
		return m.hState
	}
	if isIfetch {
		return m.ifetchState
	}
	if m.cfg.RVH && m.hldSt {
		return m.hState
	}
	return m.dataState
}

// pageFaultCause maps an access type to its page-fault cause. AMO loads
// are redirected to the store cause.
func (m *MMU) pageFaultCause(atype int) uint64 {
	switch atype {
	case mem.TypeIfetch:
		return trap.ExIPF
	case mem.TypeRead:
		if m.csr.AMO {
			return trap.ExSPF
		}
		return trap.ExLPF
	default:
		return trap.ExSPF
	}
}

// accessFaultCause maps an access type to its access-fault cause.
func accessFaultCause(atype int) uint64 {
	switch atype {
	case mem.TypeIfetch:
		return trap.ExIAF
	case mem.TypeWrite:
		return trap.ExSAF
	default:
		return trap.ExLAF
	}
}

// setTrapValue records a trap value in the register of the level the
// cause will trap into.
func (m *MMU) setTrapValue(ex uint64, val uint64) {
	switch {
	case m.cfg.RVH && m.csr.V && m.intrDelegVS(ex):
		m.csr.Vstval = val
	case m.intrDelegS(ex):
		m.csr.Stval = val
	default:
		m.csr.Mtval = val
	}
}

// raisePageFault records the faulting address and aborts the instruction.
func (m *MMU) raisePageFault(ex uint64, vaddr uint64) {
	if ex == trap.ExLPF || ex == trap.ExSPF {
		m.csr.AMO = false
	}
	m.setTrapValue(ex, vaddr)
	panic(trap.Exception{Num: ex, Tval: vaddr, Msg: "page fault"})
}

// RaiseAccessFault records the trap value for an access fault and aborts
// the instruction. For callers whose physical protection check failed
// after translation already succeeded.
func (m *MMU) RaiseAccessFault(atype int, vaddr uint64) {
	m.raiseAccessFault(accessFaultCause(atype), vaddr)
}

// raiseAccessFault aborts the instruction; raised when a table fetch lands
// on a device window or outside backed memory.
func (m *MMU) raiseAccessFault(ex uint64, vaddr uint64) {
	m.setTrapValue(ex, vaddr)
	panic(trap.Exception{Num: ex, Tval: vaddr, Msg: "access fault during table fetch"})
}
