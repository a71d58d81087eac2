package mmu

import (
	"rvsim/csr"
	"rvsim/trap"
)

// intrDelegS reports whether the cause is delegated from M to HS level.
func (m *MMU) intrDelegS(no uint64) bool {
	if m.csr.Mode == csr.ModeM {
		return false
	}
	if no&trap.InterruptBit != 0 {
		return m.csr.Mideleg>>(no&^trap.InterruptBit)&1 != 0
	}
	return m.csr.Medeleg>>no&1 != 0
}

// intrDelegVS reports whether the cause is further delegated to VS level.
// Meaningful only while virtualization is on.
func (m *MMU) intrDelegVS(no uint64) bool {
	if !m.intrDelegS(no) {
		return false
	}
	if no&trap.InterruptBit != 0 {
		return m.csr.Hideleg>>(no&^trap.InterruptBit)&1 != 0
	}
	return m.csr.Hedeleg>>no&1 != 0
}

// trapPC computes the trap target from an xtvec register. Vectored mode
// offsets interrupts by four bytes per cause; only bit 0 selects it, the
// reserved bit 1 is ignored.
func trapPC(xtvec, xcause uint64) uint64 {
	base := xtvec &^ uint64(3)
	if xtvec&1 == 1 && xcause&trap.InterruptBit != 0 {
		return base + 4*(xcause&^trap.InterruptBit)
	}
	return base
}

// RaiseTrap performs the full trap entry for cause no at instruction epc:
// pick the target level by delegation, save the interrupted context into
// that level's CSRs, update mode and virtualization, recompute the MMU
// state, and return the address execution resumes at.
func (m *MMU) RaiseTrap(no, epc uint64) uint64 {
	// the hypervisor load/store context ends with the instruction, taken
	// trap or not, but still colors this trap's GVA
	hldStTemp := m.hldSt
	m.hldSt = false

	isIntr := no&trap.InterruptBit != 0

	if m.cfg.RVH && m.csr.V && m.intrDelegVS(no) {
		cause := no
		if isIntr {
			// VS-level interrupt causes are numbered one below their
			// hs-level aliases
			cause = ((no &^ trap.InterruptBit) - 1) | trap.InterruptBit
		}
		m.csr.Vscause = cause
		m.csr.Vsepc = epc
		m.csr.Vsstatus.SetSPP(m.csr.Mode)
		m.csr.Vsstatus.SetSPIE(m.csr.Vsstatus.SIE())
		m.csr.Vsstatus.SetSIE(false)
		switch no {
		case trap.ExBP:
			m.csr.Vstval = epc
		case trap.ExII, trap.ExVI:
			if m.cfg.TvalIllegalInstr {
				m.csr.Vstval = uint64(m.csr.Instr)
			} else {
				m.csr.Vstval = 0
			}
		case trap.ExIPF, trap.ExLPF, trap.ExSPF,
			trap.ExIAM, trap.ExLAM, trap.ExSAM,
			trap.ExIAF, trap.ExLAF, trap.ExSAF:
			// written at the raise site
		default:
			m.csr.Vstval = 0
		}
		m.csr.Mode = csr.ModeS
		m.UpdateMMUState()
		m.log.Debugf("trap %x to VS, pc %x", no, epc)
		return trapPC(m.csr.Vstvec, cause)
	}

	// MPRV redirects M-mode data accesses into the MPV world, so a fault
	// taken under it reports the guest-virtual-address flag of that world
	virt := m.csr.V
	if m.csr.Mstatus.MPRV() {
		virt = m.csr.Mstatus.MPV()
	}
	isGuestFault := no == trap.ExIGPF || no == trap.ExLGPF || no == trap.ExSGPF

	if m.intrDelegS(no) {
		if m.cfg.RVH {
			gva := isGuestFault
			if virt || hldStTemp {
				gva = gva || (no <= 7 && no != trap.ExII) ||
					no == trap.ExIPF || no == trap.ExLPF || no == trap.ExSPF
			}
			m.csr.Hstatus.SetGVA(gva)
			m.csr.Hstatus.SetSPV(m.csr.V)
			if m.csr.V {
				m.csr.Hstatus.SetSPVP(m.csr.Mode)
			}
			if m.csr.V {
				m.flushTCache = true
			}
			m.csr.V = false
		}
		m.csr.Scause = no
		m.csr.Sepc = epc
		m.csr.Mstatus.SetSPP(m.csr.Mode)
		m.csr.Mstatus.SetSPIE(m.csr.Mstatus.SIE())
		m.csr.Mstatus.SetSIE(false)
		switch no {
		case trap.ExBP:
			m.csr.Stval = epc
		case trap.ExII, trap.ExVI:
			if m.cfg.TvalIllegalInstr {
				m.csr.Stval = uint64(m.csr.Instr)
			} else {
				m.csr.Stval = 0
			}
		case trap.ExIPF, trap.ExLPF, trap.ExSPF,
			trap.ExIGPF, trap.ExLGPF, trap.ExSGPF,
			trap.ExIAM, trap.ExLAM, trap.ExSAM,
			trap.ExIAF, trap.ExLAF, trap.ExSAF:
			// stval (and htval for guest faults) written at the raise site
		default:
			m.csr.Stval = 0
		}
		if !isGuestFault {
			// only guest faults may leave a guest-physical trap value
			m.csr.Htval = 0
		}
		m.csr.Htinst = 0
		m.csr.Mode = csr.ModeS
		m.UpdateMMUState()
		m.log.Debugf("trap %x to S, pc %x", no, epc)
		return trapPC(m.csr.Stvec, no)
	}

	if m.cfg.RVH {
		gva := isGuestFault
		if virt || hldStTemp {
			gva = gva || (no <= 7 && no != trap.ExII) ||
				no == trap.ExIPF || no == trap.ExLPF || no == trap.ExSPF
		}
		m.csr.Mstatus.SetGVA(gva)
		m.csr.Mstatus.SetMPV(m.csr.V)
		if m.csr.V {
			m.flushTCache = true
		}
		m.csr.V = false
	}
	if m.cfg.Sdtrig {
		// entering M suppresses triggers until mret restores MTE
		m.csr.Tcontrol.SetMPTE(m.csr.Tcontrol.MTE())
		m.csr.Tcontrol.SetMTE(false)
	}
	m.csr.Mcause = no
	m.csr.Mepc = epc
	m.csr.Mstatus.SetMPP(m.csr.Mode)
	m.csr.Mstatus.SetMPIE(m.csr.Mstatus.MIE())
	m.csr.Mstatus.SetMIE(false)
	switch no {
	case trap.ExBP:
		m.csr.Mtval = epc
	case trap.ExII, trap.ExVI:
		if m.cfg.TvalIllegalInstr {
			m.csr.Mtval = uint64(m.csr.Instr)
		} else {
			m.csr.Mtval = 0
		}
	case trap.ExIPF, trap.ExLPF, trap.ExSPF,
		trap.ExIGPF, trap.ExLGPF, trap.ExSGPF,
		trap.ExIAM, trap.ExLAM, trap.ExSAM,
		trap.ExIAF, trap.ExLAF, trap.ExSAF:
		// mtval (and mtval2 for guest faults) written at the raise site
	default:
		m.csr.Mtval = 0
	}
	if !isGuestFault {
		m.csr.Mtval2 = 0
	}
	m.csr.Mtinst = 0
	m.csr.Mode = csr.ModeM
	m.UpdateMMUState()
	m.log.Debugf("trap %x to M, pc %x", no, epc)
	return trapPC(m.csr.Mtvec, no)
}

// interrupt priority, highest first
var intrPriority = []uint64{
	trap.IrqMEIP, trap.IrqMSIP, trap.IrqMTIP,
	trap.IrqSEIP, trap.IrqSSIP, trap.IrqSTIP,
	trap.IrqUEIP, trap.IrqUSIP, trap.IrqUTIP,
}

var intrPriorityVirt = []uint64{
	trap.IrqVSEIP, trap.IrqVSSIP, trap.IrqVSTIP,
	trap.IrqSGEI, trap.IrqLCOFI,
}

// QueryPendingInterrupt returns the highest-priority interrupt that is
// pending, enabled, and allowed by the global enables of the level it
// would trap into, or IntrEmpty.
func (m *MMU) QueryPendingInterrupt() uint64 {
	pending := m.csr.Mie & m.csr.Mip
	if pending == 0 {
		return trap.IntrEmpty
	}

	order := intrPriority
	if m.cfg.RVH {
		order = append(append([]uint64{}, intrPriority...), intrPriorityVirt...)
		if !m.cfg.Sscofpmf {
			order = order[:len(order)-1]
		}
	}

	mie := m.csr.Mstatus.MIE()
	sie := m.csr.Mstatus.SIE()
	for _, irq := range order {
		if pending>>irq&1 == 0 {
			continue
		}
		no := irq | trap.InterruptBit

		if m.cfg.RVH {
			var enabled bool
			switch {
			case m.intrDelegVS(no):
				// a line delegated into the guest waits until the hart
				// actually runs in guest mode
				if !m.csr.V {
					continue
				}
				enabled = m.csr.Mode < csr.ModeS ||
					(m.csr.Mode == csr.ModeS && m.csr.Vsstatus.SIE())
			case m.intrDelegS(no):
				enabled = (m.csr.Mode == csr.ModeS && (sie || m.csr.V)) ||
					m.csr.Mode < csr.ModeS
			default:
				enabled = (m.csr.Mode == csr.ModeM && mie) || m.csr.Mode < csr.ModeM
			}
			if enabled {
				return no
			}
			continue
		}

		var enabled bool
		if m.intrDelegS(no) {
			enabled = (m.csr.Mode == csr.ModeS && sie) || m.csr.Mode < csr.ModeS
		} else {
			enabled = (m.csr.Mode == csr.ModeM && mie) || m.csr.Mode < csr.ModeM
		}
		if enabled {
			return no
		}
	}
	return trap.IntrEmpty
}
