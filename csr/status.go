package csr

/**
Status word layouts. Values here are bit positions, not powers of 2 -
same convention as the privileged specification tables.
*/

const (
	sieFlag  = 1
	mieFlag  = 3
	spieFlag = 5
	mpieFlag = 7
	sppFlag  = 8
	mppShift = 11 // two bits
	mprvFlag = 17
	sumFlag  = 18
	mxrFlag  = 19
	gvaFlag  = 38
	mpvFlag  = 39
)

// Mstatus is the machine status register. Vsstatus shares the layout for
// the fields this core touches, so it reuses the type.
type Mstatus uint64

// SIE returns the supervisor interrupt enable bit
func (s *Mstatus) SIE() bool { return s.getFlag(sieFlag) }

// SetSIE sets the supervisor interrupt enable bit
func (s *Mstatus) SetSIE(status bool) { s.setFlag(sieFlag, status) }

// MIE returns the machine interrupt enable bit
func (s *Mstatus) MIE() bool { return s.getFlag(mieFlag) }

// SetMIE sets the machine interrupt enable bit
func (s *Mstatus) SetMIE(status bool) { s.setFlag(mieFlag, status) }

// SPIE returns the supervisor previous interrupt enable bit
func (s *Mstatus) SPIE() bool { return s.getFlag(spieFlag) }

// SetSPIE sets the supervisor previous interrupt enable bit
func (s *Mstatus) SetSPIE(status bool) { s.setFlag(spieFlag, status) }

// MPIE returns the machine previous interrupt enable bit
func (s *Mstatus) MPIE() bool { return s.getFlag(mpieFlag) }

// SetMPIE sets the machine previous interrupt enable bit
func (s *Mstatus) SetMPIE(status bool) { s.setFlag(mpieFlag, status) }

// SPP returns the supervisor previous privilege level (U or S)
func (s *Mstatus) SPP() uint64 { return (uint64(*s) >> sppFlag) & 1 }

// SetSPP records the privilege level the trap came from
func (s *Mstatus) SetSPP(mode uint64) { s.setFlag(sppFlag, mode != ModeU) }

// MPP returns the machine previous privilege level
func (s *Mstatus) MPP() uint64 { return (uint64(*s) >> mppShift) & 3 }

// SetMPP records the privilege level the trap came from
func (s *Mstatus) SetMPP(mode uint64) {
	*s &^= Mstatus(3) << mppShift
	*s |= Mstatus(mode&3) << mppShift
}

// MPRV - modify privilege: M-mode data accesses use the MPP mode's
// memory view. Never applies to instruction fetches.
func (s *Mstatus) MPRV() bool { return s.getFlag(mprvFlag) }

// SetMPRV sets the modify-privilege bit
func (s *Mstatus) SetMPRV(status bool) { s.setFlag(mprvFlag, status) }

// SUM - permit supervisor access to user-accessible pages
func (s *Mstatus) SUM() bool { return s.getFlag(sumFlag) }

// SetSUM sets the supervisor-user-memory bit
func (s *Mstatus) SetSUM(status bool) { s.setFlag(sumFlag, status) }

// MXR - make executable pages readable
func (s *Mstatus) MXR() bool { return s.getFlag(mxrFlag) }

// SetMXR sets the make-executable-readable bit
func (s *Mstatus) SetMXR(status bool) { s.setFlag(mxrFlag, status) }

// GVA - the trap value holds a guest virtual address
func (s *Mstatus) GVA() bool { return s.getFlag(gvaFlag) }

// SetGVA sets the guest-virtual-address bit
func (s *Mstatus) SetGVA(status bool) { s.setFlag(gvaFlag, status) }

// MPV returns the machine previous virtualization mode
func (s *Mstatus) MPV() bool { return s.getFlag(mpvFlag) }

// SetMPV records the virtualization mode the trap came from
func (s *Mstatus) SetMPV(status bool) { s.setFlag(mpvFlag, status) }

// generic get flag function
func (s *Mstatus) getFlag(flag uint) bool {
	return (*s & (1 << flag)) > 0
}

// generic set flag function
func (s *Mstatus) setFlag(flag uint, status bool) {
	if status {
		*s |= 1 << flag
	} else {
		*s &^= 1 << flag
	}
}

// hstatus bit positions
const (
	hGvaFlag  = 6
	hSpvFlag  = 7
	hSpvpFlag = 8
)

// Hstatus is the hypervisor status register.
type Hstatus uint64

// GVA - the trap value holds a guest virtual address
func (h *Hstatus) GVA() bool { return (*h & (1 << hGvaFlag)) > 0 }

// SetGVA sets the guest-virtual-address bit
func (h *Hstatus) SetGVA(status bool) { h.setFlag(hGvaFlag, status) }

// SPV returns the supervisor previous virtualization mode
func (h *Hstatus) SPV() bool { return (*h & (1 << hSpvFlag)) > 0 }

// SetSPV records the virtualization mode the trap came from
func (h *Hstatus) SetSPV(status bool) { h.setFlag(hSpvFlag, status) }

// SPVP returns the supervisor previous virtual privilege: the effective
// mode of hypervisor load/store instructions (0: VU, 1: VS)
func (h *Hstatus) SPVP() uint64 { return (uint64(*h) >> hSpvpFlag) & 1 }

// SetSPVP records the guest privilege level the trap came from
func (h *Hstatus) SetSPVP(mode uint64) { h.setFlag(hSpvpFlag, mode != ModeU) }

func (h *Hstatus) setFlag(flag uint, status bool) {
	if status {
		*h |= 1 << flag
	} else {
		*h &^= 1 << flag
	}
}

// tcontrol bit positions (debug trigger extension)
const (
	mteFlag  = 3
	mpteFlag = 7
)

// Tcontrol is the trigger control register of the debug extension.
type Tcontrol uint64

// MTE - machine-mode trigger enable
func (t *Tcontrol) MTE() bool { return (*t & (1 << mteFlag)) > 0 }

// SetMTE sets the machine-mode trigger enable bit
func (t *Tcontrol) SetMTE(status bool) { t.setFlag(mteFlag, status) }

// MPTE - previous machine-mode trigger enable, restored by mret
func (t *Tcontrol) MPTE() bool { return (*t & (1 << mpteFlag)) > 0 }

// SetMPTE snapshots the trigger enable on trap entry
func (t *Tcontrol) SetMPTE(status bool) { t.setFlag(mpteFlag, status) }

func (t *Tcontrol) setFlag(flag uint, status bool) {
	if status {
		*t |= 1 << flag
	} else {
		*t &^= 1 << flag
	}
}

// mbmc bit positions (sub-page bitmap isolation)
const (
	bmeFlag   = 0
	cmodeFlag = 1
	bmaShift  = 6
)

// Mbmc is the bitmap-isolation control register.
type Mbmc uint64

// BME - bitmap isolation enabled
func (b *Mbmc) BME() bool { return (*b & (1 << bmeFlag)) > 0 }

// SetBME sets the bitmap enable bit
func (b *Mbmc) SetBME(status bool) { b.setFlag(bmeFlag, status) }

// CMODE - secure mode; bitmap checks are skipped while set
func (b *Mbmc) CMODE() bool { return (*b & (1 << cmodeFlag)) > 0 }

// SetCMODE sets the secure-mode bit
func (b *Mbmc) SetCMODE(status bool) { b.setFlag(cmodeFlag, status) }

// BMA returns the bitmap base address, 64-byte aligned
func (b *Mbmc) BMA() uint64 { return (uint64(*b) >> bmaShift) << bmaShift }

// SetBMA sets the bitmap base address, dropping unaligned low bits
func (b *Mbmc) SetBMA(addr uint64) {
	*b &^= Mbmc(^(uint64(1)<<bmaShift - 1))
	*b |= Mbmc(addr &^ ((1 << bmaShift) - 1))
}

func (b *Mbmc) setFlag(flag uint, status bool) {
	if status {
		*b |= 1 << flag
	} else {
		*b &^= 1 << flag
	}
}
