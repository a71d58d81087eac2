package csr

/**
CSR register file package.
Every field the privileged core reads or writes lives here; the trap
delegation engine and explicit CSR instructions are the only writers.
*/

// privilege levels. ModeRS is the reserved encoding between S and M.
const (
	ModeU  = 0
	ModeS  = 1
	ModeRS = 2
	ModeM  = 3
)

// File keeps the architectural state of one hart.
type File struct {
	// register file snapshot, synced verbatim during co-simulation
	GPR [32]uint64
	PC  uint64

	// Mode - current privilege level, always one of ModeU/ModeS/ModeM
	Mode uint64

	// V - guest (virtualization) mode active. Only meaningful when the
	// hypervisor extension is configured; cleared on traps into M or HS.
	V bool

	Mstatus  Mstatus
	Vsstatus Mstatus
	Hstatus  Hstatus

	Mepc, Sepc, Vsepc       uint64
	Mcause, Scause, Vscause uint64
	Mtval, Stval, Vstval    uint64
	Mtval2, Htval           uint64
	Mtinst, Htinst          uint64
	Mtvec, Stvec, Vstvec    uint64

	Satp, Vsatp, Hgatp Atp

	Medeleg, Mideleg uint64
	Hedeleg, Hideleg uint64
	Mie, Mip         uint64

	Mscratch, Sscratch uint64

	// physical memory protection: address registers plus packed
	// configuration bytes, 8 per pmpcfg register
	Pmpaddr [16]uint64
	Pmpcfg  [2]uint64

	Mbmc     Mbmc
	Tcontrol Tcontrol

	// execution state threaded through translation:

	// AMO - the current data access is part of an atomic memory operation,
	// so its load half reports store faults. Cleared when a fault is taken.
	AMO bool

	// Instr - bits of the instruction being executed, recorded into xtval
	// on illegal-instruction traps when so configured
	Instr uint32
}

// PmpcfgByte returns the 8-bit configuration of PMP entry i.
func (f *File) PmpcfgByte(i int) uint8 {
	return uint8(f.Pmpcfg[i/8] >> (8 * (i % 8)))
}

// SetPmpcfgByte sets the 8-bit configuration of PMP entry i.
func (f *File) SetPmpcfgByte(i int, cfg uint8) {
	shift := 8 * (i % 8)
	f.Pmpcfg[i/8] &^= uint64(0xff) << shift
	f.Pmpcfg[i/8] |= uint64(cfg) << shift
}
