package csr

// address translation modes, shared by satp, vsatp and hgatp
const (
	AtpBare = 0
	AtpSv39 = 8
	AtpSv48 = 9
)

// Atp is the layout shared by the satp family: a 4-bit mode, a 16-bit
// ASID/VMID (ignored here) and a 44-bit root-table physical page number.
type Atp uint64

// Mode returns the translation mode field
func (a *Atp) Mode() uint64 { return uint64(*a) >> 60 }

// SetMode sets the translation mode field
func (a *Atp) SetMode(mode uint64) {
	*a &^= Atp(0xf) << 60
	*a |= Atp(mode&0xf) << 60
}

// PPN returns the physical page number of the root table
func (a *Atp) PPN() uint64 { return uint64(*a) & ((1 << 44) - 1) }

// SetPPN sets the physical page number of the root table
func (a *Atp) SetPPN(ppn uint64) {
	*a &^= Atp((1 << 44) - 1)
	*a |= Atp(ppn & ((1 << 44) - 1))
}
