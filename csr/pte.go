package csr

// PTE flag bit positions
const (
	pteVFlag = 0
	pteRFlag = 1
	pteWFlag = 2
	pteXFlag = 3
	pteUFlag = 4
	pteGFlag = 5
	pteAFlag = 6
	pteDFlag = 7
)

// Pte is a radix page-table entry. An entry with R, W and X all clear is a
// pointer to the next table level, never a leaf.
type Pte uint64

// V - the entry is valid
func (p Pte) V() bool { return p.getFlag(pteVFlag) }

// R - the page may be read
func (p Pte) R() bool { return p.getFlag(pteRFlag) }

// W - the page may be written
func (p Pte) W() bool { return p.getFlag(pteWFlag) }

// X - instructions may be fetched from the page
func (p Pte) X() bool { return p.getFlag(pteXFlag) }

// U - the page belongs to user mode
func (p Pte) U() bool { return p.getFlag(pteUFlag) }

// G - the mapping is global across address spaces
func (p Pte) G() bool { return p.getFlag(pteGFlag) }

// A - the page was accessed since A was last cleared
func (p Pte) A() bool { return p.getFlag(pteAFlag) }

// D - the page was written since D was last cleared
func (p Pte) D() bool { return p.getFlag(pteDFlag) }

// Leaf - any of R/W/X set makes the entry a leaf of the table tree
func (p Pte) Leaf() bool { return p.R() || p.W() || p.X() }

// Ppn returns the 44-bit physical page number
func (p Pte) Ppn() uint64 { return (uint64(p) >> 10) & ((1 << 44) - 1) }

// Pad returns the reserved high bits, which must read as zero
func (p Pte) Pad() uint64 { return uint64(p) >> 54 }

func (p Pte) getFlag(flag uint) bool {
	return (p & (1 << flag)) > 0
}

// MakePte assembles an entry from a physical page number and flag bits.
// Flags is the raw low-byte value (V=1, R=2, W=4, X=8, U=16, G=32, A=64, D=128).
func MakePte(ppn uint64, flags uint64) Pte {
	return Pte((ppn&((1<<44)-1))<<10 | flags&0x3ff)
}
