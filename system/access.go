package system

import (
	"rvsim/mem"
	"rvsim/mmu"
)

/**
Memory access entry points. Every access goes: MMU state check (alignment,
canonical rule), walker if translation is on, physical protection, bitmap
gate, then the raw memory image. Accesses that straddle a page boundary
are split here and each half translated on its own.
*/

// Fetch translates and reads the 32-bit instruction word at the current
// program counter and records it for trap-value reporting.
func (sys *System) Fetch() uint32 {
	instr := uint32(sys.read(sys.CSR.PC, 4, mem.TypeIfetch))
	sys.CSR.Instr = instr
	return instr
}

// Load translates and reads n bytes at vaddr.
func (sys *System) Load(vaddr uint64, n int) uint64 {
	return sys.read(vaddr, n, mem.TypeRead)
}

// Store translates and writes n bytes at vaddr.
func (sys *System) Store(vaddr uint64, n int, val uint64) {
	state := sys.MMU.CheckMMUState(vaddr, n, mem.TypeWrite)
	paddr := vaddr
	if state == mmu.MMUTranslate {
		paddr = sys.MMU.Translate(vaddr, n, mem.TypeWrite)
		if paddr == mmu.RetCrossPage {
			// split at the page boundary, low half first
			lo := int(mmu.PageSize - vaddr&mmu.PageMask)
			sys.Store(vaddr, lo, val)
			sys.Store(vaddr+uint64(lo), n-lo, val>>(8*uint(lo)))
			return
		}
	}
	sys.checkPhysical(paddr, vaddr, n, mem.TypeWrite, state == mmu.MMUTranslate)
	if !sys.Mem.Write(paddr, n, val) {
		sys.MMU.RaiseAccessFault(mem.TypeWrite, vaddr)
	}
}

func (sys *System) read(vaddr uint64, n int, atype int) uint64 {
	state := sys.MMU.CheckMMUState(vaddr, n, atype)
	paddr := vaddr
	if state == mmu.MMUTranslate {
		paddr = sys.MMU.Translate(vaddr, n, atype)
		if paddr == mmu.RetCrossPage {
			lo := int(mmu.PageSize - vaddr&mmu.PageMask)
			low := sys.read(vaddr, lo, atype)
			high := sys.read(vaddr+uint64(lo), n-lo, atype)
			return low | high<<(8*uint(lo))
		}
	}
	sys.checkPhysical(paddr, vaddr, n, atype, state == mmu.MMUTranslate)
	val, ok := sys.Mem.Read(paddr, n)
	if !ok {
		sys.MMU.RaiseAccessFault(atype, vaddr)
	}
	return val
}

// checkPhysical applies the protection layers below translation. The
// bitmap gate only applies to translated accesses, sized by the level the
// walk resolved at.
func (sys *System) checkPhysical(paddr, vaddr uint64, n int, atype int, translated bool) {
	if !sys.PMP.CheckPermission(paddr, n, atype, sys.CSR.Mode) {
		sys.MMU.RaiseAccessFault(atype, vaddr)
	}
	if translated && !sys.MMU.CheckBitmap(paddr) {
		sys.MMU.RaiseAccessFault(atype, vaddr)
	}
}
