package system

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"rvsim/config"
	"rvsim/console"
	"rvsim/csr"
	"rvsim/logger"
	"rvsim/mem"
	"rvsim/mmu"
	"rvsim/pmp"
	"rvsim/trap"
)

// System wires one hart: architectural state, physical memory, the
// protection checker and the MMU on top of both.
type System struct {
	CSR *csr.File
	Mem *mem.Memory
	PMP *pmp.Checker
	MMU *mmu.MMU

	cfg *config.Config
	log *logrus.Logger

	// console and status output:
	console console.Console

	halted bool
	steps  uint64
}

// InitializeSystem builds a hart from the capability matrix. The hart
// comes up in machine mode with the program counter at the memory base,
// which is where boot images are loaded.
func InitializeSystem(cfg *config.Config, c console.Console) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sys := new(System)
	sys.cfg = cfg
	sys.console = c
	sys.log = logger.New(cfg.LogPath)

	sys.CSR = &csr.File{Mode: csr.ModeM, PC: cfg.MemoryBase}
	sys.Mem = mem.New(cfg.MemoryBase, cfg.MemorySize)
	sys.PMP = pmp.New(sys.CSR, sys.Mem, cfg)
	sys.MMU = mmu.New(sys.CSR, sys.Mem, sys.PMP, cfg, sys.log)

	if sys.console != nil {
		_ = sys.console.WriteConsole("Initializing rvsim hart.\n")
	}
	return sys, nil
}

// AttachGuide attaches the co-simulation guide to the hart.
func (sys *System) AttachGuide(g *mmu.ExecutionGuide) {
	sys.MMU.SetGuide(g)
}

// Halt stops the run loop after the current step, keeping all state.
func (sys *System) Halt() { sys.halted = true }

// Halted reports whether the run loop has been stopped.
func (sys *System) Halted() bool { return sys.halted }

// Steps returns the number of instruction bodies completed without trap.
func (sys *System) Steps() uint64 { return sys.steps }

// Log exposes the hart's logger for collaborators sharing the sink.
func (sys *System) Log() *logrus.Logger { return sys.log }

// Run steps the hart until halted.
func (sys *System) Run(body func(*System)) {
	for !sys.halted {
		sys.Step(body)
	}
}

// Step runs one instruction body. A pending enabled interrupt preempts
// the body; a trap raised inside it is recovered here, turned into a trap
// entry and the next program counter.
func (sys *System) Step(body func(*System)) {
	if irq := sys.MMU.QueryPendingInterrupt(); irq != trap.IntrEmpty {
		sys.log.Debugf("taking interrupt %x at pc %x", irq&^trap.InterruptBit, sys.CSR.PC)
		sys.CSR.PC = sys.MMU.RaiseTrap(irq, sys.CSR.PC)
		return
	}
	sys.step(body)
}

// the sole recovery point for trap aborts
func (sys *System) step(body func(*System)) {
	defer func() {
		t := recover()
		switch t := t.(type) {
		case trap.Exception:
			sys.log.Debugf("trap %x at pc %x: %s", t.Num, sys.CSR.PC, t.Msg)
			sys.CSR.PC = sys.MMU.RaiseTrap(t.Num, sys.CSR.PC)
			if g := sys.MMU.Guide(); g != nil && g.ForceSetJumpTarget {
				sys.CSR.PC = g.JumpTarget
			}
			if sys.MMU.TakeFlushTCache() {
				sys.log.Debugf("leaving guest mode, translation caches flushed")
			}
		case nil:
			// ignore
		default:
			panic(t)
		}
	}()

	body(sys)
	sys.steps++
}

// DumpCSRs writes the privileged state snapshot the monitor displays.
func (sys *System) DumpCSRs(w io.Writer) {
	modeNames := map[uint64]string{
		csr.ModeU: "U", csr.ModeS: "S", csr.ModeM: "M",
	}
	mode := modeNames[sys.CSR.Mode]
	if sys.CSR.V {
		mode = "V" + mode
	}
	fmt.Fprintf(w, "pc:%016x mode:%-2s steps:%d\n", sys.CSR.PC, mode, sys.steps)
	fmt.Fprintf(w, "mstatus:%016x mcause:%016x mepc:%016x mtval:%016x\n",
		uint64(sys.CSR.Mstatus), sys.CSR.Mcause, sys.CSR.Mepc, sys.CSR.Mtval)
	fmt.Fprintf(w, "scause: %016x sepc:%016x stval:%016x satp:%016x\n",
		sys.CSR.Scause, sys.CSR.Sepc, sys.CSR.Stval, uint64(sys.CSR.Satp))
	if sys.cfg.RVH {
		fmt.Fprintf(w, "hstatus:%016x htval:%016x vsatp:%016x hgatp:%016x\n",
			uint64(sys.CSR.Hstatus), sys.CSR.Htval,
			uint64(sys.CSR.Vsatp), uint64(sys.CSR.Hgatp))
		fmt.Fprintf(w, "vscause:%016x vsepc:%016x vstval:%016x\n",
			sys.CSR.Vscause, sys.CSR.Vsepc, sys.CSR.Vstval)
	}
}
